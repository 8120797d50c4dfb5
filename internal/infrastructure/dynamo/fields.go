package dynamo

// DynamoDB attribute names used in key schemas and expressions.
const (
	fieldEventID   = "event_id"
	fieldRevision  = "revision"
	fieldCategory  = "category"
	fieldStartDate = "start_date"
	fieldUpdatedAt = "updated_at"
	fieldDeletedAt = "deleted_at"
	fieldExpiresAt = "expires_at"
)
