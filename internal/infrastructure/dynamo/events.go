package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-events-sync/internal/domain"
)

// tombstoneTTL is how long a deleted event's revision is remembered.
const tombstoneTTL = 30 * 24 * time.Hour

// batchWriteLimit is the DynamoDB cap on items per BatchWriteItem call.
const batchWriteLimit = 25

// EventRepo provides typed DynamoDB operations for the events table.
// Deletes leave a tombstone item so a later revision is always higher.
type EventRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewEventRepo(client *dynamodb.Client, tableName string) *EventRepo {
	return &EventRepo{client: client, tableName: tableName}
}

// Put inserts a new event. It fails with ErrConflict when the id exists.
func (r *EventRepo) Put(ctx context.Context, e *domain.Event) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldEventID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("event %s exists: %w", e.EventID, domain.ErrConflict)
	}
	return err
}

// BatchPut writes events in chunks of 25, retrying unprocessed items once.
func (r *EventRepo) BatchPut(ctx context.Context, events []domain.Event) error {
	for start := 0; start < len(events); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(events))
		reqs := make([]types.WriteRequest, 0, end-start)
		for i := start; i < end; i++ {
			item, err := attributevalue.MarshalMap(&events[i])
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", events[i].EventID, err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		pending := map[string][]types.WriteRequest{r.tableName: reqs}
		for attempt := 0; attempt < 2 && len(pending) > 0; attempt++ {
			out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("batch write events: %w", err)
			}
			pending = out.UnprocessedItems
		}
		if n := len(pending[r.tableName]); n > 0 {
			return fmt.Errorf("batch write events: %d items unprocessed", n)
		}
	}
	return nil
}

func (r *EventRepo) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEventID, eventID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("event not found: %w", domain.ErrNotFound)
	}
	if _, deleted := out.Item[fieldDeletedAt]; deleted {
		return nil, fmt.Errorf("event deleted: %w", domain.ErrNotFound)
	}
	var e domain.Event
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Scan returns every live event.
func (r *EventRepo) Scan(ctx context.Context) ([]domain.Event, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("attribute_not_exists(#del)"),
		ExpressionAttributeNames: map[string]string{"#del": fieldDeletedAt},
	})
	var events []domain.Event
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan events: %w", err)
		}
		var page []domain.Event
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		events = append(events, page...)
	}
	return events, nil
}

// QueryByCategory returns the live events of one category ordered by start date.
func (r *EventRepo) QueryByCategory(ctx context.Context, category string) ([]domain.Event, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(categoryIndex),
		KeyConditionExpression: aws.String("#cat = :cat"),
		FilterExpression:       aws.String("attribute_not_exists(#del)"),
		ExpressionAttributeNames: map[string]string{
			"#cat": fieldCategory,
			"#del": fieldDeletedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cat": &types.AttributeValueMemberS{Value: category},
		},
	})
	var events []domain.Event
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query category %s: %w", category, err)
		}
		var page []domain.Event
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		events = append(events, page...)
	}
	return events, nil
}

// Update sets the given fields, bumps the revision and returns the new item.
func (r *EventRepo) Update(ctx context.Context, eventID string, updates map[string]interface{}) (*domain.Event, error) {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	ue.bumpRevision()
	ue.Names["#id"] = fieldEventID
	ue.Names["#del"] = fieldDeletedAt
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEventID, eventID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id) AND attribute_not_exists(#del)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("event not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var e domain.Event
	if err := attributevalue.UnmarshalMap(out.Attributes, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SoftDelete turns the event into a tombstone one revision past its last.
func (r *EventRepo) SoftDelete(ctx context.Context, eventID string) (*domain.Tombstone, error) {
	now := time.Now().UTC()
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldDeletedAt: now,
		fieldUpdatedAt: now,
		fieldExpiresAt: now.Add(tombstoneTTL).Unix(),
	})
	if err != nil {
		return nil, err
	}
	ue.bumpRevision()
	ue.Names["#id"] = fieldEventID
	ue.Names["#del"] = fieldDeletedAt
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEventID, eventID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id) AND attribute_not_exists(#del)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("event not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rev, ok := out.Attributes[fieldRevision].(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("delete %s: revision missing from response", eventID)
	}
	n, err := strconv.ParseInt(rev.Value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", eventID, err)
	}
	return &domain.Tombstone{EventID: eventID, Revision: n}, nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
