package domain

// Notification is a user-facing alert kept in the per-profile log.
// Only Read ever changes after creation.
type Notification struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Read      bool   `json:"read"`
}

// PushPayload is the body of an OS-level push notification.
type PushPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

const (
	DefaultPushTitle = "Events App Notification"
	DefaultPushBody  = "New notification"
	DefaultPushIcon  = "/favicon.ico"
	DefaultPushURL   = "/"
)

// WithDefaults fills every empty field.
func (p PushPayload) WithDefaults() PushPayload {
	if p.Title == "" {
		p.Title = DefaultPushTitle
	}
	if p.Body == "" {
		p.Body = DefaultPushBody
	}
	if p.Icon == "" {
		p.Icon = DefaultPushIcon
	}
	if p.URL == "" {
		p.URL = DefaultPushURL
	}
	return p
}
