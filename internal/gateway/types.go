package gateway

import (
	"context"
	"time"
)

// Notifier delivers alerts to one chat platform.
type Notifier interface {
	Platform() string
	Connect(ctx context.Context) error
	Notify(ctx context.Context, alert *Alert) error
	Close() error
}

// AlertType categorizes alerts.
type AlertType string

const (
	AlertAbsent   AlertType = "absent"
	AlertReturned AlertType = "returned"
)

// Alert is a status notification fanned out to every registered platform.
type Alert struct {
	Type      AlertType `json:"type"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
	Platforms []string  `json:"platforms,omitempty"`
}

// Text renders the alert as a single chat message.
func (a *Alert) Text() string {
	return a.Title + "\n" + a.Content
}
