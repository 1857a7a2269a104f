package events

import (
	"context"
	"time"
)

// AccessEvent is emitted after a PIN decision has been recorded.
type AccessEvent struct {
	LockUUID   string    `json:"lock_uuid"`
	LockID     string    `json:"lock_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	AccessType string    `json:"access_type"`
	Result     string    `json:"result"`
	AccessLog  string    `json:"access_log_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher fans access events out to interested consumers. Delivery is best effort.
type Publisher interface {
	PublishAccess(ctx context.Context, event AccessEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishAccess(context.Context, AccessEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }
