package service

import (
	"context"
	"time"
)

// SecurityEvent is emitted on security-relevant state changes: logins,
// theft detections and session revocation cascades. Consumers (SIEM,
// alerting) subscribe downstream; publishing is best-effort and never blocks
// the authentication path on failure.
type SecurityEvent struct {
	RequestID  string    `json:"request_id,omitempty"` // For distributed tracing
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SecurityEventPublisher defines the interface for publishing security events
// to a message queue.
type SecurityEventPublisher interface {
	// PublishSecurityEvent publishes a security event for async processing.
	PublishSecurityEvent(ctx context.Context, event *SecurityEvent) error

	// Close releases any resources held by the publisher.
	Close() error
}
