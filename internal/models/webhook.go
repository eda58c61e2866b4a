package models

import "time"

// WebhookDelivery is one persisted inbound billing notification. ProcessedAt
// is set exactly once and never cleared; it is the replay guard for
// at-least-once webhook delivery.
type WebhookDelivery struct {
	ID          string
	Payload     []byte
	ProcessedAt *time.Time
	Result      *ProcessResult
	CreatedAt   time.Time
}

// ProcessResult is the terminal outcome recorded on a delivery. Every
// processing attempt ends in one of these; outcomes are never thrown away.
type ProcessResult struct {
	OK       bool   `json:"ok"`
	Skipped  string `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
	ServerID string `json:"server_id,omitempty"`
	// Retryable marks a provider-side failure that upstream redelivery with a
	// fresh delivery id may resolve. This component never retries on its own.
	Retryable bool `json:"retryable,omitempty"`
}
