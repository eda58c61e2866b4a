package models

import "time"

// Action request status constants
const (
	ActionStatusPending   = "pending"
	ActionStatusRunning   = "running"
	ActionStatusSucceeded = "succeeded"
	ActionStatusFailed    = "failed"
)

// Lifecycle action names
const (
	ActionCreate    = "create"
	ActionPowerOn   = "poweron"
	ActionPowerOff  = "poweroff"
	ActionReboot    = "reboot"
	ActionSuspend   = "suspend"
	ActionUnsuspend = "unsuspend"
	ActionTerminate = "terminate"
	ActionReinstall = "reinstall"
)

// ActionRequest tracks one attempted lifecycle operation against a server.
// The row is written before the provider call is made, so a crash mid-call
// leaves a durable "running" marker for manual reconciliation.
type ActionRequest struct {
	ID                string
	ExternalServiceID int64
	Action            string
	Status            string
	IdempotencyKey    string
	StartedAt         time.Time
	CompletedAt       *time.Time
	Error             *string
}
