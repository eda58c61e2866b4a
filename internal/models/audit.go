package models

import "time"

// AuditEntry is one append-only record of a privileged or provisioning action.
type AuditEntry struct {
	ID         string
	ActorType  string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]interface{}
	CreatedAt  time.Time
}
