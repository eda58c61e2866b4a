// Package provider normalizes divergent cloud vendor APIs behind one
// capability interface. Every adapter answers every verb: where a vendor has
// no native equivalent it maps to the closest safe operation (suspend becomes
// a power-off), never silently succeeding without effect and never guessing
// at a destructive alternative.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimbushost/provision-service/internal/models"
)

// Error is a classified adapter failure. Retryable marks vendor-side or
// network faults that may succeed on a later attempt; validation failures and
// rejected requests are permanent.
type Error struct {
	Op        string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Message
}

// IsRetryable reports whether err is an adapter failure worth re-attempting
// upstream. The orchestrator itself never retries; the flag is recorded for
// whoever re-delivers webhooks.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// CreateResult describes a freshly created server. IP may be empty when the
// vendor assigns addresses asynchronously. Raw carries the vendor's own
// response fields, nothing more.
type CreateResult struct {
	ResourceID string
	IP         string
	Raw        map[string]interface{}
}

// Adapter is the uniform capability surface over one vendor account. The
// credential token is supplied once at construction and never logged.
type Adapter interface {
	CreateServer(ctx context.Context, name string, plan models.PlanRef, userData string) (*CreateResult, error)
	PowerOn(ctx context.Context, resourceID string) error
	PowerOff(ctx context.Context, resourceID string) error
	Reboot(ctx context.Context, resourceID string) error
	Suspend(ctx context.Context, resourceID string) error
	Terminate(ctx context.Context, resourceID string) error
	Reinstall(ctx context.Context, resourceID string, plan models.PlanRef) error
}

// requirePlan checks the vendor-required plan keys before any network call.
func requirePlan(op string, plan models.PlanRef, keys ...string) error {
	for _, k := range keys {
		if plan[k] == "" {
			return &Error{Op: op, Message: fmt.Sprintf("plan_ref missing required field %q", k)}
		}
	}
	return nil
}
