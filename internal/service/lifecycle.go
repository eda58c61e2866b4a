package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbushost/provision-service/internal/metrics"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/provider"
	"github.com/nimbushost/provision-service/internal/repository"
)

var (
	// ErrUnknownAction means the requested action name is not a lifecycle verb.
	ErrUnknownAction = errors.New("unknown action")
	// ErrActionInProgress means the same action is already pending or running
	// against this service.
	ErrActionInProgress = errors.New("action already in progress")
)

// statusAfter maps a completed action to the instance status it leaves behind.
// Reboot and reinstall end where they started: running.
var statusAfter = map[string]string{
	models.ActionPowerOn:   models.ServerStatusActive,
	models.ActionPowerOff:  models.ServerStatusStopped,
	models.ActionReboot:    models.ServerStatusActive,
	models.ActionSuspend:   models.ServerStatusSuspended,
	models.ActionUnsuspend: models.ServerStatusActive,
	models.ActionTerminate: models.ServerStatusTerminated,
	models.ActionReinstall: models.ServerStatusActive,
}

// PerformAction runs one manual lifecycle action against the server owned by
// a billing service. Concurrent duplicates of the same action are suppressed
// by a partial unique index over in-flight action requests; completed actions
// do not block re-running the same verb later.
func (o *Orchestrator) PerformAction(ctx context.Context, serviceID int64, actionName string, plan models.PlanRef) (*models.ActionRequest, error) {
	if _, ok := statusAfter[actionName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, actionName)
	}
	log := o.log.WithFields(logrus.Fields{"service_id": serviceID, "action": actionName})

	instance, err := o.servers.GetByExternalServiceID(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load server: %w", err)
	}
	if instance.Status == models.ServerStatusTerminated {
		return nil, fmt.Errorf("server for service %d is terminated", serviceID)
	}

	action := &models.ActionRequest{
		ID:                uuid.New().String(),
		ExternalServiceID: serviceID,
		Action:            actionName,
		Status:            models.ActionStatusRunning,
		IdempotencyKey:    fmt.Sprintf("manual:%d:%s:%s", serviceID, actionName, uuid.New().String()),
		StartedAt:         time.Now().UTC(),
	}
	if err := o.actions.Insert(ctx, action); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrActionInProgress
		}
		return nil, fmt.Errorf("record action request: %w", err)
	}

	adapter, err := o.adapterForInstance(ctx, instance)
	if err != nil {
		if markErr := o.actions.MarkFailed(ctx, action.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Warn("failed to mark action failed")
		}
		metrics.ServerActions.WithLabelValues(actionName, models.ActionStatusFailed).Inc()
		return nil, err
	}

	if err := o.dispatch(ctx, adapter, actionName, instance.ProviderResourceID, plan); err != nil {
		log.WithError(err).Error("provider action failed")
		if markErr := o.actions.MarkFailed(ctx, action.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Warn("failed to mark action failed")
		}
		metrics.ServerActions.WithLabelValues(actionName, models.ActionStatusFailed).Inc()
		return nil, err
	}

	if err := o.servers.UpdateStatus(ctx, instance.ID, statusAfter[actionName]); err != nil {
		log.WithError(err).Warn("failed to update server status after action")
	}
	if err := o.actions.MarkSucceeded(ctx, action.ID); err != nil {
		log.WithError(err).Warn("failed to mark action succeeded")
	}
	o.audit.Record(ctx, "admin", "server."+actionName, "server_instance", instance.ID, map[string]interface{}{
		"external_service_id": serviceID,
		"resource_id":         instance.ProviderResourceID,
	})
	metrics.ServerActions.WithLabelValues(actionName, models.ActionStatusSucceeded).Inc()

	action.Status = models.ActionStatusSucceeded
	now := time.Now().UTC()
	action.CompletedAt = &now
	log.Info("action completed")
	return action, nil
}

// adapterForInstance rebuilds the vendor adapter for an existing server from
// its stored provider and credential references.
func (o *Orchestrator) adapterForInstance(ctx context.Context, instance *models.ServerInstance) (provider.Adapter, error) {
	prov, err := o.providers.GetByID(ctx, instance.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !prov.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", prov.ID)
	}
	cred, err := o.credentials.GetByID(ctx, instance.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	token, err := o.secrets.DecryptValue(ctx, cred.SecretID)
	if err != nil {
		return nil, fmt.Errorf("decrypt provider credential: %w", err)
	}
	return o.newAdapter(prov.Type, token)
}

func (o *Orchestrator) dispatch(ctx context.Context, adapter provider.Adapter, actionName, resourceID string, plan models.PlanRef) error {
	switch actionName {
	case models.ActionPowerOn, models.ActionUnsuspend:
		return adapter.PowerOn(ctx, resourceID)
	case models.ActionPowerOff:
		return adapter.PowerOff(ctx, resourceID)
	case models.ActionReboot:
		return adapter.Reboot(ctx, resourceID)
	case models.ActionSuspend:
		return adapter.Suspend(ctx, resourceID)
	case models.ActionTerminate:
		return adapter.Terminate(ctx, resourceID)
	case models.ActionReinstall:
		return adapter.Reinstall(ctx, resourceID, plan)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, actionName)
	}
}
