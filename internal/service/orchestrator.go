// Package service implements the provisioning pipeline: webhook deliveries in,
// running servers out, plus the manual lifecycle actions against them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbushost/provision-service/internal/client"
	"github.com/nimbushost/provision-service/internal/metrics"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/provider"
	"github.com/nimbushost/provision-service/internal/repository"
)

// Storage collaborators are narrowed to what the orchestrator actually calls
// so tests can substitute in-memory fakes.

type DeliveryStore interface {
	GetByID(ctx context.Context, id string) (*models.WebhookDelivery, error)
	MarkProcessed(ctx context.Context, id string, result *models.ProcessResult) error
}

type ServerStore interface {
	GetByID(ctx context.Context, id string) (*models.ServerInstance, error)
	GetByExternalServiceID(ctx context.Context, serviceID int64) (*models.ServerInstance, error)
	Insert(ctx context.Context, s *models.ServerInstance) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type ActionStore interface {
	Insert(ctx context.Context, a *models.ActionRequest) error
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMsg string) error
}

type MappingStore interface {
	GetByProductID(ctx context.Context, productID int64) (*models.ProductMapping, error)
}

type ProviderStore interface {
	GetByID(ctx context.Context, id string) (*models.Provider, error)
}

type CredentialStore interface {
	GetByID(ctx context.Context, id string) (*models.ProviderCredential, error)
}

type SecretDecrypter interface {
	DecryptValue(ctx context.Context, secretID string) (string, error)
}

type BillingClient interface {
	Configured() bool
	AttachServiceIP(ctx context.Context, serviceID int64, ip string) error
}

type AuditSink interface {
	Record(ctx context.Context, actorType, action, targetType, targetID string, details map[string]interface{})
}

// AdapterFactory builds a vendor adapter from a provider type and a decrypted
// account token.
type AdapterFactory func(providerType, token string) (provider.Adapter, error)

// Webhook processing skip reasons recorded on deliveries.
const (
	SkipServerExists   = "server_exists"
	SkipCreateInFlight = "create_in_flight"
)

// Orchestrator turns persisted webhook deliveries into provider servers.
type Orchestrator struct {
	log         *logrus.Logger
	deliveries  DeliveryStore
	servers     ServerStore
	actions     ActionStore
	mappings    MappingStore
	providers   ProviderStore
	credentials CredentialStore
	secrets     SecretDecrypter
	billing     BillingClient
	audit       AuditSink
	newAdapter  AdapterFactory
}

func NewOrchestrator(
	log *logrus.Logger,
	deliveries DeliveryStore,
	servers ServerStore,
	actions ActionStore,
	mappings MappingStore,
	providers ProviderStore,
	credentials CredentialStore,
	secrets SecretDecrypter,
	billing BillingClient,
	audit AuditSink,
	newAdapter AdapterFactory,
) *Orchestrator {
	return &Orchestrator{
		log:         log,
		deliveries:  deliveries,
		servers:     servers,
		actions:     actions,
		mappings:    mappings,
		providers:   providers,
		credentials: credentials,
		secrets:     secrets,
		billing:     billing,
		audit:       audit,
		newAdapter:  newAdapter,
	}
}

// ProcessDelivery drives one persisted delivery to a terminal outcome.
//
// Three idempotency gates protect against duplicate deliveries: the
// write-once processed_at on the delivery, the action request keyed
// "webhook:<deliveryID>:create", and the unique external_service_id on server
// instances as the database backstop. Errors are split into two classes:
// terminal faults (bad payload, missing configuration, any provider failure)
// are recorded on the delivery so replays are no-ops; systemic faults
// (database down, KMS unreachable) return an error without marking the
// delivery, leaving it eligible for redelivery.
func (o *Orchestrator) ProcessDelivery(ctx context.Context, deliveryID string) (*models.ProcessResult, error) {
	log := o.log.WithField("delivery_id", deliveryID)

	delivery, err := o.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("load delivery: %w", err)
	}
	if delivery.ProcessedAt != nil {
		log.Info("delivery already processed, replay is a no-op")
		return delivery.Result, nil
	}

	serviceID, productID, err := client.ExtractServiceAndProductIDs(delivery.Payload)
	if err != nil {
		log.WithError(err).Warn("webhook payload is malformed")
		return o.finish(ctx, deliveryID, &models.ProcessResult{Error: err.Error()})
	}
	log = log.WithFields(logrus.Fields{"service_id": serviceID, "product_id": productID})

	if _, err := o.servers.GetByExternalServiceID(ctx, serviceID); err == nil {
		log.Info("server already exists for service, skipping")
		return o.finish(ctx, deliveryID, &models.ProcessResult{OK: true, Skipped: SkipServerExists})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing server: %w", err)
	}

	mapping, err := o.mappings.GetByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return o.failConfig(ctx, deliveryID, log,
				fmt.Sprintf("no product mapping for product %d", productID))
		}
		return nil, fmt.Errorf("load product mapping: %w", err)
	}

	prov, err := o.providers.GetByID(ctx, mapping.ProviderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return o.failConfig(ctx, deliveryID, log,
				fmt.Sprintf("mapping references missing provider %s", mapping.ProviderID))
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !prov.Enabled {
		return o.failConfig(ctx, deliveryID, log,
			fmt.Sprintf("provider %s is disabled", prov.ID))
	}

	cred, err := o.credentials.GetByID(ctx, mapping.CredentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return o.failConfig(ctx, deliveryID, log,
				fmt.Sprintf("mapping references missing credential %s", mapping.CredentialID))
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	// A decrypt failure is systemic (KMS outage, key policy): the delivery
	// stays unprocessed so redelivery can retry once the key is reachable.
	token, err := o.secrets.DecryptValue(ctx, cred.SecretID)
	if err != nil {
		return nil, fmt.Errorf("decrypt provider credential: %w", err)
	}

	adapter, err := o.newAdapter(prov.Type, token)
	if err != nil {
		return o.failConfig(ctx, deliveryID, log, err.Error())
	}

	// The action request goes in only once everything needed for the
	// provider call is resolved; resolution failures leave no action trail.
	action := &models.ActionRequest{
		ID:                uuid.New().String(),
		ExternalServiceID: serviceID,
		Action:            models.ActionCreate,
		Status:            models.ActionStatusRunning,
		IdempotencyKey:    fmt.Sprintf("webhook:%s:%s", deliveryID, models.ActionCreate),
		StartedAt:         time.Now().UTC(),
	}
	if err := o.actions.Insert(ctx, action); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			log.Warn("create action already in flight for this delivery")
			return o.finish(ctx, deliveryID, &models.ProcessResult{OK: true, Skipped: SkipCreateInFlight})
		}
		return nil, fmt.Errorf("record create action: %w", err)
	}

	name := fmt.Sprintf("srv-%d", serviceID)
	created, err := adapter.CreateServer(ctx, name, mapping.PlanRef, mapping.PlanRef["user_data"])
	if err != nil {
		// Terminal either way: this component never retries a provider call.
		// The retryable flag is recorded for whoever redelivers webhooks.
		if markErr := o.actions.MarkFailed(ctx, action.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Warn("failed to mark action failed")
		}
		log.WithError(err).Error("provider server creation failed")
		result, ferr := o.finish(ctx, deliveryID, &models.ProcessResult{
			Error:     err.Error(),
			Retryable: provider.IsRetryable(err),
		})
		if ferr != nil {
			return nil, ferr
		}
		metrics.ServerActions.WithLabelValues(models.ActionCreate, models.ActionStatusFailed).Inc()
		return result, nil
	}

	instance := &models.ServerInstance{
		ID:                 uuid.New().String(),
		ExternalServiceID:  serviceID,
		ProviderID:         prov.ID,
		CredentialID:       cred.ID,
		ProviderResourceID: created.ResourceID,
		Status:             models.ServerStatusProvisioning,
		Metadata:           created.Raw,
	}
	if created.IP != "" {
		ip := created.IP
		instance.IP = &ip
	}
	if err := o.servers.Insert(ctx, instance); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost the race against a concurrent delivery: our cloud resource
			// is now an orphan. Flag it loudly; cleanup is a manual decision.
			log.WithField("orphan_resource_id", created.ResourceID).
				Error("duplicate server for service, orphaned provider resource needs cleanup")
			if markErr := o.actions.MarkFailed(ctx, action.ID, "lost provisioning race, resource orphaned"); markErr != nil {
				log.WithError(markErr).Warn("failed to mark action failed")
			}
			return o.finish(ctx, deliveryID, &models.ProcessResult{OK: true, Skipped: SkipServerExists})
		}
		return nil, fmt.Errorf("persist server instance: %w", err)
	}

	if o.billing != nil && o.billing.Configured() && created.IP != "" {
		if err := o.billing.AttachServiceIP(ctx, serviceID, created.IP); err != nil {
			// The server is up; a panel write-back failure is not worth
			// failing provisioning over.
			log.WithError(err).Warn("failed to push server IP to billing panel")
			o.audit.Record(ctx, "system", "billing.sync_failed", "server_instance", instance.ID, map[string]interface{}{
				"external_service_id": serviceID,
				"error":               err.Error(),
			})
		}
	}

	if err := o.actions.MarkSucceeded(ctx, action.ID); err != nil {
		log.WithError(err).Warn("failed to mark action succeeded")
	}
	o.audit.Record(ctx, "system", "server.provisioned", "server_instance", instance.ID, map[string]interface{}{
		"external_service_id": serviceID,
		"provider_id":         prov.ID,
		"resource_id":         created.ResourceID,
	})
	metrics.ServerActions.WithLabelValues(models.ActionCreate, models.ActionStatusSucceeded).Inc()

	log.WithField("server_id", instance.ID).Info("server provisioned")
	return o.finish(ctx, deliveryID, &models.ProcessResult{OK: true, ServerID: instance.ID})
}

// failConfig records a terminal configuration failure on the delivery. No
// provider call was attempted, so there is no action request to fail.
func (o *Orchestrator) failConfig(ctx context.Context, deliveryID string, log *logrus.Entry, msg string) (*models.ProcessResult, error) {
	log.Error(msg)
	return o.finish(ctx, deliveryID, &models.ProcessResult{Error: msg})
}

// finish stamps the terminal result onto the delivery. If another worker got
// there first the recorded outcome wins and is returned instead of ours.
func (o *Orchestrator) finish(ctx context.Context, deliveryID string, result *models.ProcessResult) (*models.ProcessResult, error) {
	if err := o.deliveries.MarkProcessed(ctx, deliveryID, result); err != nil {
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			delivery, gerr := o.deliveries.GetByID(ctx, deliveryID)
			if gerr != nil {
				return nil, fmt.Errorf("reload processed delivery: %w", gerr)
			}
			return delivery.Result, nil
		}
		return nil, fmt.Errorf("mark delivery processed: %w", err)
	}
	metrics.WebhookDeliveriesProcessed.WithLabelValues(outcomeLabel(result)).Inc()
	return result, nil
}

func outcomeLabel(result *models.ProcessResult) string {
	switch {
	case result.Skipped != "":
		return "skipped"
	case result.OK:
		return "provisioned"
	default:
		return "failed"
	}
}
