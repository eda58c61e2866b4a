package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/nimbushost/provision-service/internal/client"
	"github.com/nimbushost/provision-service/internal/config"
	"github.com/nimbushost/provision-service/internal/db"
	"github.com/nimbushost/provision-service/internal/http"
	"github.com/nimbushost/provision-service/internal/kms"
	"github.com/nimbushost/provision-service/internal/logging"
	"github.com/nimbushost/provision-service/internal/models"
	"github.com/nimbushost/provision-service/internal/provider"
	"github.com/nimbushost/provision-service/internal/repository"
	"github.com/nimbushost/provision-service/internal/secrets"
	"github.com/nimbushost/provision-service/internal/service"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	log.Info("starting provision service")

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := db.Migrate(&cfg.Database, log); err != nil {
		log.WithError(err).Fatal("database migration failed")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, &cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	resolver, err := buildKeyResolver(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize KMS backends")
	}

	// Repositories
	secretRepo := repository.NewSecretRepository(pool)
	providerRepo := repository.NewProviderRepository(pool)
	credentialRepo := repository.NewCredentialRepository(pool)
	mappingRepo := repository.NewMappingRepository(pool)
	webhookRepo := repository.NewWebhookDeliveryRepository(pool)
	serverRepo := repository.NewServerRepository(pool)
	actionRepo := repository.NewActionRepository(pool)
	auditRepo := repository.NewAuditRepository(pool, log)

	secretStore := secrets.NewStore(secretRepo, resolver)

	jwtSecret, err := bootstrapJWTSecret(ctx, secretStore, cfg.KMS.DefaultKeyID)
	if err != nil {
		log.WithError(err).Fatal("failed to bootstrap JWT signing secret")
	}

	whmcsClient := client.NewWHMCSClient(cfg.Billing.WHMCSURL, cfg.Billing.WHMCSIdentifier, cfg.Billing.WHMCSSecret)
	if !whmcsClient.Configured() {
		log.Warn("WHMCS billing callbacks not configured, IP write-back disabled")
	}

	adapterFactory := func(providerType, token string) (provider.Adapter, error) {
		return provider.New(providerType, token, nil)
	}

	orchestrator := service.NewOrchestrator(
		log,
		webhookRepo,
		serverRepo,
		actionRepo,
		mappingRepo,
		providerRepo,
		credentialRepo,
		secretStore,
		whmcsClient,
		auditRepo,
		adapterFactory,
	)

	handler := http.NewHandler(log, orchestrator, webhookRepo, serverRepo, actionRepo)
	adminHandler := http.NewAdminHandler(log, providerRepo, credentialRepo, mappingRepo, secretStore, auditRepo, cfg.KMS.DefaultKeyID)
	server := http.NewServer(cfg, pool, handler, adminHandler, jwtSecret)

	httpServer := &nethttp.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server exited")
}

// buildKeyResolver registers every configured KMS backend under its vendor
// prefix. At least one must come up; config validation already guarantees one
// is configured.
func buildKeyResolver(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*kms.Resolver, error) {
	resolver := kms.NewResolver()

	if cfg.KMS.LocalMasterKey != "" {
		local, err := kms.NewLocalKMS(cfg.KMS.LocalMasterKey)
		if err != nil {
			return nil, fmt.Errorf("local kms: %w", err)
		}
		resolver.Register("local", local)
		log.Info("registered local KMS backend")
	}

	if cfg.KMS.AWSRegion != "" {
		aws, err := kms.NewAWSKMS(ctx, cfg.KMS.AWSRegion, cfg.KMS.AWSAccessKeyID, cfg.KMS.AWSSecretAccessKey)
		if err != nil {
			return nil, fmt.Errorf("aws kms: %w", err)
		}
		resolver.Register("aws", aws)
		log.WithField("region", cfg.KMS.AWSRegion).Info("registered AWS KMS backend")
	}

	if cfg.KMS.GCPCredentialsFile != "" {
		gcp, err := kms.NewGCPKMS(ctx, option.WithCredentialsFile(cfg.KMS.GCPCredentialsFile))
		if err != nil {
			return nil, fmt.Errorf("gcp kms: %w", err)
		}
		resolver.Register("gcp", gcp)
		log.Info("registered GCP KMS backend")
	}

	// Fail fast if the default key cannot be resolved.
	if _, _, err := resolver.Resolve(cfg.KMS.DefaultKeyID); err != nil {
		return nil, fmt.Errorf("default key id %q: %w", cfg.KMS.DefaultKeyID, err)
	}
	return resolver, nil
}

// bootstrapJWTSecret loads the JWT signing secret from the secret store,
// generating one on first boot. Rotation goes through the store like any
// other secret; a restart picks up the new value.
func bootstrapJWTSecret(ctx context.Context, store *secrets.Store, keyID string) (string, error) {
	value, err := store.ActiveValue(ctx, models.SecretScopeSystem, "jwt-signing-key")
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	generated := hex.EncodeToString(buf)

	if _, err := store.Create(ctx, models.SecretScopeSystem, "jwt-signing-key", generated, keyID,
		map[string]string{"purpose": "jwt"}); err != nil {
		if errors.Is(err, secrets.ErrDuplicateActiveSecret) {
			// Another replica won the bootstrap race; use its value.
			return store.ActiveValue(ctx, models.SecretScopeSystem, "jwt-signing-key")
		}
		return "", err
	}
	return generated, nil
}
