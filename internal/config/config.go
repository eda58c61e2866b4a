package config

import (
	"fmt"
	"os"
)

// Placeholder values that must never survive into a running deployment.
var insecureDefaults = map[string]bool{
	"change-me":               true,
	"internal-secret":         true,
	"internal-service-secret": true,
	"":                        true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Webhook        WebhookConfig
	KMS            KMSConfig
	Billing        BillingConfig
	InternalSecret string
	LogLevel       string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	Schema        string
	SSLMode       string
	MigrationsDir string
}

// WebhookConfig carries the shared secret that billing includes on every
// webhook request.
type WebhookConfig struct {
	Secret string
}

// KMSConfig selects which key backends get registered and holds their
// connection material. DefaultKeyID is a "vendor:ref" string; it is used when
// an admin request does not name a key explicitly.
type KMSConfig struct {
	DefaultKeyID       string
	LocalMasterKey     string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	GCPCredentialsFile string
}

// BillingConfig points back at the WHMCS panel. All three fields empty means
// IP write-back is disabled.
type BillingConfig struct {
	WHMCSURL        string
	WHMCSIdentifier string
	WHMCSSecret     string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "provision_user"),
			Password:      getEnv("DB_PASSWORD", "provision_pass"),
			DBName:        getEnv("DB_NAME", "provision_db"),
			Schema:        getEnv("DB_SCHEMA", "provisioning"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		KMS: KMSConfig{
			DefaultKeyID:       getEnv("KMS_DEFAULT_KEY_ID", ""),
			LocalMasterKey:     getEnv("KMS_LOCAL_MASTER_KEY", ""),
			AWSRegion:          getEnv("KMS_AWS_REGION", ""),
			AWSAccessKeyID:     getEnv("KMS_AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey: getEnv("KMS_AWS_SECRET_ACCESS_KEY", ""),
			GCPCredentialsFile: getEnv("KMS_GCP_CREDENTIALS_FILE", ""),
		},
		Billing: BillingConfig{
			WHMCSURL:        getEnv("WHMCS_URL", ""),
			WHMCSIdentifier: getEnv("WHMCS_API_IDENTIFIER", ""),
			WHMCSSecret:     getEnv("WHMCS_API_SECRET", ""),
		},
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations that would run the service with insecure
// or unusable settings.
func (c *Config) Validate() error {
	if insecureDefaults[c.Webhook.Secret] {
		return fmt.Errorf("WEBHOOK_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.Webhook.Secret) < 32 {
		return fmt.Errorf("WEBHOOK_SECRET must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if c.KMS.DefaultKeyID == "" {
		return fmt.Errorf("KMS_DEFAULT_KEY_ID must be set (format vendor:ref, e.g. local:default)")
	}
	if c.KMS.LocalMasterKey == "" && c.KMS.AWSRegion == "" && c.KMS.GCPCredentialsFile == "" {
		return fmt.Errorf("at least one KMS backend must be configured")
	}
	if c.KMS.LocalMasterKey != "" && len(c.KMS.LocalMasterKey) != 64 {
		return fmt.Errorf("KMS_LOCAL_MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
