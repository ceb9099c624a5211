package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Config holds all configuration for the opencraft server.
type Config struct {
	Port      int
	APIKey    string
	JWTSecret string // enables scoped power tokens
	LogLevel  string

	// Provider selects the infrastructure: "azure", "ec2", "fly" or "local"
	Provider string

	// Azure
	AzureSubscriptionID string
	AzureResourceGroup  string
	AzureVMName         string
	AzurePublicIPName   string // optional; resolves the server address when ServerAddress is empty
	AzureTenantID       string
	AzureClientID       string
	AzureClientSecret   string

	// AWS EC2
	EC2Region          string
	EC2InstanceID      string
	EC2AccessKeyID     string
	EC2SecretAccessKey string

	// Fly.io Machines
	FlyAppName   string
	FlyMachineID string
	FlyAPIToken  string

	// Liveness probe
	ServerAddress string        // e.g. "mc.example.com:25565"
	StatusAPIURL  string        // mcsrvstat.us compatible API base
	ProbeTimeout  time.Duration // per request

	// Graceful stop: "" (disabled), "discord", "nats", "ssm" or "azure-run-command"
	Notifier           string
	StopCommand        string // console command, default "stop"
	StopScript         string // shell command for ssm / azure-run-command
	DiscordBotToken    string
	DiscordChannelID   string
	NATSURL            string
	NATSConsoleSubject string

	// Power events published to NATS (empty disables)
	EventsSubject string

	// Redis lock serializing power operations across replicas (empty disables)
	RedisURL string
	LockTTL  time.Duration

	// Secret sources. Env vars take precedence over secret values.
	SecretsARN  string // AWS Secrets Manager JSON secret
	KeyVaultURL string // Azure Key Vault, secrets named like env vars with '-' for '_'
}

// secretKeys are the env vars that may be fetched from Key Vault.
var secretKeys = []string{
	"OPENCRAFT_API_KEY",
	"OPENCRAFT_JWT_SECRET",
	"OPENCRAFT_AZURE_CLIENT_SECRET",
	"OPENCRAFT_EC2_SECRET_ACCESS_KEY",
	"OPENCRAFT_FLY_API_TOKEN",
	"OPENCRAFT_DISCORD_BOT_TOKEN",
	"OPENCRAFT_REDIS_URL",
	"OPENCRAFT_NATS_URL",
}

// Load reads configuration from environment variables with sensible defaults.
// If OPENCRAFT_SECRETS_ARN is set, secrets are fetched from AWS Secrets Manager
// first, then environment variables are applied on top (env vars take precedence).
// Key Vault needs an Azure credential and is applied afterwards with LoadKeyVault.
func Load() (*Config, error) {
	if arn := os.Getenv("OPENCRAFT_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}

	cfg := &Config{
		Port:     8080,
		LogLevel: envOrDefault("OPENCRAFT_LOG_LEVEL", "info"),
		Provider: envOrDefault("OPENCRAFT_PROVIDER", "local"),

		AzureSubscriptionID: envOrDefault("OPENCRAFT_AZURE_SUBSCRIPTION_ID", os.Getenv("AZURE_SUBSCRIPTION_ID")),
		AzureResourceGroup:  os.Getenv("OPENCRAFT_AZURE_RESOURCE_GROUP"),
		AzureVMName:         os.Getenv("OPENCRAFT_AZURE_VM_NAME"),
		AzurePublicIPName:   os.Getenv("OPENCRAFT_AZURE_PUBLIC_IP_NAME"),
		AzureTenantID:       envOrDefault("OPENCRAFT_AZURE_TENANT_ID", os.Getenv("AZURE_TENANT_ID")),
		AzureClientID:       envOrDefault("OPENCRAFT_AZURE_CLIENT_ID", os.Getenv("AZURE_CLIENT_ID")),

		EC2Region:      envOrDefault("OPENCRAFT_EC2_REGION", "us-east-1"),
		EC2InstanceID:  os.Getenv("OPENCRAFT_EC2_INSTANCE_ID"),
		EC2AccessKeyID: os.Getenv("OPENCRAFT_EC2_ACCESS_KEY_ID"),

		FlyAppName:   os.Getenv("OPENCRAFT_FLY_APP"),
		FlyMachineID: os.Getenv("OPENCRAFT_FLY_MACHINE_ID"),

		ServerAddress: os.Getenv("OPENCRAFT_SERVER_ADDRESS"),
		StatusAPIURL:  envOrDefault("OPENCRAFT_STATUS_API_URL", "https://api.mcsrvstat.us"),
		ProbeTimeout:  envOrDefaultDuration("OPENCRAFT_PROBE_TIMEOUT", 10*time.Second),

		Notifier:           os.Getenv("OPENCRAFT_NOTIFIER"),
		StopCommand:        envOrDefault("OPENCRAFT_STOP_COMMAND", "stop"),
		StopScript:         envOrDefault("OPENCRAFT_STOP_SCRIPT", "rcon-cli stop"),
		DiscordChannelID:   os.Getenv("OPENCRAFT_DISCORD_CHANNEL_ID"),
		NATSConsoleSubject: envOrDefault("OPENCRAFT_NATS_CONSOLE_SUBJECT", "opencraft.console"),

		EventsSubject: os.Getenv("OPENCRAFT_EVENTS_SUBJECT"),

		LockTTL: envOrDefaultDuration("OPENCRAFT_LOCK_TTL", 10*time.Minute),

		SecretsARN:  os.Getenv("OPENCRAFT_SECRETS_ARN"),
		KeyVaultURL: os.Getenv("OPENCRAFT_KEYVAULT_URL"),
	}

	if portStr := os.Getenv("OPENCRAFT_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENCRAFT_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	cfg.applySecrets()
	return cfg, nil
}

// applySecrets (re)reads the secret-bearing fields from the environment.
func (c *Config) applySecrets() {
	c.APIKey = os.Getenv("OPENCRAFT_API_KEY")
	c.JWTSecret = os.Getenv("OPENCRAFT_JWT_SECRET")
	c.AzureClientSecret = envOrDefault("OPENCRAFT_AZURE_CLIENT_SECRET", os.Getenv("AZURE_CLIENT_SECRET"))
	c.EC2SecretAccessKey = os.Getenv("OPENCRAFT_EC2_SECRET_ACCESS_KEY")
	c.FlyAPIToken = envOrDefault("OPENCRAFT_FLY_API_TOKEN", os.Getenv("FLY_API_TOKEN"))
	c.DiscordBotToken = os.Getenv("OPENCRAFT_DISCORD_BOT_TOKEN")
	c.RedisURL = os.Getenv("OPENCRAFT_REDIS_URL")
	c.NATSURL = os.Getenv("OPENCRAFT_NATS_URL")
}

// Validate checks that the selected provider and notifier are fully configured.
func (c *Config) Validate() error {
	switch c.Provider {
	case "azure":
		if c.AzureSubscriptionID == "" || c.AzureResourceGroup == "" || c.AzureVMName == "" {
			return fmt.Errorf("azure provider requires OPENCRAFT_AZURE_SUBSCRIPTION_ID, OPENCRAFT_AZURE_RESOURCE_GROUP and OPENCRAFT_AZURE_VM_NAME")
		}
	case "ec2":
		if c.EC2InstanceID == "" {
			return fmt.Errorf("ec2 provider requires OPENCRAFT_EC2_INSTANCE_ID")
		}
	case "fly":
		if c.FlyAppName == "" || c.FlyMachineID == "" {
			return fmt.Errorf("fly provider requires OPENCRAFT_FLY_APP and OPENCRAFT_FLY_MACHINE_ID")
		}
	case "local":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	if c.ServerAddress == "" && !(c.Provider == "azure" && c.AzurePublicIPName != "") {
		return fmt.Errorf("OPENCRAFT_SERVER_ADDRESS is required unless OPENCRAFT_AZURE_PUBLIC_IP_NAME is set")
	}

	switch c.Notifier {
	case "":
	case "discord":
		if c.DiscordBotToken == "" || c.DiscordChannelID == "" {
			return fmt.Errorf("discord notifier requires OPENCRAFT_DISCORD_BOT_TOKEN and OPENCRAFT_DISCORD_CHANNEL_ID")
		}
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("nats notifier requires OPENCRAFT_NATS_URL")
		}
	case "ssm":
		if c.Provider != "ec2" {
			return fmt.Errorf("ssm notifier requires the ec2 provider")
		}
	case "azure-run-command":
		if c.Provider != "azure" {
			return fmt.Errorf("azure-run-command notifier requires the azure provider")
		}
	default:
		return fmt.Errorf("unknown notifier %q", c.Notifier)
	}

	if c.JWTSecret != "" && c.APIKey == "" {
		return fmt.Errorf("OPENCRAFT_JWT_SECRET requires OPENCRAFT_API_KEY to issue tokens")
	}

	if c.EventsSubject != "" && c.NATSURL == "" {
		return fmt.Errorf("OPENCRAFT_EVENTS_SUBJECT requires OPENCRAFT_NATS_URL")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Uses the default AWS credential chain.
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Extract region from ARN: arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if parts := strings.Split(arn, ":"); len(parts) >= 4 && parts[3] != "" {
		opts = append(opts, awsconfig.WithRegion(parts[3]))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}

	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}
	return applySecretJSON(*result.SecretString)
}

func applySecretJSON(raw string) error {
	var secrets map[string]string
	if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}
	for key, value := range secrets {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return nil
}

// SecretGetter is the subset of azsecrets.Client used to read Key Vault secrets.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// NewKeyVaultClient creates a Key Vault secrets client.
func NewKeyVaultClient(vaultURL string, cred azcore.TokenCredential) (*azsecrets.Client, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("key vault client: %w", err)
	}
	return client, nil
}

// LoadKeyVault fills secret-bearing fields from Key Vault. Secret names are the
// env var names with '_' replaced by '-' (Key Vault does not allow underscores).
// Missing secrets are skipped; explicit env vars always win. It returns the
// number of values applied.
func (c *Config) LoadKeyVault(ctx context.Context, client SecretGetter) (int, error) {
	applied := 0
	for _, key := range secretKeys {
		if os.Getenv(key) != "" {
			continue
		}
		name := strings.ReplaceAll(key, "_", "-")
		resp, err := client.GetSecret(ctx, name, "", nil)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return applied, fmt.Errorf("GetSecret %s: %w", name, err)
		}
		if resp.Value == nil {
			continue
		}
		os.Setenv(key, *resp.Value)
		applied++
	}
	c.applySecrets()
	return applied, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}
