package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the persisted blob store.
const (
	StorageBackendPostgres = "postgres"
	StorageBackendVault    = "vault"
	StorageBackendMemory   = "memory"
)

// Blob seal modes applied to persisted blobs at rest.
const (
	BlobSealNone = "none"
	BlobSealKMS  = "kms"
)

// Scrypt profiles. "standard" matches the parameters used for the
// on-disk keystore; "interactive" is a lighter profile for tests and
// low-memory deployments.
const (
	ScryptProfileStandard    = "standard"
	ScryptProfileInteractive = "interactive"
)

// Config holds infrastructure-level configuration
type Config struct {
	// Storage
	StorageBackend string
	PostgresDSN    string
	VaultAddress   string
	VaultToken     string
	VaultMount     string

	// Blob sealing
	BlobSeal     string
	KMSKeyID     string
	KMSKeyRegion string

	// Chain client
	EthRPCURL string

	// Session lockout policy. MaxUnlockAttempts failed unlocks in a row
	// trigger a lockout lasting LockoutDuration.
	MaxUnlockAttempts int
	LockoutDuration   time.Duration

	// Key derivation
	ScryptProfile string

	// Untrusted RPC surface rate limiting
	RateLimitRPS     int
	RateLimitBurst   int
	RateLimitEnabled bool

	// Server
	Port int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		StorageBackend:    getEnv("STORAGE_BACKEND", StorageBackendPostgres),
		PostgresDSN:       getEnv("POSTGRES_DSN", ""),
		VaultAddress:      getEnv("VAULT_ADDR", ""),
		VaultToken:        getEnv("VAULT_TOKEN", ""),
		VaultMount:        getEnv("VAULT_MOUNT", "secret"),
		BlobSeal:          getEnv("BLOB_SEAL", BlobSealNone),
		KMSKeyID:          getEnv("KMS_KEY_ID", ""),
		KMSKeyRegion:      getEnv("KMS_KEY_REGION", ""),
		EthRPCURL:         getEnv("ETH_RPC_URL", ""),
		MaxUnlockAttempts: getEnvInt("MAX_UNLOCK_ATTEMPTS", 5),
		LockoutDuration:   getEnvDuration("LOCKOUT_DURATION", 60*time.Second),
		ScryptProfile:     getEnv("SCRYPT_PROFILE", ScryptProfileStandard),
		RateLimitRPS:      getEnvInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 20),
		RateLimitEnabled:  getEnvBool("RATE_LIMIT_ENABLED", true),
		Port:              getEnvInt("PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageBackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_BACKEND is 'postgres'")
		}
	case StorageBackendVault:
		if c.VaultAddress == "" || c.VaultToken == "" {
			return fmt.Errorf("VAULT_ADDR and VAULT_TOKEN are required when STORAGE_BACKEND is 'vault'")
		}
	case StorageBackendMemory:
		// No backing config needed; state is lost on restart.
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'postgres', 'vault', or 'memory', got: %s", c.StorageBackend)
	}

	switch c.BlobSeal {
	case BlobSealNone:
	case BlobSealKMS:
		if c.KMSKeyID == "" {
			return fmt.Errorf("KMS_KEY_ID is required when BLOB_SEAL is 'kms'")
		}
	default:
		return fmt.Errorf("BLOB_SEAL must be 'none' or 'kms', got: %s", c.BlobSeal)
	}

	if c.ScryptProfile != ScryptProfileStandard && c.ScryptProfile != ScryptProfileInteractive {
		return fmt.Errorf("SCRYPT_PROFILE must be 'standard' or 'interactive', got: %s", c.ScryptProfile)
	}

	if c.MaxUnlockAttempts < 1 {
		return fmt.Errorf("MAX_UNLOCK_ATTEMPTS must be at least 1, got: %d", c.MaxUnlockAttempts)
	}

	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive, got: %s", c.LockoutDuration)
	}

	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
