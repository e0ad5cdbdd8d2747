package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"HW_ENV"`
	HTTPAddr string `mapstructure:"HW_HTTP_ADDR"`

	Relay    RelayConfig    `mapstructure:",squash"`
	Store    StoreConfig    `mapstructure:",squash"`
	Vault    VaultConfig    `mapstructure:",squash"`
	Approval ApprovalConfig `mapstructure:",squash"`
	Redirect RedirectConfig `mapstructure:",squash"`
	Networks NetworkConfig  `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type RelayConfig struct {
	URL          string        `mapstructure:"HW_RELAY_URL"`          // wss endpoint, or "local" for the in-process bus
	PingInterval time.Duration `mapstructure:"HW_RELAY_PING_INTERVAL"`
	WriteTimeout time.Duration `mapstructure:"HW_RELAY_WRITE_TIMEOUT"`
}

type StoreConfig struct {
	Backend  string `mapstructure:"HW_KV_BACKEND"` // "memory" or "redis"
	RedisURL string `mapstructure:"HW_REDIS_URL"`
}

type VaultConfig struct {
	Path         string `mapstructure:"HW_VAULT_PATH"`
	Passphrase   string `mapstructure:"HW_VAULT_PASSPHRASE"` // usually injected via environment
	AccountIndex uint32 `mapstructure:"HW_VAULT_ACCOUNT_INDEX"`
}

type ApprovalConfig struct {
	// DecisionTimeout bounds how long a request may sit in the approval queue.
	// Zero disables the timeout and a request waits for an explicit decision.
	DecisionTimeout time.Duration `mapstructure:"HW_APPROVAL_TIMEOUT"`
}

type RedirectConfig struct {
	WebhookURL string        `mapstructure:"HW_REDIRECT_WEBHOOK_URL"` // empty disables redirect notifications
	Timeout    time.Duration `mapstructure:"HW_REDIRECT_TIMEOUT"`
}

// EVMNetwork is one entry parsed from HW_EVM_NETWORKS ("eip155:1=https://rpc,...").
type EVMNetwork struct {
	ID      string
	ChainID int64
	RPCURL  string
}

type NetworkConfig struct {
	// Raw comma-separated network spec; parsed into EVM by Load.
	EVMSpec string `mapstructure:"HW_EVM_NETWORKS"`

	EVM []EVMNetwork `mapstructure:"-"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"HW_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"HW_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("HW_ENV", "dev")
	viper.SetDefault("HW_HTTP_ADDR", ":8080")
	viper.SetDefault("HW_RELAY_URL", "local")
	viper.SetDefault("HW_RELAY_PING_INTERVAL", "30s")
	viper.SetDefault("HW_RELAY_WRITE_TIMEOUT", "10s")
	viper.SetDefault("HW_KV_BACKEND", "memory")
	viper.SetDefault("HW_REDIS_URL", "redis://127.0.0.1:6379/0")
	viper.SetDefault("HW_VAULT_PATH", "vault.json")
	viper.SetDefault("HW_VAULT_ACCOUNT_INDEX", 0)
	viper.SetDefault("HW_APPROVAL_TIMEOUT", "5m")
	viper.SetDefault("HW_REDIRECT_TIMEOUT", "5s")
	viper.SetDefault("HW_EVM_NETWORKS", "eip155:1=https://eth.llamarpc.com")
	viper.SetDefault("HW_RATE_LIMIT_RPM", 120)
	viper.SetDefault("HW_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Handle array parsing for comma-separated values
	if origins := viper.GetString("HW_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("HW_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	networks, err := parseEVMNetworks(cfg.Networks.EVMSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid HW_EVM_NETWORKS: %w", err)
	}
	cfg.Networks.EVM = networks

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseEVMNetworks parses "eip155:1=https://rpc1,eip155:137=https://rpc2".
// The chain id is taken from the eip155 reference.
func parseEVMNetworks(spec string) ([]EVMNetwork, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var networks []EVMNetwork
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, rpcURL, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not of the form <caip2>=<rpc-url>", entry)
		}
		ref, okPrefix := strings.CutPrefix(id, "eip155:")
		if !okPrefix {
			return nil, fmt.Errorf("network id %q is not an eip155 identifier", id)
		}
		chainID, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("network id %q has a non-numeric chain reference", id)
		}
		networks = append(networks, EVMNetwork{
			ID:      id,
			ChainID: chainID,
			RPCURL:  rpcURL,
		})
	}
	return networks, nil
}

func (c *Config) validate() error {
	if c.Relay.URL == "" {
		return fmt.Errorf("HW_RELAY_URL is required")
	}
	if c.Vault.Path == "" {
		return fmt.Errorf("HW_VAULT_PATH is required")
	}
	if len(c.Networks.EVM) == 0 {
		return fmt.Errorf("HW_EVM_NETWORKS must declare at least one network")
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return fmt.Errorf("HW_KV_BACKEND must be \"memory\" or \"redis\", got %q", c.Store.Backend)
	}
	if c.Approval.DecisionTimeout < 0 {
		return fmt.Errorf("HW_APPROVAL_TIMEOUT must not be negative")
	}
	return nil
}
