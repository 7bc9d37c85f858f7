package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	ServerPort string `env:"SERVER_PORT,default=8080"`
	Env        string `env:"APP_ENV,default=local"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE,default=pos"`

	NocoBaseURL          string `env:"NOCO_BASE_URL"`
	NocoAPIToken         string `env:"NOCO_API_TOKEN"`
	NocoTableWaiterOps   string `env:"NOCO_TABLE_WAITER_OPS"`
	NocoTableChefOrders  string `env:"NOCO_TABLE_CHEF_ORDERS"`
	NocoTableCashierTxns string `env:"NOCO_TABLE_CASHIER_TXNS"`

	NocoMCPBaseURL string `env:"NOCO_MCP_BASE_URL"`
	NocoMCPToken   string `env:"NOCO_MCP_TOKEN"`
	NocoBaseID     string `env:"NOCO_BASE_ID"`

	ConflictPolicy        string `env:"SYNC_CONFLICT_POLICY,default=source_priority"`
	PriorityTableService  int    `env:"SYNC_PRIORITY_NOCO,default=2"`
	PriorityDocumentStore int    `env:"SYNC_PRIORITY_MONGO,default=1"`
	ResolveDirections     string `env:"SYNC_RESOLVE_DIRECTIONS,default=table_service_to_document_store"`
	StrictSchema          bool   `env:"SYNC_STRICT_SCHEMA,default=false"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH,default=sync_ledger.db"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret         string `env:"JWT_SECRET"`
	WebhookSecretHash string `env:"WEBHOOK_SECRET_HASH"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Validate required fields
	if cfg.MongoURI == "" {
		return nil, errors.New("MONGODB_URI is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.ConflictPolicy {
	case "last_write_wins", "source_priority":
	default:
		return fmt.Errorf("invalid SYNC_CONFLICT_POLICY %q", c.ConflictPolicy)
	}
	switch c.ResolveDirections {
	case "table_service_to_document_store", "both":
	default:
		return fmt.Errorf("invalid SYNC_RESOLVE_DIRECTIONS %q", c.ResolveDirections)
	}
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("invalid APP_ENV %q", c.Env)
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS into its entries.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TableServiceEnv reports which NocoDB REST settings are present, without values.
func (c *Config) TableServiceEnv() map[string]bool {
	return map[string]bool{
		"NOCO_BASE_URL":           c.NocoBaseURL != "",
		"NOCO_API_TOKEN":          c.NocoAPIToken != "",
		"NOCO_TABLE_WAITER_OPS":   c.NocoTableWaiterOps != "",
		"NOCO_TABLE_CHEF_ORDERS":  c.NocoTableChefOrders != "",
		"NOCO_TABLE_CASHIER_TXNS": c.NocoTableCashierTxns != "",
	}
}

// MCPEnv reports the NocoDB MCP settings. Only the base id is shown verbatim.
func (c *Config) MCPEnv() map[string]any {
	var baseID any
	if c.NocoBaseID != "" {
		baseID = c.NocoBaseID
	}
	return map[string]any{
		"NOCO_MCP_BASE_URL": c.NocoMCPBaseURL != "",
		"NOCO_MCP_TOKEN":    c.NocoMCPToken != "",
		"NOCO_BASE_ID":      baseID,
	}
}
