package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata" // time zones resolve in minimal containers

	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	KindOpenAI = "openai" // any OpenAI-compatible endpoint (Ollama, vLLM, hosted APIs)
	KindHash   = "hash"   // deterministic stand-in, no network
)

// Config holds the tradematch service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Interaction InteractionConfig `yaml:"interaction"`
	Queue       QueueConfig       `yaml:"queue"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
// Admin keys are accepted everywhere; api keys are rejected on /v1/admin.
type AuthConfig struct {
	APIKeys   []string `yaml:"api_keys"`
	AdminKeys []string `yaml:"admin_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Redis/Valkey connection.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CatalogConfig points at the host backend's item and member tables.
type CatalogConfig struct {
	Driver       string `yaml:"driver"` // sqlite3, postgres
	DSN          string `yaml:"dsn"`
	ItemsTable   string `yaml:"items_table"`
	MembersTable string `yaml:"members_table"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// EmbeddingConfig holds the AI backends and the fallback chain.
type EmbeddingConfig struct {
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Primary       string                    `yaml:"primary"`
	Secondary     string                    `yaml:"secondary"` // optional
	CacheTTLHours int                       `yaml:"cache_ttl_hours"`
	Breaker       BreakerConfig             `yaml:"breaker"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// RateConfig limits outbound calls to one backend.
type RateConfig struct {
	RequestsPerSec float64 `yaml:"requests_per_sec"` // 0 = unlimited
	Burst          int     `yaml:"burst"`
}

// BreakerConfig guards each backend of the fallback chain.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	MaxRequests         uint32 `yaml:"half_open_max_requests"`
	IntervalSec         int    `yaml:"interval_sec"`
	OpenTimeoutSec      int    `yaml:"open_timeout_sec"`
}

// ProviderConfig holds one AI backend.
type ProviderConfig struct {
	Kind                string       `yaml:"kind"` // openai (default), hash
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	EmbeddingModel      string       `yaml:"embedding_model"`
	ChatModel           string       `yaml:"chat_model"`
	Dimensions          int          `yaml:"dimensions"`
	SendDimensions      bool         `yaml:"send_dimensions"`
	DocumentInstruction string       `yaml:"document_instruction"`
	Currency            string       `yaml:"currency"`
	TimeoutMs           int          `yaml:"timeout_ms"`
	Rate                RateConfig   `yaml:"rate"`
	Budget              BudgetConfig `yaml:"budget"`
}

// Timeout returns the per-call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// RankingConfig holds the ranker settings.
type RankingConfig struct {
	WeightsFile         string `yaml:"weights_file"` // optional, hot reloaded when watch_weights is set
	WatchWeights        bool   `yaml:"watch_weights"`
	PreferenceTimeoutMs int    `yaml:"preference_timeout_ms"`
	DefaultPageSize     int    `yaml:"default_page_size"`
	MaxPageSize         int    `yaml:"max_page_size"`
}

// PreferenceTimeout returns the bound on the preference vector fetch.
func (r RankingConfig) PreferenceTimeout() time.Duration {
	return time.Duration(r.PreferenceTimeoutMs) * time.Millisecond
}

// InteractionConfig holds the view dedup settings.
type InteractionConfig struct {
	TimeZone     string `yaml:"time_zone"` // IANA name, calendar day boundary for view dedup
	ViewTTLHours int    `yaml:"view_ttl_hours"`
}

// Location resolves the configured time zone.
func (i InteractionConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(i.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", i.TimeZone, err)
	}
	return loc, nil
}

// QueueConfig tunes the in-process job queue and its workers.
type QueueConfig struct {
	Buffer        int64 `yaml:"buffer"`
	MaxPending    int64 `yaml:"max_pending"`
	Workers       int   `yaml:"workers"`
	JobTimeoutSec int   `yaml:"job_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = "sqlite3"
	}
	if c.Catalog.ItemsTable == "" {
		c.Catalog.ItemsTable = "items"
	}
	if c.Catalog.MembersTable == "" {
		c.Catalog.MembersTable = "members"
	}

	for name, p := range c.Embedding.Providers {
		if p.Kind == "" {
			p.Kind = KindOpenAI
		}
		if p.TimeoutMs <= 0 {
			p.TimeoutMs = 10_000
		}
		if p.Currency == "" {
			p.Currency = "KRW"
		}
		c.Embedding.Providers[name] = p
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 7
	}
	if c.Embedding.Breaker.ConsecutiveFailures == 0 {
		c.Embedding.Breaker.ConsecutiveFailures = 5
	}
	if c.Embedding.Breaker.MaxRequests == 0 {
		c.Embedding.Breaker.MaxRequests = 1
	}
	if c.Embedding.Breaker.OpenTimeoutSec <= 0 {
		c.Embedding.Breaker.OpenTimeoutSec = 30
	}

	if c.Ranking.PreferenceTimeoutMs <= 0 {
		c.Ranking.PreferenceTimeoutMs = 300
	}
	if c.Ranking.DefaultPageSize <= 0 {
		c.Ranking.DefaultPageSize = 20
	}
	if c.Ranking.MaxPageSize <= 0 {
		c.Ranking.MaxPageSize = 100
	}

	if c.Interaction.TimeZone == "" {
		c.Interaction.TimeZone = "UTC"
	}
	if c.Interaction.ViewTTLHours <= 0 {
		c.Interaction.ViewTTLHours = 48
	}

	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 256
	}
	if c.Queue.MaxPending <= 0 {
		c.Queue.MaxPending = 10_000
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.JobTimeoutSec <= 0 {
		c.Queue.JobTimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Catalog.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("catalog.driver must be \"sqlite3\" or \"postgres\", got %q", c.Catalog.Driver)
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("catalog.dsn is required")
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	if c.Ranking.DefaultPageSize > c.Ranking.MaxPageSize {
		return fmt.Errorf("ranking.default_page_size (%d) exceeds ranking.max_page_size (%d)",
			c.Ranking.DefaultPageSize, c.Ranking.MaxPageSize)
	}
	if c.Ranking.WatchWeights && c.Ranking.WeightsFile == "" {
		return fmt.Errorf("ranking.watch_weights requires ranking.weights_file")
	}
	if _, err := c.Interaction.Location(); err != nil {
		return fmt.Errorf("interaction.time_zone: %w", err)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if c.Embedding.Primary == "" {
		return fmt.Errorf("embedding.primary is required")
	}
	for _, ref := range []string{c.Embedding.Primary, c.Embedding.Secondary} {
		if ref == "" {
			continue
		}
		if _, ok := c.Embedding.Providers[ref]; !ok {
			return fmt.Errorf("embedding provider %q is not defined in embedding.providers", ref)
		}
	}
	if c.Embedding.Secondary == c.Embedding.Primary {
		return fmt.Errorf("embedding.secondary must differ from embedding.primary")
	}

	for name, p := range c.Embedding.Providers {
		switch p.Kind {
		case "", KindOpenAI, KindHash:
		default:
			return fmt.Errorf("embedding.providers.%s.kind must be %q or %q, got %q", name, KindOpenAI, KindHash, p.Kind)
		}
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"embedding.providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
		if p.Dimensions < 0 {
			return fmt.Errorf("embedding.providers.%s.dimensions must be >= 0", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
