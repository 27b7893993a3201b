package tradematch

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/config"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// Backend describes one OpenAI-compatible AI endpoint (Ollama, vLLM or a
// hosted API).
type Backend struct {
	Name           string
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int
	// SendDimensions asks the API to truncate vectors to Dimensions.
	SendDimensions bool
	// Instruction is prefixed to every text embedded for storage.
	Instruction string
	// DailyTokenLimit and MonthlyTokenLimit reject calls once spent; 0 = unlimited.
	DailyTokenLimit   int64
	MonthlyTokenLimit int64
}

const (
	defaultHashBackend    = "hash"
	defaultHashDimensions = 384
	// facade never listens, Validate still wants a port
	unusedHTTPPort = 8080
)

type clientConfig struct {
	cfg     config.Config
	weights *Weights
	logger  *zap.Logger
	err     error
}

// WithConfigFile loads a YAML configuration, the same format the tradematch
// binary reads. Pass it first: it replaces whatever earlier options set, and
// later options override the file.
func WithConfigFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		cfg, err := config.LoadFile(path)
		if err != nil {
			c.err = err
			return
		}
		c.cfg = cfg
	})
}

// WithRedis connects to Redis.
func WithRedis(password string, addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Database.Driver = "redis"
		c.cfg.Database.Addrs = addrs
		c.cfg.Database.Password = password
	})
}

// WithValkey connects to Valkey.
func WithValkey(password string, addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Database.Driver = "valkey"
		c.cfg.Database.Addrs = addrs
		c.cfg.Database.Password = password
	})
}

// WithCatalog points the engine at the host backend's item and member tables.
// driver is "sqlite3" or "postgres".
func WithCatalog(driver, dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Catalog.Driver = driver
		c.cfg.Catalog.DSN = dsn
	})
}

// WithCatalogTables overrides the default "items" and "members" table names.
func WithCatalogTables(items, members string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Catalog.ItemsTable = items
		c.cfg.Catalog.MembersTable = members
	})
}

// WithAutoMigrate creates the catalog tables if they do not exist.
func WithAutoMigrate() Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Catalog.AutoMigrate = true
	})
}

// WithPrimaryBackend sets the AI backend tried first.
func WithPrimaryBackend(b Backend) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.Primary = c.addBackend(b, "primary")
	})
}

// WithSecondaryBackend sets the fallback AI backend.
func WithSecondaryBackend(b Backend) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Embedding.Secondary = c.addBackend(b, "secondary")
	})
}

// WithHashEmbedder uses the deterministic offline embedder as primary backend.
// Vectors carry no semantics; meant for tests and local development.
func WithHashEmbedder(dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.setProvider(defaultHashBackend, config.ProviderConfig{Kind: config.KindHash, Dimensions: dimensions})
		c.cfg.Embedding.Primary = defaultHashBackend
	})
}

// WithTimeZone sets the IANA zone whose calendar day bounds view dedup.
func WithTimeZone(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Interaction.TimeZone = name
	})
}

// WithWeights sets the initial scoring weights.
func WithWeights(w Weights) Option {
	return optionFunc(func(c *clientConfig) {
		c.weights = &w
	})
}

// WithWeightsFile loads scoring weights from a YAML file. When watch is set,
// edits to the file are applied without a restart.
func WithWeightsFile(path string, watch bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Ranking.WeightsFile = path
		c.cfg.Ranking.WatchWeights = watch
	})
}

// WithPaging sets the default and maximum page size.
func WithPaging(defaultSize, maxSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Ranking.DefaultPageSize = defaultSize
		c.cfg.Ranking.MaxPageSize = maxSize
	})
}

// WithWorkers sets the concurrency of each background worker.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.cfg.Queue.Workers = n
	})
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

func (c *clientConfig) addBackend(b Backend, fallbackName string) string {
	name := b.Name
	if name == "" {
		name = fallbackName
	}
	c.setProvider(name, config.ProviderConfig{
		Kind:                config.KindOpenAI,
		APIKey:              b.APIKey,
		BaseURL:             b.BaseURL,
		EmbeddingModel:      b.EmbeddingModel,
		ChatModel:           b.ChatModel,
		Dimensions:          b.Dimensions,
		SendDimensions:      b.SendDimensions,
		DocumentInstruction: b.Instruction,
		Budget: config.BudgetConfig{
			DailyTokenLimit:   b.DailyTokenLimit,
			MonthlyTokenLimit: b.MonthlyTokenLimit,
			Action:            "reject",
		},
	})
	return name
}

func (c *clientConfig) setProvider(name string, pc config.ProviderConfig) {
	if c.cfg.Embedding.Providers == nil {
		c.cfg.Embedding.Providers = make(map[string]config.ProviderConfig)
	}
	c.cfg.Embedding.Providers[name] = pc
}

// finalize fills what neither the file nor the options set.
func (c *clientConfig) finalize() {
	if c.cfg.HTTP.Port == 0 {
		c.cfg.HTTP.Port = unusedHTTPPort
	}
	if c.cfg.Embedding.Primary == "" {
		c.setProvider(defaultHashBackend, config.ProviderConfig{Kind: config.KindHash, Dimensions: defaultHashDimensions})
		c.cfg.Embedding.Primary = defaultHashBackend
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.cfg.ApplyDefaults()
}
