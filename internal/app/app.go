// Package app is the composition root shared by the tradematch binary and the
// embeddable library: it turns a Config into wired services.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/config"
	dbRedis "github.com/kailas-cloud/tradematch/internal/db/redis"
	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	"github.com/kailas-cloud/tradematch/internal/metrics"
	"github.com/kailas-cloud/tradematch/internal/queue"
	budgetrepo "github.com/kailas-cloud/tradematch/internal/repository/budget"
	"github.com/kailas-cloud/tradematch/internal/repository/catalog"
	"github.com/kailas-cloud/tradematch/internal/repository/embcache"
	embeddingrepo "github.com/kailas-cloud/tradematch/internal/repository/embedding"
	interactionrepo "github.com/kailas-cloud/tradematch/internal/repository/interaction"
	"github.com/kailas-cloud/tradematch/internal/supervisor"
	"github.com/kailas-cloud/tradematch/internal/transport/hashvec"
	openaiBackend "github.com/kailas-cloud/tradematch/internal/transport/openai"
	appraisaluc "github.com/kailas-cloud/tradematch/internal/usecase/appraisal"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/tradematch/internal/usecase/health"
	interactionuc "github.com/kailas-cloud/tradematch/internal/usecase/interaction"
	memberuc "github.com/kailas-cloud/tradematch/internal/usecase/member"
	rankinguc "github.com/kailas-cloud/tradematch/internal/usecase/ranking"
	scoringuc "github.com/kailas-cloud/tradematch/internal/usecase/scoring"
)

const (
	budgetDailyTTL   = 48 * time.Hour
	budgetMonthlyTTL = 62 * 24 * time.Hour
	subscribeTimeout = 5 * time.Second
)

// Topics consumed by the workers Build registers.
var Topics = []string{
	queue.TopicInteraction,
	queue.TopicItemEmbedding,
	queue.TopicItemEmbeddingBatch,
	queue.TopicPreferenceEmbedding,
}

// App holds every wired service of one engine instance.
type App struct {
	Config       config.Config
	Store        *dbRedis.Store
	Catalog      *catalog.Repo
	Provider     *embeddinguc.FallbackProvider
	Indexer      *embeddinguc.Indexer
	Interactions *interactionuc.Service
	Members      *memberuc.Service
	Ranker       *rankinguc.Service
	Weights      *scoringuc.Holder
	Appraisal    *appraisaluc.Service
	Health       *healthuc.Service
	Bus          *queue.Bus
	Budgets      embeddinguc.Budgets

	logger *zap.Logger
}

// Build connects to the stores and wires the services. The caller owns the
// returned App and must Close it.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterEngineMetrics()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	cat, err := catalog.Open(ctx, catalog.Config{
		Driver:       cfg.Catalog.Driver,
		DSN:          cfg.Catalog.DSN,
		ItemsTable:   cfg.Catalog.ItemsTable,
		MembersTable: cfg.Catalog.MembersTable,
		AutoMigrate:  cfg.Catalog.AutoMigrate,
		MaxOpenConns: cfg.Catalog.MaxOpenConns,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	return assemble(ctx, cfg, store, cat, logger)
}

// assemble wires the services over already opened stores. On error the
// stores are closed.
func assemble(ctx context.Context, cfg config.Config, store *dbRedis.Store, cat *catalog.Repo, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Store: store, Catalog: cat, logger: logger}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	provider := a.buildProviderChain(ctx)
	a.Provider = provider

	var err error
	initial := scoring.DefaultWeights()
	if cfg.Ranking.WeightsFile != "" {
		if initial, err = scoringuc.LoadFile(cfg.Ranking.WeightsFile); err != nil {
			return fmt.Errorf("load scoring weights: %w", err)
		}
	}
	if a.Weights, err = scoringuc.NewHolder(initial, a.logger); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}

	loc, err := cfg.Interaction.Location()
	if err != nil {
		return err
	}

	vectors := embeddingrepo.New(a.Store)
	a.Indexer = embeddinguc.NewIndexer(provider, vectors, a.logger.Named("indexer"))
	a.Interactions = interactionuc.New(
		interactionrepo.New(a.Store), a.Weights, loc,
		time.Duration(cfg.Interaction.ViewTTLHours)*time.Hour, a.logger.Named("interactions"),
	)
	a.Members = memberuc.New(a.Indexer, a.Interactions, a.logger.Named("members"))
	a.Ranker = rankinguc.New(
		a.Catalog, vectors, a.Interactions, a.Weights,
		rankinguc.Config{PreferenceTimeout: cfg.Ranking.PreferenceTimeout()},
		a.logger.Named("ranker"),
	)
	a.Appraisal = appraisaluc.New(provider, a.logger.Named("appraisal"))
	a.Health = healthuc.New(a.Store, a.Catalog, provider)
	a.Bus = queue.NewBus(queue.Config{
		Buffer:     cfg.Queue.Buffer,
		MaxPending: cfg.Queue.MaxPending,
	}, a.logger.Named("queue"))
	return nil
}

// Supervise registers the queue workers and, when configured, the weights
// file watcher on the background layer of tree.
func (a *App) Supervise(tree *supervisor.Tree) {
	timeout := time.Duration(a.Config.Queue.JobTimeoutSec) * time.Second
	workers := a.Config.Queue.Workers
	handlers := map[string]queue.Handler{
		queue.TopicInteraction:         queue.InteractionHandler(a.Interactions),
		queue.TopicItemEmbedding:       queue.ItemEmbeddingHandler(a.Indexer),
		queue.TopicItemEmbeddingBatch:  queue.ItemEmbeddingBatchHandler(a.Indexer),
		queue.TopicPreferenceEmbedding: queue.PreferenceEmbeddingHandler(a.Indexer),
	}
	for _, topic := range Topics {
		tree.AddBackground(queue.NewWorker(a.Bus, topic, workers, timeout, handlers[topic], a.logger.Named("worker")))
	}

	if a.Config.Ranking.WatchWeights && a.Config.Ranking.WeightsFile != "" {
		tree.AddBackground(scoringuc.NewFileWatcher(a.Config.Ranking.WeightsFile, a.Weights, a.logger.Named("weights")))
	}
}

// WaitForWorkers blocks until every topic has a subscribed worker, so events
// published right after startup are not dropped.
func (a *App) WaitForWorkers(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	defer cancel()
	return a.Bus.WaitForSubscribers(ctx, Topics...)
}

// Close releases the bus and both stores.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Store != nil {
		a.Store.Close()
	}
	return errors.Join(errs...)
}

// buildProviderChain assembles, per backend:
// base -> instruction prefix -> cache -> instrumented (budget + metrics),
// then puts the primary and optional secondary behind the breaker fallback.
func (a *App) buildProviderChain(ctx context.Context) *embeddinguc.FallbackProvider {
	emb := a.Config.Embedding

	primary := a.buildProvider(ctx, emb.Primary, emb.Providers[emb.Primary])

	// Pass nil interface (not typed nil pointer!) when there is no secondary.
	var secondary domain.Provider
	if emb.Secondary != "" {
		secondary = a.buildProvider(ctx, emb.Secondary, emb.Providers[emb.Secondary])
	}

	a.logger.Info("AI backends configured",
		zap.String("primary", emb.Primary),
		zap.String("secondary", emb.Secondary),
		zap.Int("dimensions", primary.Dimensions()),
	)

	return embeddinguc.NewFallbackProvider(primary, secondary, embeddinguc.BreakerConfig{
		ConsecutiveFailures: emb.Breaker.ConsecutiveFailures,
		MaxRequests:         emb.Breaker.MaxRequests,
		Interval:            time.Duration(emb.Breaker.IntervalSec) * time.Second,
		Timeout:             time.Duration(emb.Breaker.OpenTimeoutSec) * time.Second,
	}, a.logger.Named("fallback"))
}

func (a *App) buildProvider(ctx context.Context, name string, pc config.ProviderConfig) domain.Provider {
	var base domain.Provider
	switch pc.Kind {
	case config.KindHash:
		base = hashvec.New(name, pc.Dimensions)
	default:
		base = openaiBackend.NewBackend(&openaiBackend.Config{
			Name:           name,
			APIKey:         pc.APIKey,
			BaseURL:        pc.BaseURL,
			EmbeddingModel: pc.EmbeddingModel,
			ChatModel:      pc.ChatModel,
			Dimensions:     pc.Dimensions,
			SendDimensions: pc.SendDimensions,
			Currency:       pc.Currency,
			Timeout:        pc.Timeout(),
			RateLimit:      pc.Rate.RequestsPerSec,
			RateBurst:      pc.Rate.Burst,
			Logger:         a.logger.Named(name),
		})
	}

	// Instruction prefix sits inside the cache, so the cache key includes it.
	p := domain.NewInstructionProvider(base, pc.DocumentInstruction)

	namespace := fmt.Sprintf("%s:%s:%d", name, pc.EmbeddingModel, base.Dimensions())
	ttl := time.Duration(a.Config.Embedding.CacheTTLHours) * time.Hour
	p = embcache.New(p, a.Store, namespace, ttl, metrics.EmbeddingCacheTotal, a.logger.Named("embcache"))

	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budget embeddinguc.BudgetChecker
	if b := pc.Budget; b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if b.Action == string(embeddinguc.BudgetActionReject) {
			action = embeddinguc.BudgetActionReject
		}
		tracker := embeddinguc.NewBudgetTracker(name, b.DailyTokenLimit, b.MonthlyTokenLimit, action, a.logger.Named("budget")).
			WithStore(ctx, budgetrepo.New(a.Store, budgetDailyTTL, budgetMonthlyTTL))
		a.Budgets = append(a.Budgets, tracker)
		budget = tracker
	}

	return embeddinguc.NewInstrumentedProvider(p, pc.EmbeddingModel, budget, a.logger.Named(name))
}
