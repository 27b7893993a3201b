package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/config"
	dbRedis "github.com/kailas-cloud/tradematch/internal/db/redis"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	"github.com/kailas-cloud/tradematch/internal/repository/catalog"
	"github.com/kailas-cloud/tradematch/internal/supervisor"
	healthuc "github.com/kailas-cloud/tradematch/internal/usecase/health"
)

func testConfig() config.Config {
	cfg := config.Config{
		HTTP:     config.HTTPConfig{Port: 8080},
		Database: config.DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Catalog:  config.CatalogConfig{DSN: ":memory:", AutoMigrate: true, MaxOpenConns: 1},
		Embedding: config.EmbeddingConfig{
			Primary:   "local",
			Secondary: "cloud",
			Providers: map[string]config.ProviderConfig{
				"local": {Kind: config.KindHash, Dimensions: 8},
				"cloud": {
					Kind:       config.KindHash,
					Dimensions: 8,
					Budget:     config.BudgetConfig{DailyTokenLimit: 1000, Action: "reject"},
				},
			},
		},
		Interaction: config.InteractionConfig{TimeZone: "Asia/Seoul"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// newStores returns a store whose every command answers PONG, plus an
// in-memory catalog.
func newStores(t *testing.T) (*dbRedis.Store, *catalog.Repo) {
	t.Helper()
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().Do(gomock.Any(), gomock.Any()).Return(mock.Result(mock.RedisString("PONG"))).AnyTimes()
	c.EXPECT().Close().AnyTimes()

	cat, err := catalog.Open(context.Background(), catalog.Config{
		Driver:       catalog.DriverSQLite,
		DSN:          ":memory:",
		AutoMigrate:  true,
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	return dbRedis.NewStoreForTest(c), cat
}

func TestAssemble_WiresServices(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	store, cat := newStores(t)

	a, err := assemble(context.Background(), cfg, store, cat, zap.NewNop())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer a.Close()

	if a.Provider.Name() != "fallback(local,cloud)" {
		t.Errorf("provider = %s", a.Provider.Name())
	}
	if a.Provider.Dimensions() != 8 {
		t.Errorf("dimensions = %d", a.Provider.Dimensions())
	}
	if len(a.Budgets) != 1 || a.Budgets.Usage()[0].DailyLimit != 1000 {
		t.Errorf("budgets = %d", len(a.Budgets))
	}
	if a.Weights.Load() != scoring.DefaultWeights() {
		t.Errorf("weights = %+v", a.Weights.Load())
	}
	for name, ok := range map[string]bool{
		"indexer":      a.Indexer != nil,
		"interactions": a.Interactions != nil,
		"members":      a.Members != nil,
		"ranker":       a.Ranker != nil,
		"appraisal":    a.Appraisal != nil,
		"health":       a.Health != nil,
		"bus":          a.Bus != nil,
	} {
		if !ok {
			t.Errorf("%s not wired", name)
		}
	}

	report := a.Health.Check(context.Background())
	if report.Status != healthuc.Healthy {
		t.Errorf("health = %+v", report)
	}
}

func TestAssemble_WeightsFileMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Ranking.WeightsFile = filepath.Join(t.TempDir(), "missing.yaml")
	store, cat := newStores(t)

	if _, err := assemble(context.Background(), cfg, store, cat, zap.NewNop()); err == nil {
		t.Fatal("expected weights file error")
	}
}

func TestSupervise_WorkersSubscribe(t *testing.T) {
	store, cat := newStores(t)
	a, err := assemble(context.Background(), testConfig(), store, cat, zap.NewNop())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	defer a.Close()

	tree := supervisor.NewTree(zap.NewNop(), supervisor.TreeConfig{ShutdownTimeout: time.Second})
	a.Supervise(tree)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-done
	}()

	if err := a.WaitForWorkers(context.Background()); err != nil {
		t.Fatalf("workers did not subscribe: %v", err)
	}
}
