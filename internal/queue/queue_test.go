package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/tradematch/internal/domain"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/metrics"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
)

func TestMain(m *testing.M) {
	metrics.RegisterEngineMetrics()
	os.Exit(m.Run())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startWorker(t *testing.T, b *Bus, topic string, h Handler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorker(b, topic, 2, time.Second, h, zap.NewNop())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()
	waitFor(t, func() bool { return b.hasSubscriber(topic) })
	return func() {
		cancel()
		<-done
	}
}

func TestBus_DeliversToWorker(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()

	var mu sync.Mutex
	var got []ItemEmbeddingJob
	stop := startWorker(t, b, TopicItemEmbedding, JSON(func(_ context.Context, job ItemEmbeddingJob) error {
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
		return nil
	}))
	defer stop()

	for _, id := range []string{"i1", "i2", "i3"} {
		if err := b.Publish(TopicItemEmbedding, ItemEmbeddingJob{ItemID: id, Text: "t"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	waitFor(t, func() bool { return b.Pending() == 0 })
}

func TestBus_NoSubscriberDrops(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()

	if err := b.Publish("nobody", ItemEmbeddingJob{}); !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber, got %v", err)
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d", b.Pending())
	}
}

func TestBus_WaitForSubscribers(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := b.WaitForSubscribers(ctx, TopicInteraction); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	stop := startWorker(t, b, TopicInteraction, func(context.Context, []byte) error { return nil })
	defer stop()
	if err := b.WaitForSubscribers(context.Background(), TopicInteraction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBus_FullDrops(t *testing.T) {
	b := NewBus(Config{Buffer: 1, MaxPending: 1}, zap.NewNop())
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// subscribed but never reading
	if _, err := b.subscribe(ctx, "slow"); err != nil {
		t.Fatal(err)
	}

	if err := b.Publish("slow", ItemEmbeddingJob{ItemID: "a"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish("slow", ItemEmbeddingJob{ItemID: "b"}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if b.Pending() != 1 {
		t.Errorf("pending = %d, want 1", b.Pending())
	}
}

func TestBus_EncodeErrorDrops(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = b.subscribe(ctx, "t")

	if err := b.Publish("t", make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
	if b.Pending() != 0 {
		t.Errorf("pending = %d", b.Pending())
	}
}

func TestBus_ClosedDrops(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish("t", ItemEmbeddingJob{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestWorker_FailuresAndPanicsDoNotStopConsumption(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()

	var handled atomic.Int32
	stop := startWorker(t, b, "jobs", JSON(func(_ context.Context, job ItemEmbeddingJob) error {
		handled.Add(1)
		switch job.ItemID {
		case "fail":
			return errors.New("boom")
		case "panic":
			panic("bad job")
		}
		return nil
	}))
	defer stop()

	for _, id := range []string{"fail", "panic", "ok"} {
		_ = b.Publish("jobs", ItemEmbeddingJob{ItemID: id})
	}
	waitFor(t, func() bool { return handled.Load() == 3 })
}

func TestWorker_LogsJobTokenUsage(t *testing.T) {
	b := NewBus(Config{}, zap.NewNop())
	defer b.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	w := NewWorker(b, "jobs", 1, time.Second, JSON(func(ctx context.Context, _ ItemEmbeddingJob) error {
		domain.UsageFromContext(ctx).AddTokens(7)
		return nil
	}), zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Serve(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	waitFor(t, func() bool { return b.hasSubscriber("jobs") })

	if err := b.Publish("jobs", ItemEmbeddingJob{ItemID: "i1", Text: "t"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return logs.FilterMessage("Job done").Len() == 1 })

	entry := logs.FilterMessage("Job done").All()[0]
	if got := entry.ContextMap()["total_tokens"]; got != int64(7) {
		t.Errorf("total_tokens = %v", got)
	}
}

func TestJSON_DecodeError(t *testing.T) {
	h := JSON(func(_ context.Context, _ ItemEmbeddingJob) error { return nil })
	if err := h(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

type mockAggregator struct {
	views   []string
	updates []dominter.Type
}

func (m *mockAggregator) RecordView(_ context.Context, memberID, itemID, category string) error {
	m.views = append(m.views, memberID+"/"+itemID+"/"+category)
	return nil
}

func (m *mockAggregator) UpdateInteractionScore(
	_ context.Context, _, _ string, typ dominter.Type,
) (dominter.Score, error) {
	m.updates = append(m.updates, typ)
	return dominter.Score{}, nil
}

func TestInteractionHandler_Routes(t *testing.T) {
	agg := &mockAggregator{}
	h := InteractionHandler(agg)
	ctx := context.Background()

	_ = h(ctx, []byte(`{"member_id":"m1","item_id":"i1","category":"books","type":"VIEW"}`))
	_ = h(ctx, []byte(`{"member_id":"m1","category":"books","type":"LIKE"}`))
	_ = h(ctx, []byte(`{"member_id":"m1","category":"books","type":"UNLIKE"}`))
	err := h(ctx, []byte(`{"member_id":"m1","category":"books","type":"SHARE"}`))

	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for unknown type, got %v", err)
	}
	if len(agg.views) != 1 || agg.views[0] != "m1/i1/books" {
		t.Errorf("views = %v", agg.views)
	}
	if len(agg.updates) != 2 || agg.updates[0] != dominter.TypeLike || agg.updates[1] != dominter.TypeUnlike {
		t.Errorf("updates = %v", agg.updates)
	}
}

type mockIndexer struct {
	items   []string
	prefs   [][]string
	batches [][]embeddinguc.ItemText
}

func (m *mockIndexer) IndexItems(_ context.Context, items []embeddinguc.ItemText) error {
	m.batches = append(m.batches, items)
	return nil
}

func (m *mockIndexer) IndexItem(_ context.Context, itemID, _ string) error {
	m.items = append(m.items, itemID)
	return nil
}

func (m *mockIndexer) IndexMemberPreference(_ context.Context, _ string, categories []string) error {
	m.prefs = append(m.prefs, categories)
	return nil
}

func TestEmbeddingHandlers(t *testing.T) {
	ix := &mockIndexer{}
	ctx := context.Background()

	if err := ItemEmbeddingHandler(ix)(ctx, []byte(`{"item_id":"i1","text":"lamp"}`)); err != nil {
		t.Fatal(err)
	}
	if err := PreferenceEmbeddingHandler(ix)(ctx, []byte(`{"member_id":"m1","categories":["a","b"]}`)); err != nil {
		t.Fatal(err)
	}
	if len(ix.items) != 1 || ix.items[0] != "i1" || len(ix.prefs) != 1 || len(ix.prefs[0]) != 2 {
		t.Errorf("unexpected calls items=%v prefs=%v", ix.items, ix.prefs)
	}

	batch := `{"items":[{"item_id":"i2","text":"desk"},{"item_id":"i3","text":"chair"}]}`
	if err := ItemEmbeddingBatchHandler(ix)(ctx, []byte(batch)); err != nil {
		t.Fatal(err)
	}
	want := []embeddinguc.ItemText{{ItemID: "i2", Text: "desk"}, {ItemID: "i3", Text: "chair"}}
	if len(ix.batches) != 1 || len(ix.batches[0]) != 2 || ix.batches[0][0] != want[0] || ix.batches[0][1] != want[1] {
		t.Errorf("batches = %v", ix.batches)
	}
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewZapAdapter(zap.New(core))

	a.With(watermill.LogFields{"topic": "t"}).Info("hello", watermill.LogFields{"n": 1})
	a.Error("failed", errors.New("boom"), nil)
	a.Trace("trace", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["topic"] != "t" || ctx["component"] != "watermill" {
		t.Errorf("fields = %v", ctx)
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[2].Level != zapcore.DebugLevel {
		t.Errorf("levels = %v %v", entries[1].Level, entries[2].Level)
	}
}
