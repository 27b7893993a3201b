package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
)

type counters struct{ views, likes int64 }

// memRepo mirrors the Lua semantics in memory.
type memRepo struct {
	mu       sync.Mutex
	rows     map[string]map[string]*counters
	views    map[string]time.Duration
	applyErr error
	markErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]map[string]*counters{}, views: map[string]time.Duration{}}
}

func (m *memRepo) Apply(
	_ context.Context, memberID, category string, typ dominter.Type, w scoring.Weights,
) (dominter.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return dominter.Score{}, m.applyErr
	}
	return m.apply(memberID, category, typ, w), nil
}

// RecordView writes the marker and the counter together or not at all.
func (m *memRepo) RecordView(
	_ context.Context, day, memberID, itemID, category string, ttl time.Duration, w scoring.Weights,
) (dominter.Score, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return dominter.Score{}, false, m.markErr
	}
	key := day + ":" + memberID + ":" + itemID
	if _, ok := m.views[key]; ok {
		return dominter.Score{}, false, nil
	}
	if m.applyErr != nil {
		return dominter.Score{}, false, m.applyErr
	}
	m.views[key] = ttl
	return m.apply(memberID, category, dominter.TypeView, w), true, nil
}

func (m *memRepo) apply(memberID, category string, typ dominter.Type, w scoring.Weights) dominter.Score {
	if m.rows[memberID] == nil {
		m.rows[memberID] = map[string]*counters{}
	}
	c := m.rows[memberID][category]
	if c == nil {
		c = &counters{}
		m.rows[memberID][category] = c
	}
	switch typ {
	case dominter.TypeView:
		c.views++
	case dominter.TypeLike:
		c.likes++
	case dominter.TypeUnlike:
		if c.likes > 0 {
			c.likes--
		}
	}
	total := scoring.TotalInteractionScore(w, c.views, c.likes)
	return dominter.Reconstruct(memberID, category, c.views, c.likes, total)
}

func (m *memRepo) Scores(_ context.Context, memberID string) ([]dominter.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dominter.Score
	for cat, c := range m.rows[memberID] {
		out = append(out, dominter.Reconstruct(memberID, cat, c.views, c.likes, 0))
	}
	return out, nil
}

func (m *memRepo) DeleteMember(_ context.Context, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, memberID)
	return nil
}

type fixedWeights struct{ w scoring.Weights }

func (f *fixedWeights) Load() scoring.Weights { return f.w }

func newService(repo Repository, now time.Time, loc *time.Location) *Service {
	s := New(repo, &fixedWeights{w: scoring.DefaultWeights()}, loc, 0, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func TestRecordView_IdempotentPerDay(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()

	for range 3 {
		if err := s.RecordView(ctx, "m1", "i1", "books"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := repo.rows["m1"]["books"].views; got != 1 {
		t.Fatalf("view_count = %d, want 1", got)
	}
	if ttl := repo.views["20260301:m1:i1"]; ttl != DefaultViewTTL {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestRecordView_NextDayCountsAgain(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()

	_ = s.RecordView(ctx, "m1", "i1", "books")
	s.now = func() time.Time { return time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC) }
	_ = s.RecordView(ctx, "m1", "i1", "books")

	if got := repo.rows["m1"]["books"].views; got != 2 {
		t.Fatalf("view_count = %d, want 2", got)
	}
}

func TestRecordView_UsesConfiguredTimeZone(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	repo := newMemRepo()
	// 2026-03-01 16:00 UTC is already 2026-03-02 in Seoul
	s := newService(repo, time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC), seoul)

	if err := s.RecordView(context.Background(), "m1", "i1", "books"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.views["20260302:m1:i1"]; !ok {
		t.Errorf("expected view keyed by local day, got %v", repo.views)
	}
}

func TestRecordView_DistinctItemsCountSeparately(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()

	_ = s.RecordView(ctx, "m1", "i1", "books")
	_ = s.RecordView(ctx, "m1", "i2", "books")

	if got := repo.rows["m1"]["books"].views; got != 2 {
		t.Fatalf("view_count = %d, want 2", got)
	}
}

func TestRecordView_Validation(t *testing.T) {
	s := newService(newMemRepo(), time.Now(), nil)
	if err := s.RecordView(context.Background(), "m1", "", "books"); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRecordView_StoreError(t *testing.T) {
	repo := newMemRepo()
	repo.markErr = errors.New("redis down")
	s := newService(repo, time.Now(), nil)

	if err := s.RecordView(context.Background(), "m1", "i1", "books"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecordView_FailedCountIsRetried(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), nil)
	ctx := context.Background()

	repo.applyErr = errors.New("redis blip")
	if err := s.RecordView(ctx, "m1", "i1", "books"); err == nil {
		t.Fatal("expected error")
	}
	repo.applyErr = nil
	if err := s.RecordView(ctx, "m1", "i1", "books"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scores, err := s.Scores(ctx, "m1")
	if err != nil || len(scores) != 1 || scores[0].ViewCount() != 1 {
		t.Fatalf("scores = %v, err = %v", scores, err)
	}
}

func TestUpdateInteractionScore_UnlikeFloor(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Now(), nil)
	ctx := context.Background()

	score, err := s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeUnlike)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.LikeCount() != 0 {
		t.Fatalf("like_count = %d, want 0", score.LikeCount())
	}
}

func TestUpdateInteractionScore_TotalRecomputed(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Now(), nil)
	ctx := context.Background()

	_, _ = s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeView)
	_, _ = s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeLike)
	score, err := s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeLike)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1 view * 1.0 + 2 likes * 2.0
	if score.TotalScore() != 5 {
		t.Errorf("total = %v, want 5", score.TotalScore())
	}
}

func TestUpdateInteractionScore_UnknownType(t *testing.T) {
	s := newService(newMemRepo(), time.Now(), nil)
	_, err := s.UpdateInteractionScore(context.Background(), "m1", "books", dominter.Type("SHARE"))
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUpdateInteractionScore_ConcurrentLikes(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Now(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeLike)
		}()
	}
	wg.Wait()
	if got := repo.rows["m1"]["books"].likes; got != 50 {
		t.Fatalf("likes = %d, want 50", got)
	}
}

func TestScoresAndDeleteMember(t *testing.T) {
	repo := newMemRepo()
	s := newService(repo, time.Now(), nil)
	ctx := context.Background()

	_, _ = s.UpdateInteractionScore(ctx, "m1", "books", dominter.TypeLike)
	_, _ = s.UpdateInteractionScore(ctx, "m1", "games", dominter.TypeView)

	scores, err := s.Scores(ctx, "m1")
	if err != nil || len(scores) != 2 {
		t.Fatalf("scores = %v, err = %v", scores, err)
	}

	if err := s.DeleteMember(ctx, "m1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scores, _ = s.Scores(ctx, "m1")
	if len(scores) != 0 {
		t.Errorf("expected no scores after delete, got %d", len(scores))
	}
}
