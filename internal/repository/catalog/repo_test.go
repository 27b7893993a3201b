package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/geo"
	"github.com/kailas-cloud/tradematch/internal/domain/item"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(context.Background(), Config{
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		AutoMigrate:  true,
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func point(lat, lon float64) *geo.Point {
	return &geo.Point{Lat: lat, Lon: lon}
}

func seed(t *testing.T, r *Repo, items ...item.Item) {
	t.Helper()
	for i := range items {
		if err := r.SaveItem(context.Background(), &items[i]); err != nil {
			t.Fatalf("seed %s: %v", items[i].ID, err)
		}
	}
}

func ids(items []item.Item) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBrowseCandidates_ExcludesExchangedAndOwn(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r,
		item.Item{ID: "a", OwnerID: "o1", Category: "books", CreatedAt: baseTime, Status: item.StatusAvailable},
		item.Item{ID: "b", OwnerID: "o1", Category: "books", CreatedAt: baseTime.Add(time.Hour), Status: item.StatusExchanged},
		item.Item{ID: "c", OwnerID: "viewer", Category: "books", CreatedAt: baseTime, Status: item.StatusAvailable},
		item.Item{ID: "d", OwnerID: "o2", Category: "tools", CreatedAt: baseTime.Add(2 * time.Hour), Status: item.StatusReserved},
	)

	got, err := r.BrowseCandidates(context.Background(), "viewer", "", nil)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if !equal(ids(got), []string{"d", "a"}) {
		t.Fatalf("unexpected candidates %v", ids(got))
	}
}

func TestBrowseCandidates_CategoryAndTieBreak(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r,
		item.Item{ID: "y", OwnerID: "o1", Category: "books", CreatedAt: baseTime, Status: item.StatusAvailable},
		item.Item{ID: "x", OwnerID: "o1", Category: "books", CreatedAt: baseTime, Status: item.StatusAvailable},
		item.Item{ID: "z", OwnerID: "o1", Category: "tools", CreatedAt: baseTime, Status: item.StatusAvailable},
	)

	got, err := r.BrowseCandidates(context.Background(), "viewer", "books", nil)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if !equal(ids(got), []string{"x", "y"}) {
		t.Fatalf("expected id ASC tie-break, got %v", ids(got))
	}
}

func TestBrowseCandidates_BoundingBox(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r,
		item.Item{ID: "near", OwnerID: "o1", Category: "c", CreatedAt: baseTime, Location: point(37.5665, 126.9780), Status: item.StatusAvailable},
		item.Item{ID: "far", OwnerID: "o1", Category: "c", CreatedAt: baseTime, Location: point(35.1796, 129.0756), Status: item.StatusAvailable},
		item.Item{ID: "nowhere", OwnerID: "o1", Category: "c", CreatedAt: baseTime, Status: item.StatusAvailable},
	)

	box := geo.BoxAround(geo.Point{Lat: 37.5665, Lon: 126.9780}, 10_000)
	got, err := r.BrowseCandidates(context.Background(), "viewer", "", &box)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if !equal(ids(got), []string{"near"}) {
		t.Fatalf("unexpected candidates %v", ids(got))
	}
}

func TestTradableItemsOf(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r,
		item.Item{ID: "old", OwnerID: "me", Category: "c", CreatedAt: baseTime, Status: item.StatusAvailable},
		item.Item{ID: "new", OwnerID: "me", Category: "c", CreatedAt: baseTime.Add(time.Hour), Status: item.StatusReserved},
		item.Item{ID: "gone", OwnerID: "me", Category: "c", CreatedAt: baseTime, Status: item.StatusExchanged},
		item.Item{ID: "other", OwnerID: "you", Category: "c", CreatedAt: baseTime, Status: item.StatusAvailable},
	)

	got, err := r.TradableItemsOf(context.Background(), "me")
	if err != nil {
		t.Fatalf("tradable: %v", err)
	}
	if !equal(ids(got), []string{"new", "old"}) {
		t.Fatalf("unexpected items %v", ids(got))
	}
}

func TestItem(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r, item.Item{
		ID: "a", OwnerID: "o1", Category: "books", Title: "Go book",
		CreatedAt: baseTime, Location: point(1, 2), Status: item.StatusAvailable,
	})

	got, err := r.Item(context.Background(), "a")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if got.Title != "Go book" || !got.CreatedAt.Equal(baseTime) || got.Location == nil || got.Location.Lon != 2 {
		t.Errorf("unexpected item %+v", got)
	}

	if _, err := r.Item(context.Background(), "missing"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestSaveItem_Upsert(t *testing.T) {
	r := newTestRepo(t)
	it := item.Item{ID: "a", OwnerID: "o1", Category: "books", CreatedAt: baseTime, Status: item.StatusAvailable}
	seed(t, r, it)
	it.Status = item.StatusExchanged
	seed(t, r, it)

	got, err := r.Item(context.Background(), "a")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if got.Status != item.StatusExchanged {
		t.Errorf("expected updated status, got %s", got.Status)
	}
}

func TestMember(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	m := item.Member{ID: "m1", PreferredCategories: []string{"books", "tools"}, Location: point(37.5, 127)}
	if err := r.SaveMember(ctx, &m); err != nil {
		t.Fatalf("save member: %v", err)
	}
	noLoc := item.Member{ID: "m2"}
	if err := r.SaveMember(ctx, &noLoc); err != nil {
		t.Fatalf("save member: %v", err)
	}

	got, err := r.Member(ctx, "m1")
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if !equal(got.PreferredCategories, []string{"books", "tools"}) || got.Location == nil {
		t.Errorf("unexpected member %+v", got)
	}

	got, err = r.Member(ctx, "m2")
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if got.Location != nil || len(got.PreferredCategories) != 0 {
		t.Errorf("unexpected member %+v", got)
	}

	if _, err := r.Member(ctx, "ghost"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRebind(t *testing.T) {
	pg, _ := dialectFor(DriverPostgres)
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind: %q", got)
	}
	lite, _ := dialectFor(DriverSQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind: %q", got)
	}
}

func TestCustomTableNamesAreQuoted(t *testing.T) {
	r := newRepo(nil, dialect{driver: DriverSQLite}, "host items", "")
	if r.items != `"host items"` || r.members != `"members"` {
		t.Fatalf("unexpected identifiers %s %s", r.items, r.members)
	}
}

func TestSplitCategories(t *testing.T) {
	if got := splitCategories(" books, ,tools "); !equal(got, []string{"books", "tools"}) {
		t.Fatalf("unexpected %v", got)
	}
}
