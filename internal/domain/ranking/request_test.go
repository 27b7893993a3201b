package ranking

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

func TestParseSortField(t *testing.T) {
	tests := []struct {
		in      string
		want    SortField
		wantErr bool
	}{
		{"", SortCreatedDate, false},
		{"CREATED_DATE", SortCreatedDate, false},
		{"DISTANCE", SortDistance, false},
		{"PREFERRED_CATEGORY", SortPreferredCategory, false},
		{"price", "", true},
		{"SIMILARITY", "", true},
	}
	for _, tc := range tests {
		got, err := ParseSortField(tc.in)
		if tc.wantErr {
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("ParseSortField(%q): expected ErrInvalidRequest, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseSortField(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestNewPaging(t *testing.T) {
	p, err := NewPaging(0, 0, 20, 100)
	if err != nil || p.Size() != 20 {
		t.Fatalf("default size: %+v %v", p, err)
	}
	p, err = NewPaging(2, 500, 20, 100)
	if err != nil || p.Size() != 100 || p.Page() != 2 {
		t.Fatalf("clamped size: %+v %v", p, err)
	}
	if _, err := NewPaging(-1, 10, 20, 100); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("negative page: %v", err)
	}
	if _, err := NewPaging(0, -5, 20, 100); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("negative size: %v", err)
	}
}

func TestPaging_Window(t *testing.T) {
	p, _ := NewPaging(1, 3, 20, 100)
	if s, e := p.Window(7); s != 3 || e != 6 {
		t.Errorf("window = [%d,%d)", s, e)
	}
	if s, e := p.Window(4); s != 3 || e != 4 {
		t.Errorf("partial window = [%d,%d)", s, e)
	}
	if s, e := p.Window(2); s != 2 || e != 2 {
		t.Errorf("past end window = [%d,%d)", s, e)
	}
	if s, e := p.Window(0); s != 0 || e != 0 {
		t.Errorf("empty window = [%d,%d)", s, e)
	}
}

func TestPaging_WindowHugePage(t *testing.T) {
	all := []Ranked{{ItemID: "a"}, {ItemID: "b"}, {ItemID: "c"}}
	tests := []struct {
		name string
		page int
		size int
	}{
		{"start wraps negative", math.MaxInt/2 + 2, 2},
		{"start wraps to zero", math.MaxInt/2 + 1, 4},
		{"max page", math.MaxInt, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPaging(tt.page, tt.size, 20, 100)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s, e := p.Window(len(all)); s != 3 || e != 3 {
				t.Errorf("window = [%d,%d), want [3,3)", s, e)
			}
			page := Slice(all, p, SortCreatedDate)
			if page.Total != 3 || len(page.Items) != 0 {
				t.Errorf("unexpected page: %+v", page)
			}
		})
	}
}

func TestNewBrowseRequest(t *testing.T) {
	p, _ := NewPaging(0, 10, 20, 100)
	r, err := NewBrowseRequest("m1", "", 0, "books", p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Sort() != SortCreatedDate || r.RadiusMeters() != DefaultRadiusMeters || r.Category() != "books" {
		t.Errorf("unexpected request: %+v", r)
	}
	if _, err := NewBrowseRequest("", SortDistance, 1000, "", p); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("missing viewer: %v", err)
	}
	if _, err := NewBrowseRequest("m1", SortDistance, -1, "", p); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("negative radius: %v", err)
	}
	if _, err := NewBrowseRequest("m1", SortSimilarity, 0, "", p); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("similarity sort on browse: %v", err)
	}
}

func TestNewTradeRequest(t *testing.T) {
	p, _ := NewPaging(0, 10, 20, 100)
	if _, err := NewTradeRequest("m1", "", p); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("missing target: %v", err)
	}
	r, err := NewTradeRequest("m1", "i9", p)
	if err != nil || r.RequesterID() != "m1" || r.TargetItemID() != "i9" {
		t.Fatalf("unexpected: %+v %v", r, err)
	}
}

func TestSlice(t *testing.T) {
	all := []Ranked{{ItemID: "a"}, {ItemID: "b"}, {ItemID: "c"}}
	p, _ := NewPaging(1, 2, 20, 100)
	page := Slice(all, p, SortCreatedDate)
	if page.Total != 3 || len(page.Items) != 1 || page.Items[0].ItemID != "c" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
