package tradematch

import (
	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/tradematch/internal/usecase/health"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrInvalidWeights         = domain.ErrInvalidWeights
	ErrItemNotFound           = domain.ErrItemNotFound
	ErrMemberNotFound         = domain.ErrMemberNotFound
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrAICallFailed           = domain.ErrAICallFailed
	ErrAIResponseParseFailed  = domain.ErrAIResponseParseFailed
	ErrAIAuthFailed           = domain.ErrAIAuthFailed
)

// SortField selects the feed ordering.
type SortField string

// Feed orderings.
const (
	SortCreatedDate       SortField = "CREATED_DATE"
	SortDistance          SortField = "DISTANCE"
	SortPreferredCategory SortField = "PREFERRED_CATEGORY"
	// SortSimilarity is reported by trade candidate pages only.
	SortSimilarity SortField = "SIMILARITY"
)

// BrowseQuery parameterises a feed request. Zero values take the defaults:
// CREATED_DATE, 5 km radius, all categories, first page, default size.
type BrowseQuery struct {
	Sort         SortField
	RadiusMeters float64
	Category     string
	Page         int
	Size         int
}

// RankedItem is one entry of a page. Score and DistanceMeters are set only
// when the applied ordering computed them.
type RankedItem struct {
	ItemID         string
	Score          *float64
	DistanceMeters *float64
}

// Page is an ordered, paged result. Sort is the ordering actually applied,
// which differs from the requested one when ranking degraded.
type Page struct {
	Items []RankedItem
	Total int
	Page  int
	Size  int
	Sort  SortField
}

// Weights are the scoring parameters.
type Weights struct {
	TimeDecayLambda float64
	ExplicitWeight  float64
	ImplicitWeight  float64
	CategoryWeight  float64
	FreshnessWeight float64
	LikeWeight      float64
	ViewWeight      float64
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return fromInternalWeights(scoring.DefaultWeights())
}

// HealthStatus is the aggregate engine state.
type HealthStatus string

// Health states.
const (
	HealthOK        HealthStatus = "ok"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "error"
)

// HealthReport lists per-component checks ("store", "catalog", "ai").
type HealthReport struct {
	Status HealthStatus
	Checks map[string]bool
}

// BudgetUsage is the token budget state of one AI backend. A zero limit is unlimited.
type BudgetUsage struct {
	Backend      string
	DailyUsed    int64
	DailyLimit   int64
	MonthlyUsed  int64
	MonthlyLimit int64
	Reject       bool
}

// --- converters ---

func fromInternalPage(p ranking.Page) Page {
	items := make([]RankedItem, len(p.Items))
	for i, r := range p.Items {
		items[i] = RankedItem{ItemID: r.ItemID, Score: r.Score, DistanceMeters: r.DistanceMeters}
	}
	return Page{Items: items, Total: p.Total, Page: p.Page, Size: p.Size, Sort: SortField(p.Sort)}
}

func toInternalWeights(w Weights) scoring.Weights {
	return scoring.Weights{
		TimeDecayLambda: w.TimeDecayLambda,
		ExplicitWeight:  w.ExplicitWeight,
		ImplicitWeight:  w.ImplicitWeight,
		CategoryWeight:  w.CategoryWeight,
		FreshnessWeight: w.FreshnessWeight,
		LikeWeight:      w.LikeWeight,
		ViewWeight:      w.ViewWeight,
	}
}

func fromInternalWeights(w scoring.Weights) Weights {
	return Weights{
		TimeDecayLambda: w.TimeDecayLambda,
		ExplicitWeight:  w.ExplicitWeight,
		ImplicitWeight:  w.ImplicitWeight,
		CategoryWeight:  w.CategoryWeight,
		FreshnessWeight: w.FreshnessWeight,
		LikeWeight:      w.LikeWeight,
		ViewWeight:      w.ViewWeight,
	}
}

func fromInternalBudgets(us []embeddinguc.BudgetUsage) []BudgetUsage {
	out := make([]BudgetUsage, len(us))
	for i, u := range us {
		out[i] = BudgetUsage{
			Backend:      u.Provider,
			DailyUsed:    u.DailyUsed,
			DailyLimit:   u.DailyLimit,
			MonthlyUsed:  u.MonthlyUsed,
			MonthlyLimit: u.MonthlyLimit,
			Reject:       u.Action == string(embeddinguc.BudgetActionReject),
		}
	}
	return out
}

func fromInternalHealth(r healthuc.Report) HealthReport {
	checks := make(map[string]bool, len(r.Checks))
	for name, res := range r.Checks {
		checks[name] = res == healthuc.CheckOK
	}
	return HealthReport{Status: HealthStatus(r.Status), Checks: checks}
}
