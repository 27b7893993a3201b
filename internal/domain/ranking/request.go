package ranking

import (
	"fmt"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// Paging and radius limits.
const (
	DefaultPageSize     = 20
	MaxPageSize         = 100
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 500_000
)

// SortField selects the browse ordering.
type SortField string

// Browse orderings.
const (
	SortCreatedDate       SortField = "CREATED_DATE"
	SortDistance          SortField = "DISTANCE"
	SortPreferredCategory SortField = "PREFERRED_CATEGORY"
	// SortSimilarity orders trade candidates; it is never accepted for browse.
	SortSimilarity SortField = "SIMILARITY"
)

// ParseSortField validates a sort field. Empty means CREATED_DATE.
func ParseSortField(s string) (SortField, error) {
	switch SortField(s) {
	case "":
		return SortCreatedDate, nil
	case SortCreatedDate, SortDistance, SortPreferredCategory:
		return SortField(s), nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidRequest, s)
	}
}

// Paging is a validated page window.
type Paging struct {
	page int
	size int
}

// NewPaging validates page >= 0 and size >= 0. Size 0 falls back to
// defaultSize; sizes above maxSize are clamped.
func NewPaging(page, size, defaultSize, maxSize int) (Paging, error) {
	if page < 0 {
		return Paging{}, fmt.Errorf("%w: page must be >= 0", domain.ErrInvalidRequest)
	}
	if size < 0 {
		return Paging{}, fmt.Errorf("%w: size must be >= 0", domain.ErrInvalidRequest)
	}
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if size == 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return Paging{page: page, size: size}, nil
}

// Page returns the zero-based page number.
func (p Paging) Page() int { return p.page }

// Size returns the page size.
func (p Paging) Size() int { return p.size }

// Window returns the [start, end) slice bounds for total results.
// Pages past the end yield an empty window.
func (p Paging) Window(total int) (int, int) {
	if total <= 0 || p.page > (total-1)/p.size {
		return total, total
	}
	start := p.page * p.size
	return start, min(start+p.size, total)
}

// BrowseRequest asks for a viewer's feed.
type BrowseRequest struct {
	viewerID     string
	sort         SortField
	radiusMeters float64
	category     string
	paging       Paging
}

// NewBrowseRequest validates browse parameters. Radius 0 means DefaultRadiusMeters.
func NewBrowseRequest(viewerID string, sort SortField, radiusMeters float64, category string, paging Paging) (BrowseRequest, error) {
	if viewerID == "" {
		return BrowseRequest{}, fmt.Errorf("%w: viewer id is required", domain.ErrInvalidRequest)
	}
	if radiusMeters < 0 || radiusMeters > MaxRadiusMeters {
		return BrowseRequest{}, fmt.Errorf("%w: radius must be between 0 and %d meters", domain.ErrInvalidRequest, MaxRadiusMeters)
	}
	if radiusMeters == 0 {
		radiusMeters = DefaultRadiusMeters
	}
	switch sort {
	case "":
		sort = SortCreatedDate
	case SortCreatedDate, SortDistance, SortPreferredCategory:
	default:
		return BrowseRequest{}, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidRequest, sort)
	}
	return BrowseRequest{
		viewerID:     viewerID,
		sort:         sort,
		radiusMeters: radiusMeters,
		category:     category,
		paging:       paging,
	}, nil
}

// ViewerID returns the requesting member.
func (r *BrowseRequest) ViewerID() string { return r.viewerID }

// Sort returns the requested ordering.
func (r *BrowseRequest) Sort() SortField { return r.sort }

// RadiusMeters returns the distance filter radius.
func (r *BrowseRequest) RadiusMeters() float64 { return r.radiusMeters }

// Category returns the optional category filter.
func (r *BrowseRequest) Category() string { return r.category }

// Paging returns the page window.
func (r *BrowseRequest) Paging() Paging { return r.paging }

// TradeRequest asks which of the requester's items best fit a target item's owner.
type TradeRequest struct {
	requesterID  string
	targetItemID string
	paging       Paging
}

// NewTradeRequest validates trade-candidate parameters.
func NewTradeRequest(requesterID, targetItemID string, paging Paging) (TradeRequest, error) {
	if requesterID == "" {
		return TradeRequest{}, fmt.Errorf("%w: requester id is required", domain.ErrInvalidRequest)
	}
	if targetItemID == "" {
		return TradeRequest{}, fmt.Errorf("%w: target item id is required", domain.ErrInvalidRequest)
	}
	return TradeRequest{requesterID: requesterID, targetItemID: targetItemID, paging: paging}, nil
}

// RequesterID returns the member offering items.
func (r *TradeRequest) RequesterID() string { return r.requesterID }

// TargetItemID returns the item the requester wants.
func (r *TradeRequest) TargetItemID() string { return r.targetItemID }

// Paging returns the page window.
func (r *TradeRequest) Paging() Paging { return r.paging }
