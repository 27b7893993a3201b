// Package ranking orders browse feeds and trade candidates.
package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	domemb "github.com/kailas-cloud/tradematch/internal/domain/embedding"
	"github.com/kailas-cloud/tradematch/internal/domain/geo"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/item"
	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
	"github.com/kailas-cloud/tradematch/internal/metrics"
)

// DefaultPreferenceTimeout bounds the preference vector fetch.
const DefaultPreferenceTimeout = 300 * time.Millisecond

const (
	kindBrowse = "browse"
	kindTrade  = "trade"
)

// Config tunes the ranker.
type Config struct {
	PreferenceTimeout time.Duration
}

// Service is the match ranker.
type Service struct {
	catalog      Catalog
	vectors      VectorReader
	interactions InteractionReader
	weights      WeightsSource
	cfg          Config
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a Service.
func New(
	catalog Catalog, vectors VectorReader, interactions InteractionReader,
	weights WeightsSource, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.PreferenceTimeout <= 0 {
		cfg.PreferenceTimeout = DefaultPreferenceTimeout
	}
	return &Service{
		catalog:      catalog,
		vectors:      vectors,
		interactions: interactions,
		weights:      weights,
		cfg:          cfg,
		now:          time.Now,
		logger:       logger,
	}
}

// Browse returns the viewer's feed page. Missing personalization data
// degrades to creation-date order; Page.Sort reports the ordering applied.
func (s *Service) Browse(ctx context.Context, req ranking.BrowseRequest) (ranking.Page, error) {
	start := time.Now()

	var (
		ranked  []ranking.Ranked
		applied ranking.SortField
		err     error
	)
	switch req.Sort() {
	case ranking.SortDistance:
		ranked, applied, err = s.byDistance(ctx, req)
	case ranking.SortPreferredCategory:
		ranked, applied, err = s.byPreference(ctx, req)
	default:
		ranked, err = s.byCreated(ctx, req)
		applied = ranking.SortCreatedDate
	}
	if err != nil {
		return ranking.Page{}, err
	}

	metrics.RankingDuration.WithLabelValues(kindBrowse, string(applied)).Observe(time.Since(start).Seconds())
	metrics.RankingCandidates.WithLabelValues(kindBrowse).Observe(float64(len(ranked)))

	return ranking.Slice(ranked, req.Paging(), applied), nil
}

// TradeCandidates orders the requester's own items by similarity to the
// target owner's preference vector.
func (s *Service) TradeCandidates(ctx context.Context, req ranking.TradeRequest) (ranking.Page, error) {
	start := time.Now()

	target, err := s.catalog.Item(ctx, req.TargetItemID())
	if err != nil {
		return ranking.Page{}, fmt.Errorf("trade target %s: %w", req.TargetItemID(), err)
	}
	if target.OwnerID == req.RequesterID() {
		return ranking.Page{}, fmt.Errorf("%w: cannot trade for an own item", domain.ErrInvalidRequest)
	}

	items, err := s.catalog.TradableItemsOf(ctx, req.RequesterID())
	if err != nil {
		return ranking.Page{}, fmt.Errorf("tradable items of %s: %w", req.RequesterID(), err)
	}
	sortByCreated(items)

	ranked, applied := s.bySimilarity(ctx, target.OwnerID, items)

	metrics.RankingDuration.WithLabelValues(kindTrade, string(applied)).Observe(time.Since(start).Seconds())
	metrics.RankingCandidates.WithLabelValues(kindTrade).Observe(float64(len(ranked)))

	return ranking.Slice(ranked, req.Paging(), applied), nil
}

func (s *Service) byCreated(ctx context.Context, req ranking.BrowseRequest) ([]ranking.Ranked, error) {
	items, err := s.catalog.BrowseCandidates(ctx, req.ViewerID(), req.Category(), nil)
	if err != nil {
		return nil, fmt.Errorf("browse candidates: %w", err)
	}
	sortByCreated(items)
	return unscored(items), nil
}

func (s *Service) byDistance(
	ctx context.Context, req ranking.BrowseRequest,
) ([]ranking.Ranked, ranking.SortField, error) {
	viewer, err := s.member(ctx, req.ViewerID())
	if err != nil {
		return nil, "", err
	}
	if viewer.Location == nil {
		s.degraded(kindBrowse, "no_location", req.ViewerID(), nil)
		ranked, err := s.byCreated(ctx, req)
		return ranked, ranking.SortCreatedDate, err
	}

	origin := *viewer.Location
	radius := req.RadiusMeters()
	box := geo.BoxAround(origin, radius)

	items, err := s.catalog.BrowseCandidates(ctx, req.ViewerID(), req.Category(), &box)
	if err != nil {
		return nil, "", fmt.Errorf("browse candidates: %w", err)
	}

	type near struct {
		it   item.Item
		dist float64
	}
	inRange := make([]near, 0, len(items))
	for _, it := range items {
		if it.Location == nil {
			continue
		}
		if d := origin.DistanceTo(*it.Location); d <= radius {
			inRange = append(inRange, near{it: it, dist: d})
		}
	}

	slices.SortStableFunc(inRange, func(a, b near) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return byCreatedDesc(a.it, b.it)
	})

	out := make([]ranking.Ranked, len(inRange))
	for i, n := range inRange {
		d := n.dist
		out[i] = ranking.Ranked{ItemID: n.it.ID, DistanceMeters: &d}
	}
	return out, ranking.SortDistance, nil
}

func (s *Service) byPreference(
	ctx context.Context, req ranking.BrowseRequest,
) ([]ranking.Ranked, ranking.SortField, error) {
	viewer, err := s.member(ctx, req.ViewerID())
	if err != nil {
		return nil, "", err
	}

	pref, ok := s.preferenceVector(ctx, kindBrowse, req.ViewerID())
	if !ok {
		ranked, err := s.byCreated(ctx, req)
		return ranked, ranking.SortCreatedDate, err
	}

	items, err := s.catalog.BrowseCandidates(ctx, req.ViewerID(), req.Category(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("browse candidates: %w", err)
	}
	sortByCreated(items)

	vectors, ok := s.itemVectors(ctx, kindBrowse, items)
	if !ok {
		return unscored(items), ranking.SortCreatedDate, nil
	}

	implicit := s.implicitScores(ctx, req.ViewerID())
	w := s.weights.Load()
	now := s.now()

	scored := make([]scoredItem, 0, len(items))
	var rest []item.Item
	for _, it := range items {
		v, found := vectors[it.ID]
		if !found || !usable(&pref, &v) {
			rest = append(rest, it)
			continue
		}
		category := scoring.CombineCategoryScore(w, viewer.Prefers(it.Category), implicit[it.Category])
		freshness := scoring.Freshness(it.CreatedAt, now, w.TimeDecayLambda)
		scored = append(scored, scoredItem{it: it, score: scoring.CalculateFinalScore(w, category, freshness)})
	}

	return merge(scored, rest), ranking.SortPreferredCategory, nil
}

func (s *Service) bySimilarity(
	ctx context.Context, ownerID string, items []item.Item,
) ([]ranking.Ranked, ranking.SortField) {
	pref, ok := s.preferenceVector(ctx, kindTrade, ownerID)
	if !ok {
		return unscored(items), ranking.SortCreatedDate
	}

	vectors, ok := s.itemVectors(ctx, kindTrade, items)
	if !ok {
		return unscored(items), ranking.SortCreatedDate
	}

	scored := make([]scoredItem, 0, len(items))
	var rest []item.Item
	for _, it := range items {
		v, found := vectors[it.ID]
		if !found || !usable(&pref, &v) {
			rest = append(rest, it)
			continue
		}
		sim, err := domemb.Cosine(pref.Values(), v.Values())
		if err != nil {
			s.logger.Debug("Item not comparable with preference",
				zap.String("item_id", it.ID),
				zap.Error(err),
			)
			rest = append(rest, it)
			continue
		}
		scored = append(scored, scoredItem{it: it, score: sim})
	}

	return merge(scored, rest), ranking.SortSimilarity
}

// member loads a member profile. Unknown members rank like members without
// any stored preferences.
func (s *Service) member(ctx context.Context, id string) (item.Member, error) {
	m, err := s.catalog.Member(ctx, id)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return item.Member{ID: id}, nil
	}
	if err != nil {
		return item.Member{}, fmt.Errorf("member %s: %w", id, err)
	}
	return m, nil
}

func (s *Service) preferenceVector(ctx context.Context, kind, memberID string) (domemb.Vector, bool) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PreferenceTimeout)
	defer cancel()

	v, err := s.vectors.GetLatestForMember(pctx, memberID)
	switch {
	case err == nil && v.Dimensions() > 0 && !v.IsZero():
		return v, true
	case err == nil:
		s.degraded(kind, "zero_preference", memberID, nil)
	case errors.Is(err, domain.ErrEmbeddingNotFound):
		s.degraded(kind, "no_preference", memberID, nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.degraded(kind, "preference_timeout", memberID, err)
	default:
		s.degraded(kind, "preference_error", memberID, err)
	}
	return domemb.Vector{}, false
}

func (s *Service) itemVectors(ctx context.Context, kind string, items []item.Item) (map[string]domemb.Vector, bool) {
	if len(items) == 0 {
		return map[string]domemb.Vector{}, true
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	vectors, err := s.vectors.GetMany(ctx, ids, domemb.OriginItem)
	if err != nil {
		s.degraded(kind, "item_vectors_error", "", err)
		return nil, false
	}
	return vectors, true
}

// implicitScores returns the member's category totals normalized to [0, 1].
// A read failure leaves every category at 0.
func (s *Service) implicitScores(ctx context.Context, memberID string) map[string]float64 {
	scores, err := s.interactions.Scores(ctx, memberID)
	if err != nil {
		s.logger.Warn("Interaction scores unavailable",
			zap.String("member_id", memberID),
			zap.Error(err),
		)
		return map[string]float64{}
	}
	return scoring.NormalizeImplicit(dominter.Totals(scores))
}

func (s *Service) degraded(kind, reason, memberID string, err error) {
	metrics.RankingDegradedTotal.WithLabelValues(kind, reason).Inc()
	fields := []zap.Field{zap.String("kind", kind), zap.String("reason", reason)}
	if memberID != "" {
		fields = append(fields, zap.String("member_id", memberID))
	}
	if err != nil {
		s.logger.Warn("Ranking degraded to creation-date order", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Debug("Ranking degraded to creation-date order", fields...)
}

type scoredItem struct {
	it    item.Item
	score float64
}

// merge orders scored items by score descending and appends the rest, which
// must already be in creation-date order.
func merge(scored []scoredItem, rest []item.Item) []ranking.Ranked {
	slices.SortStableFunc(scored, func(a, b scoredItem) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return byCreatedDesc(a.it, b.it)
	})

	out := make([]ranking.Ranked, 0, len(scored)+len(rest))
	for _, si := range scored {
		score := si.score
		out = append(out, ranking.Ranked{ItemID: si.it.ID, Score: &score})
	}
	return append(out, unscored(rest)...)
}

// usable reports whether v can be compared with pref. Vectors from different
// backends live in different spaces even when their dimensions agree.
func usable(pref, v *domemb.Vector) bool {
	return v.Provider() == pref.Provider() &&
		v.Dimensions() == pref.Dimensions() &&
		!v.IsZero()
}

func unscored(items []item.Item) []ranking.Ranked {
	out := make([]ranking.Ranked, len(items))
	for i, it := range items {
		out[i] = ranking.Ranked{ItemID: it.ID}
	}
	return out
}

func sortByCreated(items []item.Item) {
	slices.SortStableFunc(items, byCreatedDesc)
}

// byCreatedDesc orders newest first, then by id for a stable total order.
func byCreatedDesc(a, b item.Item) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
