// Package chi is the HTTP transport of the ranking engine.
package chi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	"github.com/kailas-cloud/tradematch/internal/queue"
	healthuc "github.com/kailas-cloud/tradematch/internal/usecase/health"
	scoringuc "github.com/kailas-cloud/tradematch/internal/usecase/scoring"
	"github.com/kailas-cloud/tradematch/internal/version"
)

const maxBodyBytes = 1 << 20

// ServerConfig holds paging limits applied to ranking requests.
type ServerConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Server serves the ranking, interaction, embedding, appraisal and admin routes.
type Server struct {
	ranker    Ranker
	publisher Publisher
	deleter   EmbeddingDeleter
	eraser    MemberEraser
	appraiser Appraiser
	weights   WeightsAdmin
	budgets   BudgetReporter
	health    HealthChecker
	cfg       ServerConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	ranker Ranker,
	publisher Publisher,
	deleter EmbeddingDeleter,
	eraser MemberEraser,
	appraiser Appraiser,
	weights WeightsAdmin,
	budgets BudgetReporter,
	health HealthChecker,
	cfg ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		ranker:    ranker,
		publisher: publisher,
		deleter:   deleter,
		eraser:    eraser,
		appraiser: appraiser,
		weights:   weights,
		budgets:   budgets,
		health:    health,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Routes registers every route on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/members/{memberID}/feed", s.Feed)
		r.Get("/members/{memberID}/trade-candidates", s.TradeCandidates)
		r.Put("/members/{memberID}/preference-embedding", s.PutPreferenceEmbedding)
		r.Delete("/members/{memberID}", s.DeleteMember)

		r.Post("/items/{itemID}/views", s.RecordView)
		r.Post("/items/{itemID}/likes", s.Like)
		r.Delete("/items/{itemID}/likes", s.Unlike)
		r.Put("/items/{itemID}/embedding", s.PutItemEmbedding)
		r.Delete("/items/{itemID}/embedding", s.DeleteItemEmbedding)
		r.Post("/items/embeddings", s.PutItemEmbeddings)

		r.Post("/ai/price-estimate", s.EstimatePrice)

		r.Get("/admin/scoring-weights", s.GetWeights)
		r.Put("/admin/scoring-weights", s.PutWeights)
		r.Get("/admin/budgets", s.GetBudgets)
	})
}

// Feed handles GET /v1/members/{memberID}/feed.
func (s *Server) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		sortParam, category string
		radius              float64
		page, size          int
	)
	for _, p := range []struct {
		name string
		dest any
	}{
		{"sort", &sortParam},
		{"category", &category},
		{"radius", &radius},
		{"page", &page},
		{"size", &size},
	} {
		if err := runtime.BindQueryParameter("form", true, false, p.name, q, p.dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid query parameter %s", p.name))
			return
		}
	}

	sort, err := ranking.ParseSortField(sortParam)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	paging, err := ranking.NewPaging(page, size, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	req, err := ranking.NewBrowseRequest(chi.URLParam(r, "memberID"), sort, radius, category, paging)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	result, err := s.ranker.Browse(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageToResponse(result))
}

// TradeCandidates handles GET /v1/members/{memberID}/trade-candidates.
func (s *Server) TradeCandidates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		target     string
		page, size int
	)
	if err := runtime.BindQueryParameter("form", true, true, "target_item_id", q, &target); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "target_item_id is required")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid query parameter page")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "size", q, &size); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid query parameter size")
		return
	}

	paging, err := ranking.NewPaging(page, size, s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	req, err := ranking.NewTradeRequest(chi.URLParam(r, "memberID"), target, paging)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	result, err := s.ranker.TradeCandidates(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageToResponse(result))
}

// RecordView handles POST /v1/items/{itemID}/views.
func (s *Server) RecordView(w http.ResponseWriter, r *http.Request) {
	s.interaction(w, r, dominter.TypeView)
}

// Like handles POST /v1/items/{itemID}/likes.
func (s *Server) Like(w http.ResponseWriter, r *http.Request) {
	s.interaction(w, r, dominter.TypeLike)
}

// Unlike handles DELETE /v1/items/{itemID}/likes.
func (s *Server) Unlike(w http.ResponseWriter, r *http.Request) {
	s.interaction(w, r, dominter.TypeUnlike)
}

func (s *Server) interaction(w http.ResponseWriter, r *http.Request, typ dominter.Type) {
	var req InteractionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.enqueue(queue.TopicInteraction, queue.InteractionEvent{
		MemberID:   req.MemberID,
		ItemID:     chi.URLParam(r, "itemID"),
		Category:   req.Category,
		Type:       typ,
		OccurredAt: s.now().UTC(),
	})
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// PutItemEmbedding handles PUT /v1/items/{itemID}/embedding.
func (s *Server) PutItemEmbedding(w http.ResponseWriter, r *http.Request) {
	var req ItemEmbeddingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.enqueue(queue.TopicItemEmbedding, queue.ItemEmbeddingJob{
		ItemID: chi.URLParam(r, "itemID"),
		Text:   req.Text,
	})
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// PutItemEmbeddings handles POST /v1/items/embeddings: one batch job for many items.
func (s *Server) PutItemEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req ItemEmbeddingBatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job := queue.ItemEmbeddingBatchJob{Items: make([]queue.ItemEmbeddingJob, len(req.Items))}
	for i, it := range req.Items {
		job.Items[i] = queue.ItemEmbeddingJob{ItemID: it.ItemID, Text: it.Text}
	}
	s.enqueue(queue.TopicItemEmbeddingBatch, job)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// DeleteItemEmbedding handles DELETE /v1/items/{itemID}/embedding. Best effort.
func (s *Server) DeleteItemEmbedding(w http.ResponseWriter, r *http.Request) {
	s.deleter.DeleteItemEmbedding(r.Context(), chi.URLParam(r, "itemID"))
	w.WriteHeader(http.StatusNoContent)
}

// PutPreferenceEmbedding handles PUT /v1/members/{memberID}/preference-embedding.
func (s *Server) PutPreferenceEmbedding(w http.ResponseWriter, r *http.Request) {
	var req PreferenceEmbeddingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.enqueue(queue.TopicPreferenceEmbedding, queue.PreferenceEmbeddingJob{
		MemberID:   chi.URLParam(r, "memberID"),
		Categories: req.Categories,
	})
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// DeleteMember handles DELETE /v1/members/{memberID}: the host's member
// deletion cascade into the engine's vectors and interaction counters.
func (s *Server) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.eraser.Erase(r.Context(), chi.URLParam(r, "memberID")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EstimatePrice handles POST /v1/ai/price-estimate.
func (s *Server) EstimatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceEstimateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	price, err := s.appraiser.Estimate(r.Context(), req.Text)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceEstimateResponse{Price: price})
}

// GetWeights handles GET /v1/admin/scoring-weights.
func (s *Server) GetWeights(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.weights.Load())
}

// PutWeights handles PUT /v1/admin/scoring-weights. Fields absent from the
// body keep their current value.
func (s *Server) PutWeights(w http.ResponseWriter, r *http.Request) {
	next := s.weights.Load()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.weights.Swap(next, scoringuc.SourceAPI); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.weights.Load())
}

// GetBudgets handles GET /v1/admin/budgets.
func (s *Server) GetBudgets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, BudgetsResponse{Budgets: s.budgets.Usage()})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// enqueue publishes fire-and-forget work. The caller is answered 202 even
// when the event is dropped; the bus counts drops.
func (s *Server) enqueue(topic string, v any) {
	if err := s.publisher.Publish(topic, v); err != nil {
		s.logger.Debug("Enqueue failed", zap.String("topic", topic), zap.Error(err))
	}
}

// decodeBody decodes and validates a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := validateBody(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return false
	}
	return true
}
