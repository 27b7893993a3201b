package chi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/tradematch/internal/domain/ranking"
	embeddinguc "github.com/kailas-cloud/tradematch/internal/usecase/embedding"
)

// InteractionRequest is the body of view and like endpoints.
type InteractionRequest struct {
	MemberID string `json:"member_id" validate:"required,max=128"`
	Category string `json:"category" validate:"required,max=128"`
}

// ItemEmbeddingRequest is the body of PUT /v1/items/{itemID}/embedding.
type ItemEmbeddingRequest struct {
	Text string `json:"text" validate:"required,max=8000"`
}

// ItemEmbeddingEntry is one item of a batch embedding request.
type ItemEmbeddingEntry struct {
	ItemID string `json:"item_id" validate:"required,max=128"`
	Text   string `json:"text" validate:"required,max=8000"`
}

// ItemEmbeddingBatchRequest is the body of POST /v1/items/embeddings.
type ItemEmbeddingBatchRequest struct {
	Items []ItemEmbeddingEntry `json:"items" validate:"required,min=1,max=256,dive"`
}

// PreferenceEmbeddingRequest is the body of PUT /v1/members/{memberID}/preference-embedding.
type PreferenceEmbeddingRequest struct {
	Categories []string `json:"categories" validate:"required,min=1,max=64,dive,required,max=128"`
}

// PriceEstimateRequest is the body of POST /v1/ai/price-estimate.
type PriceEstimateRequest struct {
	Text string `json:"text" validate:"required"`
}

// PriceEstimateResponse carries the appraised price in whole currency units.
type PriceEstimateResponse struct {
	Price int64 `json:"price"`
}

// AcceptedResponse acknowledges enqueued work.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// RankedItem is one entry of a ranked page.
type RankedItem struct {
	ItemID         string   `json:"item_id"`
	Score          *float64 `json:"score,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}

// PageResponse is a ranked, paged result.
type PageResponse struct {
	Items []RankedItem `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Sort  string       `json:"sort"`
}

// BudgetsResponse is the body of GET /v1/admin/budgets.
type BudgetsResponse struct {
	Budgets []embeddinguc.BudgetUsage `json:"budgets"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

func pageToResponse(p ranking.Page) PageResponse {
	items := make([]RankedItem, len(p.Items))
	for i, r := range p.Items {
		items[i] = RankedItem{ItemID: r.ItemID, Score: r.Score, DistanceMeters: r.DistanceMeters}
	}
	return PageResponse{
		Items: items,
		Total: p.Total,
		Page:  p.Page,
		Size:  p.Size,
		Sort:  string(p.Sort),
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateBody returns a client-facing message listing every failed field.
func validateBody(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate body: %w", err)
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
	return errors.New(strings.Join(msgs, "; "))
}
