package scoring

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// Weights is an immutable snapshot of the ranking configuration.
// A ranking pass reads exactly one snapshot; reloads replace the whole value.
type Weights struct {
	TimeDecayLambda float64 `yaml:"time_decay_lambda" json:"time_decay_lambda" validate:"gt=0"`
	ExplicitWeight  float64 `yaml:"explicit_weight" json:"explicit_weight" validate:"gte=0"`
	ImplicitWeight  float64 `yaml:"implicit_weight" json:"implicit_weight" validate:"gte=0"`
	CategoryWeight  float64 `yaml:"category_weight" json:"category_weight" validate:"gte=0"`
	FreshnessWeight float64 `yaml:"freshness_weight" json:"freshness_weight" validate:"gte=0"`
	LikeWeight      float64 `yaml:"like_weight" json:"like_weight" validate:"gte=0"`
	ViewWeight      float64 `yaml:"view_weight" json:"view_weight" validate:"gte=0"`
}

// DefaultWeights returns the weights used when no configuration is supplied.
func DefaultWeights() Weights {
	return Weights{
		TimeDecayLambda: 0.1,
		ExplicitWeight:  0.6,
		ImplicitWeight:  0.4,
		CategoryWeight:  0.7,
		FreshnessWeight: 0.3,
		LikeWeight:      2.0,
		ViewWeight:      1.0,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the recognized ranges: lambda > 0, every weight >= 0.
func (w Weights) Validate() error {
	err := getValidator().Struct(w)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidWeights, err.Error())
	}

	msgs := make([]string, len(ve))
	for i, fe := range ve {
		op := ">="
		if fe.Tag() == "gt" {
			op = ">"
		}
		msgs[i] = fmt.Sprintf("%s must be %s %s", fe.Field(), op, fe.Param())
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidWeights, strings.Join(msgs, "; "))
}
