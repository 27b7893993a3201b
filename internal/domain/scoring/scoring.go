// Package scoring holds the pure ranking math: freshness decay, category
// preference blend and the final composite. Nothing here performs I/O.
package scoring

import (
	"math"
	"time"
)

const millisPerDay = 24 * 60 * 60 * 1000

// DaysSince returns fractional days elapsed from createdAt to now, clamped at 0.
func DaysSince(createdAt, now time.Time) float64 {
	ms := now.Sub(createdAt).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(ms) / millisPerDay
}

// Freshness returns exp(-lambda * days) in (0, 1]. Items from the future score 1.
func Freshness(createdAt, now time.Time, lambda float64) float64 {
	return math.Exp(-lambda * DaysSince(createdAt, now))
}

// CombineCategoryScore blends the explicit preference flag with an implicit
// score already normalized to [0, 1] by the caller.
func CombineCategoryScore(w Weights, explicitlyPreferred bool, normalizedImplicit float64) float64 {
	score := normalizedImplicit * w.ImplicitWeight
	if explicitlyPreferred {
		score += w.ExplicitWeight
	}
	return score
}

// CalculateFinalScore is the linear composite used for browse ordering. Not clamped.
func CalculateFinalScore(w Weights, categoryScore, freshness float64) float64 {
	return categoryScore*w.CategoryWeight + freshness*w.FreshnessWeight
}

// TotalInteractionScore recomputes an InteractionScore total from its counters.
func TotalInteractionScore(w Weights, views, likes int64) float64 {
	return float64(views)*w.ViewWeight + float64(likes)*w.LikeWeight
}

// NormalizeImplicit divides every score by the maximum so the strongest
// category maps to 1. Non-positive maxima leave every category at 0.
func NormalizeImplicit(totals map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(totals))
	var maxScore float64
	for _, v := range totals {
		if v > maxScore {
			maxScore = v
		}
	}
	for k, v := range totals {
		if maxScore <= 0 || v <= 0 {
			out[k] = 0
			continue
		}
		out[k] = v / maxScore
	}
	return out
}
