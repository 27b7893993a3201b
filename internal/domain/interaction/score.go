// Package interaction models the per-member implicit behavior counters.
package interaction

import "fmt"

// Type is a viewer action that mutates an interaction score.
type Type string

// Interaction types.
const (
	TypeView   Type = "VIEW"
	TypeLike   Type = "LIKE"
	TypeUnlike Type = "UNLIKE"
)

// ParseType validates an interaction type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeView, TypeLike, TypeUnlike:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown interaction type %q", s)
	}
}

// Score is one (member, category) counter row.
type Score struct {
	memberID   string
	category   string
	viewCount  int64
	likeCount  int64
	totalScore float64
}

// Reconstruct creates a Score from stored counters (storage hydration).
func Reconstruct(memberID, category string, views, likes int64, total float64) Score {
	return Score{
		memberID:   memberID,
		category:   category,
		viewCount:  views,
		likeCount:  likes,
		totalScore: total,
	}
}

// MemberID returns the owning member.
func (s *Score) MemberID() string { return s.memberID }

// Category returns the item category the counters belong to.
func (s *Score) Category() string { return s.category }

// ViewCount returns the number of counted views.
func (s *Score) ViewCount() int64 { return s.viewCount }

// LikeCount returns the current like balance, never negative.
func (s *Score) LikeCount() int64 { return s.likeCount }

// TotalScore returns viewCount*wView + likeCount*wLike as of the last mutation.
func (s *Score) TotalScore() float64 { return s.totalScore }

// Totals indexes scores by category.
func Totals(scores []Score) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for i := range scores {
		out[scores[i].category] = scores[i].totalScore
	}
	return out
}
