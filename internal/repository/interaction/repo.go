// Package interaction stores per-member, per-category interaction counters
// and daily view records in Redis.
package interaction

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/tradematch/internal/db"
	"github.com/kailas-cloud/tradematch/internal/domain"
	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
)

const (
	scorePrefix = domain.KeyPrefix + "iscore:"
	viewPrefix  = domain.KeyPrefix + "view:"
)

// store is the consumer interface for counters (ISP).
type store interface {
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	Eval(ctx context.Context, script db.Script, keys, args []string) ([]string, error)
}

// Repo implements the interaction repository.
type Repo struct {
	store store
}

// New creates an interaction repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Apply atomically mutates the (member, category) counters and recomputes
// the total score with w. UNLIKE never takes the like count below zero.
func (r *Repo) Apply(
	ctx context.Context, memberID, category string, typ dominter.Type, w scoring.Weights,
) (dominter.Score, error) {
	keys := []string{scoreKey(memberID, category), categoriesKey(memberID)}
	args := []string{
		string(typ),
		strconv.FormatFloat(w.ViewWeight, 'f', -1, 64),
		strconv.FormatFloat(w.LikeWeight, 'f', -1, 64),
		category,
		memberID,
	}

	reply, err := r.store.Eval(ctx, applyScript, keys, args)
	if err != nil {
		return dominter.Score{}, fmt.Errorf("apply %s %s/%s: %w", typ, memberID, category, err)
	}
	if len(reply) != 3 {
		return dominter.Score{}, fmt.Errorf("apply %s: unexpected reply length %d", typ, len(reply))
	}

	views, likes, total, err := parseCounters(reply[0], reply[1], reply[2])
	if err != nil {
		return dominter.Score{}, fmt.Errorf("apply %s: %w", typ, err)
	}
	return dominter.Reconstruct(memberID, category, views, likes, total), nil
}

// RecordView counts the first view of item by member on day (yyyymmdd).
// The view marker and the counter change are written atomically, so a failed
// call leaves nothing behind. Reports false when the view was already
// counted for that day.
func (r *Repo) RecordView(
	ctx context.Context, day, memberID, itemID, category string, ttl time.Duration, w scoring.Weights,
) (dominter.Score, bool, error) {
	keys := []string{scoreKey(memberID, category), categoriesKey(memberID), viewKey(day, memberID, itemID)}
	args := []string{
		string(dominter.TypeView),
		strconv.FormatFloat(w.ViewWeight, 'f', -1, 64),
		strconv.FormatFloat(w.LikeWeight, 'f', -1, 64),
		category,
		memberID,
		strconv.FormatInt(ttl.Milliseconds(), 10),
	}

	reply, err := r.store.Eval(ctx, viewScript, keys, args)
	if err != nil {
		return dominter.Score{}, false, fmt.Errorf("record view %s/%s: %w", memberID, itemID, err)
	}
	if len(reply) == 0 {
		return dominter.Score{}, false, nil
	}
	if len(reply) != 3 {
		return dominter.Score{}, false, fmt.Errorf("record view: unexpected reply length %d", len(reply))
	}

	views, likes, total, err := parseCounters(reply[0], reply[1], reply[2])
	if err != nil {
		return dominter.Score{}, false, fmt.Errorf("record view: %w", err)
	}
	return dominter.Reconstruct(memberID, category, views, likes, total), true, nil
}

// Scores returns every category row of a member. Unknown members yield nil.
func (r *Repo) Scores(ctx context.Context, memberID string) ([]dominter.Score, error) {
	categories, err := r.store.SMembers(ctx, categoriesKey(memberID))
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", memberID, err)
	}
	if len(categories) == 0 {
		return nil, nil
	}

	keys := make([]string, len(categories))
	for i, c := range categories {
		keys[i] = scoreKey(memberID, c)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi %s: %w", memberID, err)
	}

	scores := make([]dominter.Score, 0, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		views, likes, total, err := parseCounters(m["view_count"], m["like_count"], m["total_score"])
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		scores = append(scores, dominter.Reconstruct(memberID, categories[i], views, likes, total))
	}
	return scores, nil
}

// DeleteMember removes every counter row of a member. Used by the host
// backend's member deletion cascade.
func (r *Repo) DeleteMember(ctx context.Context, memberID string) error {
	categories, err := r.store.SMembers(ctx, categoriesKey(memberID))
	if err != nil {
		return fmt.Errorf("smembers %s: %w", memberID, err)
	}

	keys := make([]string, 0, len(categories)+1)
	for _, c := range categories {
		keys = append(keys, scoreKey(memberID, c))
	}
	keys = append(keys, categoriesKey(memberID))

	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del member %s: %w", memberID, err)
	}
	return nil
}

func parseCounters(views, likes, total string) (int64, int64, float64, error) {
	v, err := parseInt(views)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("view_count: %w", err)
	}
	l, err := parseInt(likes)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("like_count: %w", err)
	}
	t, err := parseFloat(total)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("total_score: %w", err)
	}
	return v, l, t, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// All keys of a member share the {member} hash tag so each Lua script
// touches a single cluster slot.
func scoreKey(memberID, category string) string {
	return scorePrefix + "{" + memberID + "}:c:" + category
}

func categoriesKey(memberID string) string {
	return scorePrefix + "{" + memberID + "}:categories"
}

func viewKey(day, memberID, itemID string) string {
	return viewPrefix + "{" + memberID + "}:" + day + ":" + itemID
}
