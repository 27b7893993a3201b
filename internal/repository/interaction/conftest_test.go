package interaction

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/tradematch/internal/db"
)

// memStore is an in-memory store. Eval emulates applyScript and viewScript;
// a failing Eval leaves no state behind, like a Lua script.
type memStore struct {
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	kv     map[string]string

	evalErr  error
	lastTTL  time.Duration
	evalKeys []string
	evalArgs []string
}

func newMemStore() *memStore {
	return &memStore{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		kv:     make(map[string]string),
	}
}

func (m *memStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		h := make(map[string]string, len(m.hashes[k]))
		for f, v := range m.hashes[k] {
			h[f] = v
		}
		out[i] = h
	}
	return out, nil
}

func (m *memStore) SMembers(_ context.Context, key string) ([]string, error) {
	out := make([]string, 0, len(m.sets[key]))
	for v := range m.sets[key] {
		out = append(out, v)
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.sets, k)
		delete(m.kv, k)
	}
	return nil
}

func (m *memStore) Eval(_ context.Context, script db.Script, keys, args []string) ([]string, error) {
	if m.evalErr != nil {
		return nil, m.evalErr
	}
	m.evalKeys, m.evalArgs = keys, args
	switch script.Name {
	case applyScript.Name:
	case viewScript.Name:
		if _, ok := m.kv[keys[2]]; ok {
			return []string{}, nil
		}
		ms, err := strconv.ParseInt(args[5], 10, 64)
		if err != nil {
			return nil, err
		}
		m.kv[keys[2]] = "1"
		m.lastTTL = time.Duration(ms) * time.Millisecond
	default:
		return nil, fmt.Errorf("unexpected script %s", script.Name)
	}

	h := m.hashes[keys[0]]
	if h == nil {
		h = make(map[string]string)
		m.hashes[keys[0]] = h
	}
	views, _ := strconv.ParseInt(h["view_count"], 10, 64)
	likes, _ := strconv.ParseInt(h["like_count"], 10, 64)
	switch args[0] {
	case "VIEW":
		views++
	case "LIKE":
		likes++
	case "UNLIKE":
		if likes > 0 {
			likes--
		}
	default:
		return nil, fmt.Errorf("unknown interaction type %s", args[0])
	}
	wView, _ := strconv.ParseFloat(args[1], 64)
	wLike, _ := strconv.ParseFloat(args[2], 64)
	total := float64(views)*wView + float64(likes)*wLike

	h["member_id"] = args[4]
	h["category"] = args[3]
	h["view_count"] = strconv.FormatInt(views, 10)
	h["like_count"] = strconv.FormatInt(likes, 10)
	h["total_score"] = strconv.FormatFloat(total, 'f', -1, 64)

	if m.sets[keys[1]] == nil {
		m.sets[keys[1]] = make(map[string]struct{})
	}
	m.sets[keys[1]][args[3]] = struct{}{}

	return []string{h["view_count"], h["like_count"], h["total_score"]}, nil
}

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(ms), ms
}
