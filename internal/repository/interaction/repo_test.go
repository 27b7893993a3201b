package interaction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	dominter "github.com/kailas-cloud/tradematch/internal/domain/interaction"
	"github.com/kailas-cloud/tradematch/internal/domain/scoring"
)

func TestApply_PassesKeysAndWeights(t *testing.T) {
	repo, ms := newTestRepo(t)
	w := scoring.DefaultWeights()

	score, err := repo.Apply(context.Background(), "m1", "books", dominter.TypeLike, w)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if score.LikeCount() != 1 || score.TotalScore() != w.LikeWeight {
		t.Errorf("unexpected score: likes=%d total=%v", score.LikeCount(), score.TotalScore())
	}

	if ms.evalKeys[0] != "tm:iscore:{m1}:c:books" || ms.evalKeys[1] != "tm:iscore:{m1}:categories" {
		t.Errorf("unexpected keys: %v", ms.evalKeys)
	}
	if ms.evalArgs[0] != "LIKE" || ms.evalArgs[1] != "1" || ms.evalArgs[2] != "2" || ms.evalArgs[4] != "m1" {
		t.Errorf("unexpected args: %v", ms.evalArgs)
	}
}

func TestApply_UnlikeFloorsAtZero(t *testing.T) {
	repo, _ := newTestRepo(t)

	score, err := repo.Apply(context.Background(), "m1", "books", dominter.TypeUnlike, scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if score.LikeCount() != 0 || score.TotalScore() != 0 {
		t.Errorf("expected zero row, got likes=%d total=%v", score.LikeCount(), score.TotalScore())
	}
}

func TestApply_TotalRecomputed(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	w := scoring.DefaultWeights()

	for _, typ := range []dominter.Type{dominter.TypeView, dominter.TypeView, dominter.TypeLike} {
		if _, err := repo.Apply(ctx, "m1", "books", typ, w); err != nil {
			t.Fatalf("apply %s: %v", typ, err)
		}
	}
	score, err := repo.Apply(ctx, "m1", "books", dominter.TypeUnlike, w)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if score.ViewCount() != 2 || score.LikeCount() != 0 || score.TotalScore() != 2*w.ViewWeight {
		t.Errorf("unexpected score: views=%d likes=%d total=%v",
			score.ViewCount(), score.LikeCount(), score.TotalScore())
	}
}

func TestApply_EvalError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.evalErr = errors.New("NOSCRIPT")
	if _, err := repo.Apply(context.Background(), "m1", "books", dominter.TypeView, scoring.DefaultWeights()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRecordView_OncePerDay(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	w := scoring.DefaultWeights()

	score, counted, err := repo.RecordView(ctx, "20260301", "m1", "i1", "books", 48*time.Hour, w)
	if err != nil || !counted || score.ViewCount() != 1 {
		t.Fatalf("first view: %v, %v, %v", score, counted, err)
	}
	_, counted, err = repo.RecordView(ctx, "20260301", "m1", "i1", "books", 48*time.Hour, w)
	if err != nil || counted {
		t.Fatalf("repeat view: %v, %v", counted, err)
	}
	score, counted, err = repo.RecordView(ctx, "20260302", "m1", "i1", "books", 48*time.Hour, w)
	if err != nil || !counted || score.ViewCount() != 2 {
		t.Fatalf("next day view: %v, %v, %v", score, counted, err)
	}
	if ms.lastTTL != 48*time.Hour {
		t.Errorf("unexpected ttl %v", ms.lastTTL)
	}
	if _, ok := ms.kv["tm:view:{m1}:20260301:i1"]; !ok {
		t.Error("expected view record key")
	}
}

func TestRecordView_KeysShareMemberSlot(t *testing.T) {
	repo, ms := newTestRepo(t)
	if _, _, err := repo.RecordView(context.Background(), "20260301", "m1", "i1", "books", time.Hour, scoring.DefaultWeights()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ms.evalKeys) != 3 {
		t.Fatalf("keys = %v", ms.evalKeys)
	}
	for _, k := range ms.evalKeys {
		if !strings.Contains(k, "{m1}") {
			t.Errorf("key %s outside the member hash slot", k)
		}
	}
	if ms.evalArgs[0] != "VIEW" || ms.evalArgs[5] != "3600000" {
		t.Errorf("unexpected args %v", ms.evalArgs)
	}
}

func TestRecordView_FailureLeavesNoMarker(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	w := scoring.DefaultWeights()

	ms.evalErr = errors.New("redis blip")
	if _, _, err := repo.RecordView(ctx, "20260301", "m1", "i1", "books", time.Hour, w); err == nil {
		t.Fatal("expected error")
	}
	ms.evalErr = nil

	_, counted, err := repo.RecordView(ctx, "20260301", "m1", "i1", "books", time.Hour, w)
	if err != nil || !counted {
		t.Fatalf("retry: %v, %v", counted, err)
	}
	scores, err := repo.Scores(ctx, "m1")
	if err != nil || len(scores) != 1 || scores[0].ViewCount() != 1 {
		t.Fatalf("scores = %v, err = %v", scores, err)
	}
}

func TestViewScript_MarksAndCountsInOneScript(t *testing.T) {
	if !strings.Contains(viewScript.Source, "'NX'") || !strings.HasSuffix(viewScript.Source, applyBody) {
		t.Errorf("view script must guard and apply in one script:\n%s", viewScript.Source)
	}
}

func TestScores(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	w := scoring.DefaultWeights()

	if _, err := repo.Apply(ctx, "m1", "books", dominter.TypeView, w); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Apply(ctx, "m1", "tools", dominter.TypeLike, w); err != nil {
		t.Fatal(err)
	}

	scores, err := repo.Scores(ctx, "m1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	totals := dominter.Totals(scores)
	if len(totals) != 2 || totals["books"] != w.ViewWeight || totals["tools"] != w.LikeWeight {
		t.Errorf("unexpected totals: %v", totals)
	}
}

func TestScores_UnknownMember(t *testing.T) {
	repo, _ := newTestRepo(t)
	scores, err := repo.Scores(context.Background(), "ghost")
	if err != nil || scores != nil {
		t.Fatalf("expected nil, nil; got %v, %v", scores, err)
	}
}

func TestDeleteMember(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Apply(ctx, "m1", "books", dominter.TypeView, scoring.DefaultWeights()); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteMember(ctx, "m1"); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	for k := range ms.hashes {
		if strings.Contains(k, "{m1}") {
			t.Errorf("key %s survived member deletion", k)
		}
	}
	if len(ms.sets) != 0 {
		t.Errorf("category set survived: %v", ms.sets)
	}
}

func TestParseCounters_Invalid(t *testing.T) {
	if _, _, _, err := parseCounters("x", "0", "0"); err == nil {
		t.Fatal("expected error")
	}
}
