package hashvec

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/tradematch/internal/domain"
	"github.com/kailas-cloud/tradematch/internal/domain/embedding"
)

func TestEmbed_DeterministicUnitVector(t *testing.T) {
	p := New("hash", 64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "Road bike, carbon frame")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Embed(ctx, "road BIKE carbon frame")
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Embedding) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a.Embedding))
	}
	sim, err := embedding.Cosine(a.Embedding, b.Embedding)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sim-1) > 1e-6 {
		t.Errorf("expected identical token sets to match, sim=%f", sim)
	}

	var norm float64
	for _, v := range a.Embedding {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestEmbed_SharedWordsAreCloser(t *testing.T) {
	p := New("hash", 256)
	ctx := context.Background()

	base, _ := p.Embed(ctx, "vintage film camera lens")
	near, _ := p.Embed(ctx, "film camera with lens")
	far, _ := p.Embed(ctx, "garden hose reel")

	simNear, _ := embedding.Cosine(base.Embedding, near.Embedding)
	simFar, _ := embedding.Cosine(base.Embedding, far.Embedding)
	if simNear <= simFar {
		t.Errorf("expected shared words to be closer: near=%f far=%f", simNear, simFar)
	}
}

func TestEmbed_EmptyTextIsZero(t *testing.T) {
	res, err := New("", 8).Embed(context.Background(), "  ,, ")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range res.Embedding {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", res.Embedding)
		}
	}
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New("hash", 8).Embed(ctx, "x")
	if !errors.Is(err, domain.ErrAICallFailed) {
		t.Fatalf("expected ErrAICallFailed, got %v", err)
	}
}

func TestBatchEmbed_Order(t *testing.T) {
	p := New("hash", 32)
	ctx := context.Background()

	res, err := p.BatchEmbed(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatal(err)
	}
	single, _ := p.Embed(ctx, "beta")
	sim, _ := embedding.Cosine(res.Embeddings[1], single.Embedding)
	if math.Abs(sim-1) > 1e-6 {
		t.Errorf("batch order not preserved")
	}
}

func TestPredictPrice_Fixed(t *testing.T) {
	p := New("hash", 8)
	got, err := p.PredictPrice(context.Background(), "two words")
	if err != nil {
		t.Fatal(err)
	}
	if got != basePrice+2*pricePerToken {
		t.Errorf("unexpected price %d", got)
	}
}

func TestGenerateText_JSON(t *testing.T) {
	out, err := New("hash", 8).GenerateText(context.Background(), "one", domain.GenerationConfig{Format: domain.ResponseFormatJSON})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"price": 10500}` {
		t.Errorf("unexpected reply %q", out)
	}
}
