package embedding

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/kailas-cloud/tradematch/internal/domain"
)

// OriginKind tells what a vector was computed from.
type OriginKind string

// Origin kinds.
const (
	OriginItem           OriginKind = "ITEM"
	OriginMemberCategory OriginKind = "MEMBER_CATEGORY"
)

// Valid reports whether k is a known origin kind.
func (k OriginKind) Valid() bool {
	return k == OriginItem || k == OriginMemberCategory
}

// Vector is the stored embedding aggregate. At most one current Vector exists
// per (origin id, origin kind).
type Vector struct {
	id         uuid.UUID
	originID   string
	originKind OriginKind
	values     []float32
	provider   string
	createdAt  int64 // unix millis
}

// New validates and creates a Vector with a fresh id.
func New(originID string, kind OriginKind, values []float32, provider string, createdAt int64) (Vector, error) {
	if originID == "" {
		return Vector{}, fmt.Errorf("origin id is required")
	}
	if !kind.Valid() {
		return Vector{}, fmt.Errorf("unknown origin kind %q", kind)
	}
	if len(values) == 0 {
		return Vector{}, fmt.Errorf("vector is empty")
	}
	if provider == "" {
		return Vector{}, fmt.Errorf("provider is required")
	}

	v := make([]float32, len(values))
	copy(v, values)

	return Vector{
		id:         uuid.New(),
		originID:   originID,
		originKind: kind,
		values:     v,
		provider:   provider,
		createdAt:  createdAt,
	}, nil
}

// Reconstruct creates a Vector without validation (storage hydration).
func Reconstruct(
	id uuid.UUID, originID string, kind OriginKind,
	values []float32, provider string, createdAt int64,
) Vector {
	return Vector{
		id:         id,
		originID:   originID,
		originKind: kind,
		values:     values,
		provider:   provider,
		createdAt:  createdAt,
	}
}

// ID returns the vector identifier.
func (v *Vector) ID() uuid.UUID { return v.id }

// OriginID returns the item or member id the vector belongs to.
func (v *Vector) OriginID() string { return v.originID }

// OriginKind returns the origin kind.
func (v *Vector) OriginKind() OriginKind { return v.originKind }

// Values returns the raw components.
func (v *Vector) Values() []float32 { return v.values }

// Dimensions returns the vector length.
func (v *Vector) Dimensions() int { return len(v.values) }

// Provider returns the name of the backend that produced the vector.
func (v *Vector) Provider() string { return v.provider }

// CreatedAt returns the creation time in unix millis.
func (v *Vector) CreatedAt() int64 { return v.createdAt }

// IsZero reports whether every component is zero. Zero vectors come from
// malformed batch elements and never match anything.
func (v *Vector) IsZero() bool {
	for _, f := range v.values {
		if f != 0 {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Vectors of different length are not comparable; a zero-norm side yields 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%d vs %d: %w", len(a), len(b), domain.ErrEmbeddingDimensionMismatch)
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// rounding can push |sim| marginally past 1
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// Zero returns a zero vector of length dim.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}
