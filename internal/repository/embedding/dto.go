package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	domemb "github.com/kailas-cloud/tradematch/internal/domain/embedding"
)

// Hash field names.
const (
	fieldID         = "id"
	fieldOriginID   = "origin_id"
	fieldOriginKind = "origin_kind"
	fieldProvider   = "provider"
	fieldDim        = "dim"
	fieldVector     = "vector"
	fieldCreatedAt  = "created_at"
)

// buildHashFields converts a Vector into a flat map for HSET.
// Every field is always written, so an HSET fully replaces the previous vector.
func buildHashFields(v *domemb.Vector) map[string]string {
	return map[string]string{
		fieldID:         v.ID().String(),
		fieldOriginID:   v.OriginID(),
		fieldOriginKind: string(v.OriginKind()),
		fieldProvider:   v.Provider(),
		fieldDim:        strconv.Itoa(v.Dimensions()),
		fieldVector:     vectorToBytes(v.Values()),
		fieldCreatedAt:  strconv.FormatInt(v.CreatedAt(), 10),
	}
}

// parseHashFields converts a stored hash back into a Vector.
func parseHashFields(m map[string]string) (domemb.Vector, error) {
	id, err := uuid.Parse(m[fieldID])
	if err != nil {
		return domemb.Vector{}, fmt.Errorf("parse id: %w", err)
	}

	values := bytesToVector(m[fieldVector])
	if dim, err := strconv.Atoi(m[fieldDim]); err != nil || dim != len(values) {
		return domemb.Vector{}, fmt.Errorf("stored dim %q does not match %d components", m[fieldDim], len(values))
	}

	createdAt, _ := strconv.ParseInt(m[fieldCreatedAt], 10, 64)

	return domemb.Reconstruct(
		id,
		m[fieldOriginID],
		domemb.OriginKind(m[fieldOriginKind]),
		values,
		m[fieldProvider],
		createdAt,
	), nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	n := len(b) / 4
	vec := make([]float32, n)
	for i := range n {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}
