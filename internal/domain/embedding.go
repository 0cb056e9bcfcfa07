package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Embedding is an immutable, fixed-dimension vector representation of text.
// Construction is the only place dimension/finiteness/non-zero invariants
// are checked; once built, callers can assume validity.
type Embedding struct {
	values []float32
}

// NewEmbedding validates values against the configured dimension and returns
// an immutable Embedding. It rejects empty vectors, vectors whose length
// differs from dimension, all-zero vectors, and non-finite components.
func NewEmbedding(values []float32, dimension int) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, Validationf("embedding must not be empty")
	}
	if dimension > 0 && len(values) != dimension {
		return Embedding{}, NewError(KindEmbeddingDimension,
			fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", dimension, len(values)), nil)
	}
	nonZero := false
	for _, v := range values {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Embedding{}, Validationf("embedding contains a non-finite component")
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return Embedding{}, Validationf("embedding must have at least one non-zero component")
	}

	cp := make([]float32, len(values))
	copy(cp, values)
	return Embedding{values: cp}, nil
}

// Values returns a defensive copy of the embedding's components.
func (e Embedding) Values() []float32 {
	cp := make([]float32, len(e.values))
	copy(cp, e.values)
	return cp
}

// Dimension returns the number of components.
func (e Embedding) Dimension() int { return len(e.values) }

// IsZero reports whether this is the unconstructed zero value.
func (e Embedding) IsZero() bool { return e.values == nil }

// MarshalJSON encodes the embedding as a plain float array so it can travel
// through caches and wire transports without exposing its invariants.
func (e Embedding) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(e.values)
}

// UnmarshalJSON rebuilds an Embedding from a plain float array without
// re-validating dimension (the caller is expected to have already stored a
// valid embedding; a null value decodes to the zero Embedding).
func (e *Embedding) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = Embedding{}
		return nil
	}
	var values []float32
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	e.values = values
	return nil
}

// WithPadding zero-pads a narrower native embedding out to targetDim. Per
// spec.md §4.4/§9, truncation is never performed here — callers must not
// invoke this when len(values) > targetDim.
func WithPadding(values []float32, targetDim int) []float32 {
	if len(values) >= targetDim {
		return values
	}
	padded := make([]float32, targetDim)
	copy(padded, values)
	return padded
}
