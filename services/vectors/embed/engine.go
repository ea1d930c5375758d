// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed turns text into fixed-dimension unit-norm vectors.
//
// The default engine is a deterministic feature-hashing sentence encoder:
// no model files, no network, bit-identical output for identical input.
// That determinism is what the vector store's tests and cache keys rely on.
package embed

import (
	"context"
	"hash/fnv"
	"math"
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

// =============================================================================
// Engine Interface
// =============================================================================

// Engine converts text to embeddings.
//
// # Description
//
// Implementations must be deterministic: EmbedBatch([x])[0] is bit-identical
// to Embed(x), and every returned vector is L2-normalized to within 1e-5.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Embed returns the vector for one text. Empty or whitespace-only
	// input fails with InvalidArgument.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in order. Batches larger
	// than the engine's chunk size are processed transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed width of every returned vector.
	Dimension() int

	// Model names the loaded encoder.
	Model() string
}

// =============================================================================
// Feature-Hash Engine
// =============================================================================

const (
	// ModelFeatureHash is the default deterministic encoder.
	ModelFeatureHash = "feature-hash-v1"

	// DefaultDimension matches the MiniLM-class models the original
	// deployment used, so stored collections keep their width.
	DefaultDimension = 384

	// maxBatch is the largest chunk embedded in one pass.
	maxBatch = 64

	// bigramWeight down-weights word-pair features against single words.
	bigramWeight = 0.5
)

// featureHashEngine hashes lowercase word and word-bigram features into a
// fixed-width accumulator and L2-normalizes the result.
//
// Inference is pure CPU but still bounded by a semaphore so a burst of
// large batches cannot monopolize the process.
type featureHashEngine struct {
	dim int
	sem *semaphore.Weighted
}

// Options configures NewFeatureHashEngine.
type Options struct {
	// Dimension is the vector width; 0 selects DefaultDimension.
	Dimension int

	// Workers bounds concurrent inference; 0 selects GOMAXPROCS.
	Workers int
}

// NewFeatureHashEngine creates the deterministic encoder.
func NewFeatureHashEngine(opts Options) Engine {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &featureHashEngine{
		dim: opts.Dimension,
		sem: semaphore.NewWeighted(int64(opts.Workers)),
	}
}

var _ Engine = (*featureHashEngine)(nil)

func (e *featureHashEngine) Dimension() int { return e.dim }

func (e *featureHashEngine) Model() string { return ModelFeatureHash }

// Embed implements Engine.
func (e *featureHashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)
	return e.encode(text)
}

// EmbedBatch implements Engine. Larger batches are chunked; each chunk is
// one semaphore admission.
func (e *featureHashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		for i := start; i < end; i++ {
			vec, err := e.encode(texts[i])
			if err != nil {
				e.sem.Release(1)
				return nil, err
			}
			out = append(out, vec)
		}
		e.sem.Release(1)
	}
	return out, nil
}

// encode is the deterministic core shared by Embed and EmbedBatch.
func (e *featureHashEngine) encode(text string) ([]float32, error) {
	words := tokenize(text)
	if len(words) == 0 {
		return nil, faults.InvalidArgument("text", "must not be empty or whitespace-only")
	}

	acc := make([]float32, e.dim)
	for _, w := range words {
		e.addFeature(acc, w, 1)
	}
	for i := 0; i+1 < len(words); i++ {
		e.addFeature(acc, words[i]+" "+words[i+1], bigramWeight)
	}

	normalize(acc)
	return acc, nil
}

// addFeature hashes one feature to an index and sign and accumulates its
// weight. FNV-64a keeps the mapping stable across platforms.
func (e *featureHashEngine) addFeature(acc []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalize scales vec to unit L2 norm in place. The accumulator is never
// all-zero here because at least one feature contributed a non-zero weight.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
