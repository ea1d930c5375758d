// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package embed

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
)

func TestEmbedDimensionAndNorm(t *testing.T) {
	e := NewFeatureHashEngine(Options{})
	require.Equal(t, DefaultDimension, e.Dimension())
	require.Equal(t, ModelFeatureHash, e.Model())

	vec, err := e.Embed(context.Background(), "license holder in Brooklyn")
	require.NoError(t, err)
	require.Len(t, vec, DefaultDimension)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5, "vector must be unit norm")
}

func TestEmbedDeterministic(t *testing.T) {
	e := NewFeatureHashEngine(Options{})

	a, err := e.Embed(context.Background(), "property filing 1234")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "property filing 1234")
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical input must produce bit-identical output")

	c, err := e.Embed(context.Background(), "property filing 1235")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEmbedBatchMatchesEmbed(t *testing.T) {
	e := NewFeatureHashEngine(Options{})
	text := "corporate registration record"

	single, err := e.Embed(context.Background(), text)
	require.NoError(t, err)

	batch, err := e.EmbedBatch(context.Background(), []string{text})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, single, batch[0], "EmbedBatch([x])[0] must equal Embed(x) bit-for-bit")
}

func TestEmbedBatchChunksLargeInput(t *testing.T) {
	e := NewFeatureHashEngine(Options{Workers: 2})

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = fmt.Sprintf("record number %d", i)
	}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 150)

	// Position 100 crosses a chunk boundary; it must still match a
	// standalone embed of the same text.
	single, err := e.Embed(context.Background(), texts[100])
	require.NoError(t, err)
	assert.Equal(t, single, vecs[100])
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	e := NewFeatureHashEngine(Options{})

	for _, input := range []string{"", "   ", "\t\n", "...---..."} {
		_, err := e.Embed(context.Background(), input)
		require.Error(t, err, "input %q", input)
		assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
	}

	_, err := e.EmbedBatch(context.Background(), []string{"fine", ""})
	require.Error(t, err)
	assert.Equal(t, faults.KindInvalidArgument, faults.KindOf(err))
}

func TestEmbedCustomDimension(t *testing.T) {
	e := NewFeatureHashEngine(Options{Dimension: 64})
	vec, err := e.Embed(context.Background(), "short")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}
