//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package algorithms

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

func floatBuf(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func floatsFromBuf(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func runOnAllRanks(n int, fn func(rank int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for r := 0; r < n; r++ {
		go func(r int) {
			defer wg.Done()
			errs[r] = fn(r)
		}(r)
	}
	wg.Wait()
	return errs
}

func flatModel(t *testing.T, n int) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{Kind: model.Flat, FlatSize: n})
	require.NoError(t, err)
	return m
}

func TestBinomialTreeBroadcastFourRanks(t *testing.T) {
	n := 4
	comms := substrate.NewComms(n)
	bufs := make([][]byte, n)
	for r := 0; r < n; r++ {
		bufs[r] = floatBuf(0, 0, 0, 0)
	}
	copy(bufs[0], floatBuf(1, 2, 3, 4))

	errs := runOnAllRanks(n, func(r int) error {
		return BinomialTreeBroadcast(comms[r], bufs[r], 0)
	})
	for r := 0; r < n; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, []float64{1, 2, 3, 4}, floatsFromBuf(bufs[r]), "rank %d", r)
	}
}

func TestBinomialTreeBroadcastNonPowerOfTwo(t *testing.T) {
	n := 5
	comms := substrate.NewComms(n)
	bufs := make([][]byte, n)
	for r := 0; r < n; r++ {
		bufs[r] = make([]byte, 8)
	}
	copy(bufs[2], floatBuf(42))

	errs := runOnAllRanks(n, func(r int) error {
		return BinomialTreeBroadcast(comms[r], bufs[r], 2)
	})
	for r := 0; r < n; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, 42.0, floatsFromBuf(bufs[r])[0], "rank %d", r)
	}
}

func TestBinomialTreeBroadcastSingleRankIsNoOp(t *testing.T) {
	comms := substrate.NewComms(1)
	buf := floatBuf(7)
	require.NoError(t, BinomialTreeBroadcast(comms[0], buf, 0))
	assert.Equal(t, 7.0, floatsFromBuf(buf)[0])
}

func TestScatterAllgatherBroadcastFourRanks(t *testing.T) {
	n := 4
	comms := substrate.NewComms(n)
	original := make([]float64, 37)
	for i := range original {
		original[i] = float64(i) * 1.5
	}
	bufs := make([][]byte, n)
	for r := 0; r < n; r++ {
		bufs[r] = make([]byte, 8*len(original))
	}
	copy(bufs[1], floatBuf(original...))

	errs := runOnAllRanks(n, func(r int) error {
		return ScatterAllgatherBroadcast(comms[r], bufs[r], 1)
	})
	for r := 0; r < n; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, original, floatsFromBuf(bufs[r]), "rank %d", r)
	}
}

func TestScatterAllgatherBroadcastNonPowerOfTwo(t *testing.T) {
	n := 5
	comms := substrate.NewComms(n)
	original := make([]float64, 23)
	for i := range original {
		original[i] = float64(i)
	}
	bufs := make([][]byte, n)
	for r := 0; r < n; r++ {
		bufs[r] = make([]byte, 8*len(original))
	}
	copy(bufs[0], floatBuf(original...))

	errs := runOnAllRanks(n, func(r int) error {
		return ScatterAllgatherBroadcast(comms[r], bufs[r], 0)
	})
	for r := 0; r < n; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, original, floatsFromBuf(bufs[r]), "rank %d", r)
	}
}

func TestChainOrderStartsAtRoot(t *testing.T) {
	m := flatModel(t, 6)
	chain := ChainOrder(m, 3, 6)
	require.Len(t, chain, 6)
	assert.Equal(t, 3, chain[0])

	seen := make(map[int]bool)
	for _, r := range chain {
		seen[r] = true
	}
	assert.Len(t, seen, 6)
}

func TestPipelineBroadcastFourRanks(t *testing.T) {
	n := 4
	m := flatModel(t, n)
	comms := substrate.NewComms(n)
	original := make([]float64, 50)
	for i := range original {
		original[i] = float64(i) + 0.25
	}
	bufs := make([][]byte, n)
	for r := 0; r < n; r++ {
		bufs[r] = make([]byte, 8*len(original))
	}
	copy(bufs[0], floatBuf(original...))

	errs := runOnAllRanks(n, func(r int) error {
		return PipelineBroadcast(comms[r], bufs[r], 0, m)
	})
	for r := 0; r < n; r++ {
		require.NoError(t, errs[r])
		assert.Equal(t, original, floatsFromBuf(bufs[r]), "rank %d", r)
	}
}

func TestSegmentCountIsAtLeastOne(t *testing.T) {
	m := flatModel(t, 8)
	assert.GreaterOrEqual(t, SegmentCount(m, 1024, 8), 1)
	assert.Equal(t, 1, SegmentCount(m, 0, 8))
	assert.Equal(t, 1, SegmentCount(m, 1024, 1))
}
