//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFatTreeShapeAndPlacement(t *testing.T) {
	m, err := New(Config{Kind: FatTree, FatTreeK: 4})
	require.NoError(t, err)
	assert.Equal(t, 16, m.WorldSize) // k * (k/2)^2 = 4*4
	assert.Equal(t, []int{0, 0, 0}, m.Placement[0].Dims)
	assert.Equal(t, []int{0, 1, 0}, m.Placement[2].Dims)
	assert.Equal(t, []int{1, 0, 0}, m.Placement[4].Dims)
}

func TestFatTreeRejectsOddK(t *testing.T) {
	_, err := New(Config{Kind: FatTree, FatTreeK: 3})
	assert.Error(t, err)
}

func TestFatTreeDistanceTiers(t *testing.T) {
	m, err := New(Config{Kind: FatTree, FatTreeK: 4})
	require.NoError(t, err)

	assert.Equal(t, 0, m.Distance(0, 0))
	assert.Equal(t, 2, m.Distance(0, 1))  // same edge
	assert.Equal(t, 4, m.Distance(0, 2))  // same pod, different edge
	assert.Equal(t, 6, m.Distance(0, 4))  // different pod
}

func TestTorusWraparoundDistance(t *testing.T) {
	m, err := New(Config{Kind: Torus, TorusDims: []int{4, 4}})
	require.NoError(t, err)
	assert.Equal(t, 16, m.WorldSize)

	// rank 0 -> (0,0); rank 3 -> (0,3); wraparound step is 1.
	assert.Equal(t, 1, m.Distance(0, 3))
	// rank 0 -> (0,0); rank 5 -> (1,1)
	assert.Equal(t, 2, m.Distance(0, 5))
}

func TestTorusRejectsZeroDimension(t *testing.T) {
	_, err := New(Config{Kind: Torus, TorusDims: []int{4, 0}})
	assert.Error(t, err)
}

func TestDragonflyDistanceTiers(t *testing.T) {
	m, err := New(Config{Kind: Dragonfly, DragonflyGroups: 2, DragonflyRoutersPerGroup: 2, DragonflyHostsPerRouter: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, m.WorldSize)

	assert.Equal(t, 1, m.Distance(0, 1)) // same router, sibling host
	assert.Equal(t, 2, m.Distance(0, 2)) // same group, different router
	assert.Equal(t, 3, m.Distance(0, 4)) // different group
}

func TestFlatAllPairsAreOneHop(t *testing.T) {
	m, err := New(Config{Kind: Flat, FlatSize: 6})
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if i == j {
				assert.Equal(t, 0, m.Distance(i, j))
			} else {
				assert.Equal(t, 1, m.Distance(i, j))
			}
		}
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	models := []*Model{}
	m1, _ := New(Config{Kind: FatTree, FatTreeK: 4})
	m2, _ := New(Config{Kind: Torus, TorusDims: []int{3, 3, 3}})
	m3, _ := New(Config{Kind: Dragonfly, DragonflyGroups: 3, DragonflyRoutersPerGroup: 2, DragonflyHostsPerRouter: 2})
	models = append(models, m1, m2, m3)

	for _, m := range models {
		for a := 0; a < m.WorldSize; a++ {
			for b := 0; b < m.WorldSize; b++ {
				assert.Equal(t, m.Distance(a, b), m.Distance(b, a))
			}
		}
	}
}

func TestApplyMeasurementFlagsMonotonicityViolation(t *testing.T) {
	m, err := New(Config{Kind: FatTree, FatTreeK: 4})
	require.NoError(t, err)

	// edge-agg normally sits between compute-edge and agg-core latency;
	// force it faster than compute-edge to trip the flag.
	err = m.ApplyMeasurement("edge-agg", 40000, 0.1)
	require.NoError(t, err)
	assert.True(t, m.Tiers[1].LowConfidence)
}

func TestApplyMeasurementUnknownTier(t *testing.T) {
	m, err := New(Config{Kind: Flat, FlatSize: 4})
	require.NoError(t, err)
	err = m.ApplyMeasurement("no-such-tier", 1, 1)
	assert.Error(t, err)
}

func TestBisectionBandwidthPositive(t *testing.T) {
	for _, cfg := range []Config{
		{Kind: FatTree, FatTreeK: 4},
		{Kind: Torus, TorusDims: []int{4, 4}},
		{Kind: Dragonfly, DragonflyGroups: 2, DragonflyRoutersPerGroup: 2, DragonflyHostsPerRouter: 2},
		{Kind: Flat, FlatSize: 8},
	} {
		m, err := New(cfg)
		require.NoError(t, err)
		assert.Greater(t, m.BisectionBandwidth(), 0.0)
	}
}

func TestAlphaBetaDerivedFromInnermostTier(t *testing.T) {
	m, err := New(Config{Kind: FatTree, FatTreeK: 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Alpha())
	assert.Greater(t, m.Beta(), 0.0)
}
