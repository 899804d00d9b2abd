//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

func flatModel(t *testing.T, n int) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{Kind: model.Flat, FlatSize: n})
	require.NoError(t, err)
	return m
}

func torusModel(t *testing.T, dims []int) *model.Model {
	t.Helper()
	m, err := model.New(model.Config{Kind: model.Torus, TorusDims: dims})
	require.NoError(t, err)
	return m
}

func TestDecideBroadcastSmallMessageIsBinomialTree(t *testing.T) {
	o := New(flatModel(t, 16))
	plan, err := o.Decide(Descriptor{Op: Broadcast, N: 16, Count: 8, DatatypeSize: 8})
	require.NoError(t, err)
	assert.Equal(t, AlgoBinomialTree, plan.Algorithm)
}

func TestDecideBroadcastLargeMessageWideGroupIsScatterAllgather(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Broadcast, N: 8, Count: 1 << 20, DatatypeSize: 1})
	require.NoError(t, err)
	assert.Equal(t, AlgoScatterAllgather, plan.Algorithm)
}

func TestDecideBroadcastLargeMessageNarrowGroupFallsBackToBinomialTree(t *testing.T) {
	o := New(flatModel(t, 4))
	plan, err := o.Decide(Descriptor{Op: Broadcast, N: 4, Count: 1 << 20, DatatypeSize: 1})
	require.NoError(t, err)
	assert.Equal(t, AlgoBinomialTree, plan.Algorithm)
}

func TestDecideBroadcastMidSizedOnTorusIsPipeline(t *testing.T) {
	o := New(torusModel(t, []int{4, 4}))
	plan, err := o.Decide(Descriptor{Op: Broadcast, N: 16, Count: 32 * 1024, DatatypeSize: 1})
	require.NoError(t, err)
	assert.Equal(t, AlgoPipeline, plan.Algorithm)
	assert.GreaterOrEqual(t, plan.Segments, 1)
}

func TestDecideAllreducePowerOfTwoSmallIsRecursiveDoubling(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Allreduce, N: 8, Count: 4, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoRecursiveDoubling, plan.Algorithm)
}

func TestDecideAllreducePowerOfTwoLargerIsHalvingDoubling(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Allreduce, N: 8, Count: 4096, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoHalvingDoubling, plan.Algorithm)
}

func TestDecideAllreduceNonPowerOfTwoIsRing(t *testing.T) {
	o := New(flatModel(t, 6))
	plan, err := o.Decide(Descriptor{Op: Allreduce, N: 6, Count: 4, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoRing, plan.Algorithm)
}

func TestDecideAllreduceVeryLargeMessageIsRing(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Allreduce, N: 8, Count: 1 << 20, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoRing, plan.Algorithm)
}

func TestDecideAllreduceNonCommutativeOpForcesTreeFallback(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Allreduce, N: 8, Count: 4, DatatypeSize: 8, ReductionOp: substrate.Op(99)})
	require.NoError(t, err)
	assert.Equal(t, AlgoTreeReduceBroadcast, plan.Algorithm)
}

func TestDecideReduceSmallIsBinomialTree(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Reduce, N: 8, Count: 4, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoBinomialReduce, plan.Algorithm)
}

func TestDecideReduceLargeIsReduceScatterGather(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Reduce, N: 8, Count: 1 << 20, DatatypeSize: 8, ReductionOp: substrate.OpSum})
	require.NoError(t, err)
	assert.Equal(t, AlgoReduceScatterGather, plan.Algorithm)
}

func TestDecideAllgatherPowerOfTwoSmallIsRecursiveDoubling(t *testing.T) {
	o := New(flatModel(t, 8))
	plan, err := o.Decide(Descriptor{Op: Allgather, N: 8, Count: 4, DatatypeSize: 8})
	require.NoError(t, err)
	assert.Equal(t, AlgoRecursiveDoubling, plan.Algorithm)
}

func TestDecideAllgatherNonPowerOfTwoIsRing(t *testing.T) {
	o := New(flatModel(t, 5))
	plan, err := o.Decide(Descriptor{Op: Allgather, N: 5, Count: 4, DatatypeSize: 8})
	require.NoError(t, err)
	assert.Equal(t, AlgoRing, plan.Algorithm)
}

func TestDecideRejectsInvalidDescriptor(t *testing.T) {
	o := New(flatModel(t, 8))
	_, err := o.Decide(Descriptor{Op: Broadcast, N: 0, Count: 4, DatatypeSize: 1})
	assert.Error(t, err)

	_, err = o.Decide(Descriptor{Op: Broadcast, N: 8, Count: 4, DatatypeSize: 1, Root: 8})
	assert.Error(t, err)
}

func TestDeriveThresholdsFallsBackToDefaultsWithoutModel(t *testing.T) {
	th := DeriveThresholds(nil)
	assert.Equal(t, DefaultSmallThreshold, th.Small)
	assert.Equal(t, DefaultLargeThreshold, th.Large)
}

func TestDeriveThresholdsKeepsDefaultRatio(t *testing.T) {
	th := DeriveThresholds(flatModel(t, 8))
	assert.Equal(t, th.Small*largeToSmallRatio, th.Large)
}

func TestInvalidateCacheDropsEntries(t *testing.T) {
	o := New(flatModel(t, 8))
	_, err := o.Decide(Descriptor{Op: Broadcast, N: 8, Count: 4, DatatypeSize: 8})
	require.NoError(t, err)
	require.Equal(t, 1, o.cache.len())
	o.InvalidateCache()
	assert.Equal(t, 0, o.cache.len())
}
