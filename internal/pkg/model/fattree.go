//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package model

import (
	"fmt"

	"github.com/clusterkit/topoopt/pkg/cerrors"
)

// fatTreeDefaultTiers are the harness's recorded defaults: compute-edge
// (intra-rack, same edge switch), edge-agg (intra-pod, same pod
// different edge switch) and agg-core (cross-pod).
func fatTreeDefaultTiers() []Tier {
	return []Tier{
		{Name: "compute-edge", BandwidthMbps: 10000, LatencyMicros: 1},
		{Name: "edge-agg", BandwidthMbps: 40000, LatencyMicros: 2},
		{Name: "agg-core", BandwidthMbps: 40000, LatencyMicros: 5},
	}
}

func newFatTree(cfg Config) (*Model, error) {
	k := cfg.FatTreeK
	if k <= 0 || k%2 != 0 {
		return nil, cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("fat-tree k must be a positive even number, got %d", k))
	}

	edgePerPod := k / 2
	computePerEdge := k / 2
	pods := k
	n := pods * edgePerPod * computePerEdge

	placement := make([]Coordinate, n)
	podSize := edgePerPod * computePerEdge
	for rank := 0; rank < n; rank++ {
		pod := rank / podSize
		rem := rank % podSize
		edge := rem / computePerEdge
		slot := rem % computePerEdge
		placement[rank] = Coordinate{Dims: []int{pod, edge, slot}}
	}

	cores := edgePerPod * computePerEdge // (k/2)^2
	tiers := fatTreeDefaultTiers()
	validateMonotoneDefaults(tiers)

	m := &Model{
		Kind:      FatTree,
		WorldSize: n,
		Placement: placement,
		Tiers:     tiers,
		cfg:       cfg,
		// Idealized non-blocking fat-tree: every core switch contributes
		// its full agg-core link capacity across any bisecting cut.
		bisectionBandwidthMbps: float64(cores) * tiers[len(tiers)-1].BandwidthMbps,
	}
	return m, nil
}

// fatTreeDistance classifies two distinct fat-tree coordinates by how
// far up the tree their paths must diverge: 2 hops if they share an
// edge switch, 4 if they share only a pod, 6 otherwise.
func fatTreeDistance(a, b Coordinate) int {
	pa, ea := a.Dims[0], a.Dims[1]
	pb, eb := b.Dims[0], b.Dims[1]
	switch {
	case pa == pb && ea == eb:
		return 2
	case pa == pb:
		return 4
	default:
		return 6
	}
}
