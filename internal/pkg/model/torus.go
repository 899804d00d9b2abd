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

func torusDefaultTiers() []Tier {
	return []Tier{
		{Name: "torus-dim", BandwidthMbps: 10000, LatencyMicros: 1},
	}
}

func newTorus(cfg Config) (*Model, error) {
	dims := cfg.TorusDims
	if len(dims) < 2 {
		return nil, cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("torus needs at least 2 dimensions, got %d", len(dims)))
	}
	n := 1
	for i, d := range dims {
		if d < 1 {
			return nil, cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("torus dimension %d has non-positive extent %d", i, d))
		}
		n *= d
	}

	placement := make([]Coordinate, n)
	for rank := 0; rank < n; rank++ {
		placement[rank] = Coordinate{Dims: torusRankToCoord(rank, dims)}
	}

	tiers := torusDefaultTiers()
	validateMonotoneDefaults(tiers)

	// Bisection cut along the largest dimension crosses two wraparound
	// links per "row" of the remaining dimensions.
	largest := dims[0]
	for _, d := range dims[1:] {
		if d > largest {
			largest = d
		}
	}
	rows := n / largest

	m := &Model{
		Kind:                   Torus,
		WorldSize:              n,
		Placement:              placement,
		Tiers:                  tiers,
		cfg:                    cfg,
		bisectionBandwidthMbps: float64(2*rows) * tiers[0].BandwidthMbps,
	}
	return m, nil
}

// torusRankToCoord decodes a row-major rank into per-dimension
// coordinates: dims[0] varies slowest, dims[len-1] fastest.
func torusRankToCoord(rank int, dims []int) []int {
	coord := make([]int, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		coord[i] = rank % dims[i]
		rank /= dims[i]
	}
	return coord
}

// torusDistance is the wraparound Manhattan distance: for each
// dimension, the shorter of the direct and the wraparound step count.
func torusDistance(a, b Coordinate, dims []int) int {
	total := 0
	for i := range dims {
		delta := a.Dims[i] - b.Dims[i]
		if delta < 0 {
			delta = -delta
		}
		wrap := dims[i] - delta
		if wrap < delta {
			total += wrap
		} else {
			total += delta
		}
	}
	return total
}
