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

func flatDefaultTiers() []Tier {
	return []Tier{
		{Name: "flat", BandwidthMbps: 10000, LatencyMicros: 1},
	}
}

// newFlat builds a uniform all-pairs mesh: every rank is one hop from
// every other, used as the model's own fallback when nothing more
// specific is known about the interconnect.
func newFlat(cfg Config) (*Model, error) {
	n := cfg.FlatSize
	if n <= 0 {
		return nil, cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("flat topology needs a positive size, got %d", n))
	}

	placement := make([]Coordinate, n)
	for rank := 0; rank < n; rank++ {
		placement[rank] = Coordinate{Dims: []int{rank}}
	}

	tiers := flatDefaultTiers()
	validateMonotoneDefaults(tiers)

	m := &Model{
		Kind:      Flat,
		WorldSize: n,
		Placement: placement,
		Tiers:     tiers,
		cfg:       cfg,
		// Assume a full mesh: n/2 links cross any bisecting cut.
		bisectionBandwidthMbps: float64(n) / 2 * tiers[0].BandwidthMbps,
	}
	return m, nil
}
