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

// dragonflyDefaultTiers mirror the fat-tree's recorded defaults: a
// router's local group of hosts behaves like an edge switch's rack, the
// rest of the group behaves like a pod, and another group is the
// cross-pod case.
func dragonflyDefaultTiers() []Tier {
	return []Tier{
		{Name: "intra-router", BandwidthMbps: 10000, LatencyMicros: 1},
		{Name: "intra-group", BandwidthMbps: 40000, LatencyMicros: 2},
		{Name: "inter-group", BandwidthMbps: 40000, LatencyMicros: 5},
	}
}

func newDragonfly(cfg Config) (*Model, error) {
	g, r, h := cfg.DragonflyGroups, cfg.DragonflyRoutersPerGroup, cfg.DragonflyHostsPerRouter
	if g <= 0 || r <= 0 || h <= 0 {
		return nil, cerrors.New(cerrors.KindInvalidConfig,
			fmt.Sprintf("dragonfly shape needs positive groups/routers/hosts, got (%d,%d,%d)", g, r, h))
	}

	n := g * r * h
	placement := make([]Coordinate, n)
	for rank := 0; rank < n; rank++ {
		group := rank / (r * h)
		rem := rank % (r * h)
		router := rem / h
		host := rem % h
		placement[rank] = Coordinate{Dims: []int{group, router, host}}
	}

	tiers := dragonflyDefaultTiers()
	validateMonotoneDefaults(tiers)

	m := &Model{
		Kind:      Dragonfly,
		WorldSize: n,
		Placement: placement,
		Tiers:     tiers,
		cfg:       cfg,
		// Global (inter-group) links: one per router (g*r in all), half
		// of which are counted as crossing the bisecting cut.
		bisectionBandwidthMbps: float64(g*r) / 2 * tiers[len(tiers)-1].BandwidthMbps,
	}
	return m, nil
}

// dragonflyDistance classifies two distinct dragonfly coordinates: 1 hop
// for router siblings, 2 for same-group different-router, 3 across
// groups.
func dragonflyDistance(a, b Coordinate) int {
	ga, ra := a.Dims[0], a.Dims[1]
	gb, rb := b.Dims[0], b.Dims[1]
	switch {
	case ga == gb && ra == rb:
		return 1
	case ga == gb:
		return 2
	default:
		return 3
	}
}
