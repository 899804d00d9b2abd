//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package model holds the network-characteristics value object: topology
// kind, per-tier bandwidth/latency, process placement and the derived
// distance function the algorithm library and optimizer read from. It is
// built once per process group; after New returns it, the only change
// this package makes to a *Model is ApplyMeasurement overwriting one
// tier with measured values.
package model

import (
	"fmt"

	"github.com/clusterkit/topoopt/pkg/cerrors"
)

// Kind is a tagged variant over the supported interconnect shapes.
// Distance and placement are computed per variant through a switch in
// this package, not through per-kind types implementing a Distance
// interface — the hot path (called once per collective-algorithm round)
// stays branchless after a single kind check instead of paying a virtual
// dispatch on every hop.
type Kind int

const (
	FatTree Kind = iota
	Torus
	Dragonfly
	Flat
)

func (k Kind) String() string {
	switch k {
	case FatTree:
		return "FAT_TREE"
	case Torus:
		return "TORUS"
	case Dragonfly:
		return "DRAGONFLY"
	case Flat:
		return "FLAT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tier is one level of the interconnect hierarchy: compute-edge/
// intra-rack for a fat-tree or dragonfly router, a torus dimension link,
// or the single flat tier. Tiers are ordered innermost (cheapest hop)
// to outermost (most expensive hop); Model.tierIsMonotone relies on that
// order.
type Tier struct {
	Name          string
	BandwidthMbps float64
	LatencyMicros float64

	// LowConfidence is set when a measured sample overwrote this tier's
	// defaults and violated the monotonicity invariant against its
	// neighbors. The measured value is kept; only the confidence flag
	// changes.
	LowConfidence bool
}

// Config is the literal, caller-supplied description of a topology's
// shape. Exactly one group of shape fields applies, selected by Kind;
// the others are ignored. Nothing here is auto-discovered, per the
// system's external interface contract: topology kind and shape are
// supplied at construction time.
type Config struct {
	Kind Kind

	// FatTreeK is the k in a k-ary fat-tree. Must be even and > 0.
	FatTreeK int

	// TorusDims holds one extent per torus dimension (len 2 for a 2D
	// torus, 3 for 3D, etc). Every extent must be >= 1.
	TorusDims []int

	// Dragonfly shape: Groups groups, each with RoutersPerGroup routers,
	// each router serving HostsPerRouter compute hosts.
	DragonflyGroups          int
	DragonflyRoutersPerGroup int
	DragonflyHostsPerRouter  int

	// FlatSize is the world size for a flat (uniform all-pairs) mesh.
	FlatSize int
}

// Coordinate is a topology-specific tuple: [pod,edge,slot] for a
// fat-tree, one int per dimension for a torus, [group,router,host] for
// dragonfly, [rank] for flat.
type Coordinate struct {
	Dims []int
}

// Model is the network-characteristics value object. After New, only
// ApplyMeasurement changes it.
type Model struct {
	Kind      Kind
	WorldSize int
	Placement []Coordinate

	Tiers []Tier

	bisectionBandwidthMbps float64

	cfg Config
}

// New validates cfg and builds the placement and tier defaults for it.
// Invalid shapes (odd fat-tree k, a zero torus dimension, a non-positive
// dragonfly or flat size) are rejected here, per the error handling
// design's "invalid configuration" kind — fatal at construction, never
// deferred to first use.
func New(cfg Config) (*Model, error) {
	switch cfg.Kind {
	case FatTree:
		return newFatTree(cfg)
	case Torus:
		return newTorus(cfg)
	case Dragonfly:
		return newDragonfly(cfg)
	case Flat:
		return newFlat(cfg)
	default:
		return nil, cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("unknown topology kind %v", cfg.Kind))
	}
}

// Distance returns the non-negative hop count between ra and rb under
// the topology's routing. Distance is symmetric and zero iff ra == rb.
func (m *Model) Distance(ra, rb int) int {
	if ra == rb {
		return 0
	}
	switch m.Kind {
	case FatTree:
		return fatTreeDistance(m.Placement[ra], m.Placement[rb])
	case Torus:
		return torusDistance(m.Placement[ra], m.Placement[rb], m.cfg.TorusDims)
	case Dragonfly:
		return dragonflyDistance(m.Placement[ra], m.Placement[rb])
	case Flat:
		return 1
	default:
		return 0
	}
}

// BisectionBandwidth is the derived scalar bandwidth-dominant algorithm
// selection reads: the minimum aggregate bandwidth across any cut that
// halves the machine, under this topology's idealized link capacities.
func (m *Model) BisectionBandwidth() float64 { return m.bisectionBandwidthMbps }

// Alpha is the per-hop latency (microseconds) of the innermost tier,
// the α term of the α/β cost model the algorithm library's cost
// estimates use.
func (m *Model) Alpha() float64 {
	if len(m.Tiers) == 0 {
		return 0
	}
	return m.Tiers[0].LatencyMicros
}

// Beta is the inverse bandwidth (microseconds per byte, so that
// m*Beta() gives microseconds for an m-byte message) of the innermost
// tier, the β term of the α/β cost model.
func (m *Model) Beta() float64 {
	if len(m.Tiers) == 0 || m.Tiers[0].BandwidthMbps <= 0 {
		return 0
	}
	// Mbps is megabits/second; 8 bits/byte, 1e6 for Mega, 1e6 for
	// seconds->microseconds cancels, leaving bits->bytes and Mega.
	return 8.0 / m.Tiers[0].BandwidthMbps
}

// ApplyMeasurement overwrites a tier's bandwidth/latency with a measured
// sample. If the new value breaks monotonicity against the tier's
// neighbors, the value is kept (measured beats assumed) but the tier is
// flagged low-confidence — a measurement anomaly, never fatal.
func (m *Model) ApplyMeasurement(tierName string, bandwidthMbps, latencyMicros float64) error {
	idx := -1
	for i := range m.Tiers {
		if m.Tiers[i].Name == tierName {
			idx = i
			break
		}
	}
	if idx == -1 {
		return cerrors.New(cerrors.KindInvalidConfig, fmt.Sprintf("unknown tier %q", tierName))
	}
	m.Tiers[idx].BandwidthMbps = bandwidthMbps
	m.Tiers[idx].LatencyMicros = latencyMicros
	m.Tiers[idx].LowConfidence = !m.tierIsMonotone(idx)
	return nil
}

// tierIsMonotone reports whether tier idx's latency is not faster than
// its inner neighbor's and not slower than its outer neighbor's, and
// likewise for bandwidth (outer tiers assumed no faster per-hop).
func (m *Model) tierIsMonotone(idx int) bool {
	if idx > 0 {
		inner := m.Tiers[idx-1]
		if m.Tiers[idx].LatencyMicros < inner.LatencyMicros {
			return false
		}
		if m.Tiers[idx].BandwidthMbps > inner.BandwidthMbps {
			return false
		}
	}
	if idx < len(m.Tiers)-1 {
		outer := m.Tiers[idx+1]
		if m.Tiers[idx].LatencyMicros > outer.LatencyMicros {
			return false
		}
		if m.Tiers[idx].BandwidthMbps < outer.BandwidthMbps {
			return false
		}
	}
	return true
}

func validateMonotoneDefaults(tiers []Tier) {
	for i := range tiers {
		tiers[i].LowConfidence = false
	}
}
