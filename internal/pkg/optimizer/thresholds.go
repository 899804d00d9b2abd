//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package optimizer

import "github.com/clusterkit/topoopt/internal/pkg/model"

// Thresholds holds the optimizer's small/large message-size crossover
// points, in bytes.
type Thresholds struct {
	Small int
	Large int
}

const (
	// DefaultSmallThreshold and DefaultLargeThreshold are the fallback
	// crossover points used when a model carries no latency/bandwidth
	// figures to parameterize thresholds from (Alpha()/Beta() both 0).
	DefaultSmallThreshold = 4 * 1024
	DefaultLargeThreshold = 256 * 1024

	// largeToSmallRatio keeps Large a fixed multiple of Small when both
	// are derived from the model, matching the 4 KiB/256 KiB default
	// ratio rather than inventing an unrelated one.
	largeToSmallRatio = DefaultLargeThreshold / DefaultSmallThreshold
)

// DeriveThresholds computes T_small and T_large from m's innermost-tier
// α/β figures, per §4.D: "thresholds are model-parameterized: derived
// from link_latency/link_bandwidth so that the algorithm crossover
// follows measured α/β." The natural crossover of the α+m·β cost model
// is the message size where α and m·β contribute equally, m = α/β;
// T_small is pinned there (floored at the documented 4 KiB default so a
// very fast, low-latency link doesn't collapse the small-message regime
// to nothing) and T_large keeps the same ratio to T_small as the
// defaults. A model with no usable α/β (Alpha or Beta is zero, e.g. an
// unconfigured Flat model) falls back to the fixed defaults outright.
func DeriveThresholds(m *model.Model) Thresholds {
	if m == nil {
		return Thresholds{Small: DefaultSmallThreshold, Large: DefaultLargeThreshold}
	}

	alpha, beta := m.Alpha(), m.Beta()
	if alpha <= 0 || beta <= 0 {
		return Thresholds{Small: DefaultSmallThreshold, Large: DefaultLargeThreshold}
	}

	small := int(alpha / beta)
	if small < DefaultSmallThreshold {
		small = DefaultSmallThreshold
	}
	return Thresholds{Small: small, Large: small * largeToSmallRatio}
}
