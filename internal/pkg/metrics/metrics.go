//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package metrics registers the Prometheus collectors the optimizer and
// measurement harness export. Import this package anywhere in the
// binary to get the collectors registered on the default registry
// before promhttp.Handler serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts optimizer decisions by collective kind and
	// the algorithm chosen, so a dashboard can see the selection policy's
	// actual behavior across a run rather than just its source code.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topoopt_optimizer_decisions_total",
			Help: "Total optimizer DECIDE outcomes, by collective op and algorithm chosen.",
		},
		[]string{"op", "algorithm"},
	)

	// CacheLookupsTotal counts decision-cache lookups by hit/miss, the
	// single number that tells you whether the LRU is sized right for
	// the call-site diversity a workload actually has.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topoopt_optimizer_cache_lookups_total",
			Help: "Decision cache lookups, labelled hit or miss.",
		},
		[]string{"result"},
	)

	// AlgorithmLatency is a per-algorithm histogram of EXECUTE-stage wall
	// time. Buckets span 1us to ~1s, covering both a small binomial
	// broadcast and a multi-megabyte ring allreduce on a slow link.
	AlgorithmLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "topoopt_algorithm_latency_seconds",
			Help:    "EXECUTE-stage wall-clock latency per collective, by op and algorithm.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 14),
		},
		[]string{"op", "algorithm"},
	)

	// MeasuredBandwidth is a gauge of the most recent harness bandwidth
	// measurement per rank pair, labelled "ra-rb" as passed to
	// measure.MeasurePointToPointBandwidth.
	MeasuredBandwidth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topoopt_measured_bandwidth_mbps",
			Help: "Most recent measured bandwidth in Mbps, by rank pair (ra-rb).",
		},
		[]string{"pair"},
	)

	// MeasurementPhaseMillis is the wall-clock time a measurement pass
	// spent in its warmup rounds versus its measured rounds, from
	// internal/pkg/timer's named-section stopwatch. A warmup phase that
	// dwarfs the measured phase is a sign the harness's warmup/iteration
	// counts need retuning for the substrate at hand.
	MeasurementPhaseMillis = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "topoopt_measurement_phase_millis",
			Help: "Most recent measurement pass duration in milliseconds, by phase (warmup or measured).",
		},
		[]string{"phase"},
	)
)
