//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package measure is the measurement harness: ping-pong latency,
// point-to-point bandwidth, and an all-to-all bandwidth sweep, each
// summarized through internal/pkg/stats's outlier-trimmed sample set
// rather than a plain loop average.
package measure

import (
	"fmt"

	"github.com/clusterkit/topoopt/internal/pkg/metrics"
	"github.com/clusterkit/topoopt/internal/pkg/progress"
	"github.com/clusterkit/topoopt/internal/pkg/stats"
	"github.com/clusterkit/topoopt/internal/pkg/timer"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

const (
	sectionWarmup   = "warmup"
	sectionMeasured = "measured"
)

func recordPhaseMillis(h *timer.Handle) {
	metrics.MeasurementPhaseMillis.WithLabelValues(sectionWarmup).Set(h.Elapsed(sectionWarmup))
	metrics.MeasurementPhaseMillis.WithLabelValues(sectionMeasured).Set(h.Elapsed(sectionMeasured))
}

const (
	// DefaultBandwidthWarmup and DefaultBandwidthIterations match the
	// harness's recorded bandwidth-measurement defaults.
	DefaultBandwidthWarmup     = 5
	DefaultBandwidthIterations = 10

	// DefaultLatencyWarmup and DefaultLatencyIterations match the
	// harness's recorded latency-measurement defaults.
	DefaultLatencyWarmup     = 100
	DefaultLatencyIterations = 1000

	tagLatencyPingPong = 9001
	tagBandwidthXfer   = 9002
)

// MeasurePointToPointLatency runs a ping-pong between ra and rb and
// returns the one-way latency in microseconds, averaged over
// measuredIters after warmupIters warmup rounds and trimmed of Tukey
// fence outliers. Every rank in the communicator must call this with
// the same arguments: ranks outside {ra,rb} take no part beyond the
// per-round barrier and get back 0.
func MeasurePointToPointLatency(c substrate.Comm, ra, rb, warmupIters, measuredIters int) (float64, error) {
	rank := c.Rank()
	participant := rank == ra || rank == rb
	buf := make([]byte, 8)

	pingPong := func() error {
		switch rank {
		case ra:
			if err := c.Send(buf, rb, tagLatencyPingPong); err != nil {
				return err
			}
			return c.Recv(buf, rb, tagLatencyPingPong)
		case rb:
			if err := c.Recv(buf, ra, tagLatencyPingPong); err != nil {
				return err
			}
			return c.Send(buf, ra, tagLatencyPingPong)
		}
		return nil
	}

	h := timer.New()

	h.Start(sectionWarmup)
	for i := 0; i < warmupIters; i++ {
		if participant {
			if err := pingPong(); err != nil {
				return 0, cerrors.Wrap(cerrors.KindSubstrateFailure, "latency warmup round failed", err)
			}
		}
	}
	h.Stop()

	sample := stats.New()
	h.Start(sectionMeasured)
	for i := 0; i < measuredIters; i++ {
		c.Barrier()
		start := c.Wtime()
		if participant {
			if err := pingPong(); err != nil {
				return 0, cerrors.Wrap(cerrors.KindSubstrateFailure, "latency measurement round failed", err)
			}
			roundTripSeconds := c.Wtime() - start
			sample.Add(roundTripSeconds * 1e6 / 2.0)
		}
	}
	h.Stop()
	recordPhaseMillis(h)

	if !participant {
		return 0, nil
	}
	sample.RemoveOutliers(stats.DefaultOutlierMultiplier)
	return sample.Mean(), nil
}

// MeasurePointToPointBandwidth transfers messageBytes from ra to rb and
// returns the achieved bandwidth in Mbps, averaged over measuredIters
// after warmupIters warmup rounds and trimmed of Tukey fence outliers.
// Same collective-call contract as MeasurePointToPointLatency.
func MeasurePointToPointBandwidth(c substrate.Comm, ra, rb, messageBytes, warmupIters, measuredIters int) (float64, error) {
	rank := c.Rank()
	participant := rank == ra || rank == rb
	buf := make([]byte, messageBytes)

	xfer := func() error {
		switch rank {
		case ra:
			return c.Send(buf, rb, tagBandwidthXfer)
		case rb:
			return c.Recv(buf, ra, tagBandwidthXfer)
		}
		return nil
	}

	h := timer.New()

	h.Start(sectionWarmup)
	for i := 0; i < warmupIters; i++ {
		if participant {
			if err := xfer(); err != nil {
				return 0, cerrors.Wrap(cerrors.KindSubstrateFailure, "bandwidth warmup round failed", err)
			}
		}
	}
	h.Stop()

	sample := stats.New()
	h.Start(sectionMeasured)
	for i := 0; i < measuredIters; i++ {
		c.Barrier()
		start := c.Wtime()
		if participant {
			if err := xfer(); err != nil {
				return 0, cerrors.Wrap(cerrors.KindSubstrateFailure, "bandwidth measurement round failed", err)
			}
			elapsed := c.Wtime() - start
			if elapsed > 0 {
				sample.Add(float64(messageBytes) * 8.0 / (elapsed * 1e6))
			}
		}
	}
	h.Stop()
	recordPhaseMillis(h)

	if !participant {
		return 0, nil
	}
	sample.RemoveOutliers(stats.DefaultOutlierMultiplier)
	mean := sample.Mean()
	metrics.MeasuredBandwidth.WithLabelValues(fmt.Sprintf("%d-%d", ra, rb)).Set(mean)
	return mean, nil
}

// MeasureAllToAllBandwidth measures point-to-point bandwidth for every
// unordered rank pair and mirrors the results into a symmetric N×N
// matrix with a zero diagonal. Every rank must call this together; a
// rank's own row/column holds real measurements, cells for pairs it
// wasn't part of stay 0 — callers that need a globally complete matrix
// on one rank gather it over the substrate themselves.
func MeasureAllToAllBandwidth(c substrate.Comm, messageBytes int) ([][]float64, error) {
	n := c.Size()
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	bar := progress.NewBar(n*(n-1)/2, "all-to-all bandwidth", c.Rank() == 0)
	for src := 0; src < n; src++ {
		for dst := src + 1; dst < n; dst++ {
			bw, err := MeasurePointToPointBandwidth(c, src, dst, messageBytes, DefaultBandwidthWarmup, DefaultBandwidthIterations)
			if err != nil {
				return nil, err
			}
			matrix[src][dst] = bw
			matrix[dst][src] = bw
			bar.Increment(1)
		}
	}
	progress.EndBar(bar)

	return matrix, nil
}
