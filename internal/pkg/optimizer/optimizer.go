//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package optimizer is the collective optimizer: one decision surface per
// collective that picks an algorithm from internal/pkg/algorithms using
// the network-characteristics model and the call's descriptor, dispatches
// to it, and reports timings. A *Optimizer is built once per communicator
// and owns that communicator's decision cache; nothing here is safe to
// share across communicators without the caller's own synchronization
// except through separate Optimizer values.
package optimizer

import (
	"fmt"

	"github.com/clusterkit/topoopt/internal/pkg/algorithms"
	"github.com/clusterkit/topoopt/internal/pkg/cachekey"
	"github.com/clusterkit/topoopt/internal/pkg/metrics"
	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

// OpKind names the four optimized collectives. It is a closed tagged
// union, matched with a switch rather than through per-op interfaces.
type OpKind int

const (
	Broadcast OpKind = iota
	Reduce
	Allreduce
	Allgather
)

func (k OpKind) String() string {
	switch k {
	case Broadcast:
		return "broadcast"
	case Reduce:
		return "reduce"
	case Allreduce:
		return "allreduce"
	case Allgather:
		return "allgather"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Algorithm names a concrete entry point in internal/pkg/algorithms the
// optimizer can dispatch a decision to.
type Algorithm int

const (
	AlgoBinomialTree Algorithm = iota
	AlgoScatterAllgather
	AlgoPipeline
	AlgoRecursiveDoubling
	AlgoHalvingDoubling
	AlgoRing
	AlgoBinomialReduce
	AlgoReduceScatterGather
	AlgoTreeReduceBroadcast
)

func (a Algorithm) String() string {
	switch a {
	case AlgoBinomialTree:
		return "binomial_tree"
	case AlgoScatterAllgather:
		return "scatter_allgather"
	case AlgoPipeline:
		return "pipeline"
	case AlgoRecursiveDoubling:
		return "recursive_doubling"
	case AlgoHalvingDoubling:
		return "halving_doubling"
	case AlgoRing:
		return "ring"
	case AlgoBinomialReduce:
		return "binomial_reduce"
	case AlgoReduceScatterGather:
		return "reduce_scatter_gather"
	case AlgoTreeReduceBroadcast:
		return "tree_reduce_broadcast"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Descriptor is the call-site shape the optimizer decides on: process
// count, element count, per-element datatype size, the reduction op (only
// meaningful for Reduce/Allreduce) and the root (only meaningful for
// Broadcast/Reduce).
type Descriptor struct {
	Op           OpKind
	N            int
	Count        int
	DatatypeSize int
	ReductionOp  substrate.Op
	Root         int
}

// Bytes is the descriptor's message size in bytes: count*datatype_size,
// the m the selection policy and decision cache key both read.
func (d Descriptor) Bytes() int { return d.Count * d.DatatypeSize }

func (d Descriptor) validate() error {
	if d.N <= 0 {
		return cerrors.New(cerrors.KindSizeMismatch, fmt.Sprintf("invalid participant count %d", d.N))
	}
	if d.Count < 0 || d.DatatypeSize < 0 {
		return cerrors.New(cerrors.KindSizeMismatch, fmt.Sprintf("negative count (%d) or datatype size (%d)", d.Count, d.DatatypeSize))
	}
	if d.DatatypeSize > 0 && d.Count > 0 && d.Bytes()/d.DatatypeSize != d.Count {
		return cerrors.New(cerrors.KindSizeMismatch, "count*datatype_size overflows int")
	}
	if d.Root < 0 || d.Root >= d.N {
		return cerrors.New(cerrors.KindSizeMismatch, fmt.Sprintf("root %d out of range [0,%d)", d.Root, d.N))
	}
	return nil
}

// Plan is the optimizer's DECIDE output: the chosen algorithm plus any
// parameters that algorithm needs beyond the descriptor itself.
type Plan struct {
	Algorithm Algorithm
	Segments  int // pipeline broadcast only
}

// Optimizer is the per-communicator decision engine. Build one with New
// and keep it alive for the communicator's lifetime; its decision cache
// accumulates across calls and is only invalidated explicitly.
type Optimizer struct {
	model      *model.Model
	thresholds Thresholds
	cache      *decisionCache
}

// New builds an Optimizer over m with the default bounded decision cache.
func New(m *model.Model) *Optimizer {
	return NewWithCacheCapacity(m, DefaultCacheCapacity)
}

// NewWithCacheCapacity is New with an explicit decision-cache bound,
// for callers that know their call-site diversity doesn't need the
// default 256 entries (or needs more).
func NewWithCacheCapacity(m *model.Model, capacity int) *Optimizer {
	return &Optimizer{
		model:      m,
		thresholds: DeriveThresholds(m),
		cache:      newDecisionCache(capacity),
	}
}

// InvalidateCache drops every cached decision. Call after a model
// reconfiguration (a fresh ApplyMeasurement pass): stale decisions keyed
// on the old α/β thresholds must not survive it.
func (o *Optimizer) InvalidateCache() {
	o.cache.clear()
	o.thresholds = DeriveThresholds(o.model)
}

// Decide runs the DECIDE stage: look up the decision cache, and on a
// miss apply the selection policy for d.Op, caching and instrumenting the
// result either way.
func (o *Optimizer) Decide(d Descriptor) (Plan, error) {
	if err := d.validate(); err != nil {
		return Plan{}, err
	}

	key := cachekey.New(d.Op.String(), d.N, d.Bytes())
	plan, hit := o.cache.get(key)
	if hit {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		plan = o.decideUncached(d)
		o.cache.put(key, plan)
	}
	metrics.DecisionsTotal.WithLabelValues(d.Op.String(), plan.Algorithm.String()).Inc()
	return plan, nil
}

func (o *Optimizer) decideUncached(d Descriptor) Plan {
	switch d.Op {
	case Broadcast:
		return o.decideBroadcast(d)
	case Allreduce:
		return o.decideAllreduce(d)
	case Reduce:
		return o.decideReduce(d)
	case Allgather:
		return o.decideAllgather(d)
	default:
		return Plan{Algorithm: AlgoBinomialTree}
	}
}

// decideBroadcast implements §4.D's broadcast policy: small messages go
// to the binomial tree, large ones on wide-enough groups to
// scatter-allgather, torus-shaped groups in between to the pipeline, and
// everything else falls back to the binomial tree.
func (o *Optimizer) decideBroadcast(d Descriptor) Plan {
	bytes := d.Bytes()
	switch {
	case bytes <= o.thresholds.Small:
		return Plan{Algorithm: AlgoBinomialTree}
	case bytes >= o.thresholds.Large && d.N >= 8:
		return Plan{Algorithm: AlgoScatterAllgather}
	case o.model != nil && o.model.Kind == model.Torus:
		return Plan{Algorithm: AlgoPipeline, Segments: algorithms.SegmentCount(o.model, bytes, d.N)}
	default:
		return Plan{Algorithm: AlgoBinomialTree}
	}
}

// decideAllreduce implements §4.D's allreduce policy: a non-commutative
// operator forces the tree reduce+broadcast fallback (error kind 3) ahead
// of everything else; otherwise power-of-two N picks recursive doubling
// for small messages or halving+doubling for larger ones, and
// non-power-of-two N or very large messages go to ring allreduce.
func (o *Optimizer) decideAllreduce(d Descriptor) Plan {
	if !d.ReductionOp.Commutative() {
		return Plan{Algorithm: AlgoTreeReduceBroadcast}
	}

	bytes := d.Bytes()
	powerOfTwo := d.N&(d.N-1) == 0

	switch {
	case powerOfTwo && bytes <= o.thresholds.Small:
		return Plan{Algorithm: AlgoRecursiveDoubling}
	case powerOfTwo && bytes < o.thresholds.Large:
		return Plan{Algorithm: AlgoHalvingDoubling}
	default:
		return Plan{Algorithm: AlgoRing}
	}
}

// decideReduce implements §4.D's reduce policy: binomial tree for small
// messages, reduce-scatter+gather for large ones.
func (o *Optimizer) decideReduce(d Descriptor) Plan {
	if !d.ReductionOp.Commutative() {
		return Plan{Algorithm: AlgoTreeReduceBroadcast}
	}
	if d.Bytes() <= o.thresholds.Small {
		return Plan{Algorithm: AlgoBinomialReduce}
	}
	return Plan{Algorithm: AlgoReduceScatterGather}
}

// decideAllgather implements §4.D's allgather policy: recursive doubling
// for power-of-two N with small per-rank chunks, ring otherwise.
func (o *Optimizer) decideAllgather(d Descriptor) Plan {
	powerOfTwo := d.N&(d.N-1) == 0
	if powerOfTwo && d.Bytes() <= o.thresholds.Small {
		return Plan{Algorithm: AlgoRecursiveDoubling}
	}
	return Plan{Algorithm: AlgoRing}
}

// Model returns the network-characteristics model this optimizer decides
// against — the read-only handle network_characteristics(comm) exposes
// to applications.
func (o *Optimizer) Model() *model.Model { return o.model }

// CacheLen returns the decision cache's current occupancy, for status
// pages and diagnostics; it is not part of the decision path itself.
func (o *Optimizer) CacheLen() int { return o.cache.len() }

// CacheCapacity returns the decision cache's configured bound.
func (o *Optimizer) CacheCapacity() int { return o.cache.capacity }
