//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package optimizer

import (
	"github.com/clusterkit/topoopt/internal/pkg/algorithms"
	"github.com/clusterkit/topoopt/internal/pkg/metrics"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

// Result is the optimizer's REPORT stage: which plan EXECUTE ran under,
// and how long EXECUTE took.
type Result struct {
	Plan          Plan
	ElapsedMicros float64
}

// Broadcast runs DECIDE → DISPATCH → EXECUTE → REPORT for a broadcast of
// buf from root. Every rank in the communicator must call this with
// the same count and root.
func (o *Optimizer) Broadcast(c substrate.Comm, buf []byte, root int) (Result, error) {
	d := Descriptor{Op: Broadcast, N: c.Size(), Count: len(buf), DatatypeSize: 1, Root: root}
	plan, err := o.Decide(d)
	if err != nil {
		return Result{}, err
	}

	start := c.Wtime()
	switch plan.Algorithm {
	case AlgoScatterAllgather:
		err = algorithms.ScatterAllgatherBroadcast(c, buf, root)
	case AlgoPipeline:
		err = algorithms.PipelineBroadcast(c, buf, root, o.model)
	default:
		err = algorithms.BinomialTreeBroadcast(c, buf, root)
	}
	elapsed := c.Wtime() - start
	metrics.AlgorithmLatency.WithLabelValues(Broadcast.String(), plan.Algorithm.String()).Observe(elapsed)
	return Result{Plan: plan, ElapsedMicros: elapsed * 1e6}, err
}

// Allreduce runs DECIDE → DISPATCH → EXECUTE → REPORT for an allreduce of
// sendbuf into recvbuf under op.
func (o *Optimizer) Allreduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op) (Result, error) {
	d := Descriptor{Op: Allreduce, N: c.Size(), Count: len(sendbuf), DatatypeSize: 8, ReductionOp: op}
	plan, err := o.Decide(d)
	if err != nil {
		return Result{}, err
	}

	start := c.Wtime()
	switch plan.Algorithm {
	case AlgoRecursiveDoubling:
		err = algorithms.RecursiveDoublingAllreduce(c, sendbuf, recvbuf, op)
	case AlgoHalvingDoubling:
		err = algorithms.RecursiveHalvingDoublingAllreduce(c, sendbuf, recvbuf, op)
	case AlgoTreeReduceBroadcast:
		err = treeReduceBroadcastAllreduce(c, sendbuf, recvbuf, op)
	default:
		err = algorithms.RingAllreduce(c, sendbuf, recvbuf, op, o.model)
	}
	elapsed := c.Wtime() - start
	metrics.AlgorithmLatency.WithLabelValues(Allreduce.String(), plan.Algorithm.String()).Observe(elapsed)
	return Result{Plan: plan, ElapsedMicros: elapsed * 1e6}, err
}

// Reduce runs DECIDE → DISPATCH → EXECUTE → REPORT for a reduce of
// sendbuf into recvbuf under op, folded toward root.
func (o *Optimizer) Reduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op, root int) (Result, error) {
	d := Descriptor{Op: Reduce, N: c.Size(), Count: len(sendbuf), DatatypeSize: 8, ReductionOp: op, Root: root}
	plan, err := o.Decide(d)
	if err != nil {
		return Result{}, err
	}

	start := c.Wtime()
	switch plan.Algorithm {
	case AlgoReduceScatterGather:
		err = algorithms.ReduceScatterGatherReduce(c, sendbuf, recvbuf, op, root, o.model)
	case AlgoTreeReduceBroadcast:
		err = treeReduceBroadcastReduce(c, sendbuf, recvbuf, op, root)
	default:
		err = algorithms.BinomialTreeReduce(c, sendbuf, recvbuf, op, root)
	}
	elapsed := c.Wtime() - start
	metrics.AlgorithmLatency.WithLabelValues(Reduce.String(), plan.Algorithm.String()).Observe(elapsed)
	return Result{Plan: plan, ElapsedMicros: elapsed * 1e6}, err
}

// Allgather runs DECIDE → DISPATCH → EXECUTE → REPORT for an allgather of
// sendbuf into recvbuf (len(recvbuf) == N*len(sendbuf)).
func (o *Optimizer) Allgather(c substrate.Comm, sendbuf, recvbuf []byte) (Result, error) {
	d := Descriptor{Op: Allgather, N: c.Size(), Count: len(sendbuf), DatatypeSize: 1}
	plan, err := o.Decide(d)
	if err != nil {
		return Result{}, err
	}

	start := c.Wtime()
	switch plan.Algorithm {
	case AlgoRecursiveDoubling:
		err = algorithms.RecursiveDoublingAllgather(c, sendbuf, recvbuf)
	default:
		err = algorithms.RingAllgather(c, sendbuf, recvbuf, o.model)
	}
	elapsed := c.Wtime() - start
	metrics.AlgorithmLatency.WithLabelValues(Allgather.String(), plan.Algorithm.String()).Observe(elapsed)
	return Result{Plan: plan, ElapsedMicros: elapsed * 1e6}, err
}

// treeReduceBroadcastAllreduce is error kind 3's mandated fallback for a
// non-commutative reduction operator: a binomial reduce to rank 0
// followed by a binomial broadcast back out, rather than any algorithm
// that would reorder partial sums across independent branches.
func treeReduceBroadcastAllreduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op) error {
	if err := algorithms.BinomialTreeReduce(c, sendbuf, recvbuf, op, 0); err != nil {
		return err
	}
	raw := algorithms.EncodeFloats(recvbuf)
	if err := algorithms.BinomialTreeBroadcast(c, raw, 0); err != nil {
		return err
	}
	copy(recvbuf, algorithms.DecodeFloats(raw))
	return nil
}

// treeReduceBroadcastReduce is the reduce-side half of the same
// fallback: a binomial reduce straight to the caller's actual root needs
// no broadcast back out, since reduce (unlike allreduce) only promises
// the result on root.
func treeReduceBroadcastReduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op, root int) error {
	return algorithms.BinomialTreeReduce(c, sendbuf, recvbuf, op, root)
}
