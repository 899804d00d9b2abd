//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package algorithms implements the concrete collective algorithms the
// optimizer chooses between: binomial tree and scatter-allgather and
// pipeline broadcast, recursive-halving/doubling and ring allreduce,
// standalone ring/recursive-doubling allgather, and binomial tree
// reduce. Every algorithm is parameterized by a substrate.Comm and,
// where routing matters, a *model.Model; none of them hold state
// between calls.
package algorithms

import (
	"math"
	"math/bits"

	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

const (
	tagBinomialBroadcast = 10000
	tagScatter           = 20000
	tagScatterAllgather  = 21000
	tagPipeline          = 30000
)

// BinomialTreeBroadcast replicates buf from root to every rank in
// ceil(log2 N) rounds: round i, every process that already has the data
// (relative-to-root rank < 2^i) forwards it to the process 2^i ranks
// further around the root-shifted ring. N=1 and an empty buffer are
// no-ops.
func BinomialTreeBroadcast(c substrate.Comm, buf []byte, root int) error {
	n := c.Size()
	if n <= 1 || len(buf) == 0 {
		return nil
	}
	rank := c.Rank()
	relRank := (rank - root + n) % n
	rounds := bits.Len(uint(n - 1))

	for i := 0; i < rounds; i++ {
		step := 1 << i
		tag := tagBinomialBroadcast + i
		switch {
		case relRank < step:
			dstRel := relRank + step
			if dstRel < n {
				dst := (dstRel + root) % n
				if err := c.Send(buf, dst, tag); err != nil {
					return cerrors.Wrap(cerrors.KindSubstrateFailure, "binomial broadcast send failed", err)
				}
			}
		case relRank < 2*step:
			srcRel := relRank - step
			src := (srcRel + root) % n
			if err := c.Recv(buf, src, tag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "binomial broadcast recv failed", err)
			}
		}
	}
	return nil
}

// ScatterAllgatherBroadcast splits buf into N roughly-equal chunks
// (indexed by root-relative rank, not physical rank), scatters them with
// a recursive-halving binomial scatter, then reassembles the full
// buffer everywhere with a ring allgather over those chunks.
// Bandwidth-dominant: two passes over (N-1)/N of the message instead of
// log2(N) passes over the whole thing.
func ScatterAllgatherBroadcast(c substrate.Comm, buf []byte, root int) error {
	n := c.Size()
	if n <= 1 || len(buf) == 0 {
		return nil
	}
	rank := c.Rank()
	relRank := (rank - root + n) % n

	bounds := chunkBounds(len(buf), n)
	chunks := make([][]byte, n)
	if relRank == 0 {
		for i := 0; i < n; i++ {
			chunks[i] = buf[bounds[i]:bounds[i+1]]
		}
	} else {
		for i := 0; i < n; i++ {
			chunks[i] = make([]byte, bounds[i+1]-bounds[i])
		}
	}

	if err := scatterWindow(c, chunks, relRank, 0, n, root, n, 0); err != nil {
		return err
	}
	if err := ringAllgatherChunks(c, chunks, relRank, root, n); err != nil {
		return err
	}
	if relRank != 0 {
		for i := 0; i < n; i++ {
			copy(buf[bounds[i]:bounds[i+1]], chunks[i])
		}
	}
	return nil
}

// chunkBounds splits total bytes into n pieces as evenly as possible,
// returning n+1 byte offsets bounds[i]..bounds[i+1] for chunk i. Any
// remainder is absorbed by the leading chunks one byte at a time.
func chunkBounds(total, n int) []int {
	base := total / n
	rem := total % n
	bounds := make([]int, n+1)
	offset := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		bounds[i] = offset
		offset += size
	}
	bounds[n] = offset
	return bounds
}

// scatterWindow recursively halves the window [lo,hi) of relative ranks
// that still share one chunk range. The process whose relRank equals
// lo always already owns chunks[lo:hi); it sends the upper half to the
// process at relRank==mid, which becomes the new owner of that half.
func scatterWindow(c substrate.Comm, chunks [][]byte, relRank, lo, hi, root, n, round int) error {
	if hi-lo <= 1 {
		return nil
	}
	mid := lo + (hi-lo+1)/2
	tag := tagScatter + round

	if relRank < mid {
		if relRank == lo {
			dst := (mid + root) % n
			upper := concatChunks(chunks, mid, hi)
			if err := c.Send(upper, dst, tag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "scatter send failed", err)
			}
		}
		return scatterWindow(c, chunks, relRank, lo, mid, root, n, round+1)
	}

	if relRank == mid {
		src := (lo + root) % n
		upper := concatChunks(chunks, mid, hi)
		if err := c.Recv(upper, src, tag); err != nil {
			return cerrors.Wrap(cerrors.KindSubstrateFailure, "scatter recv failed", err)
		}
		splitInto(chunks, mid, hi, upper)
	}
	return scatterWindow(c, chunks, relRank, mid, hi, root, n, round+1)
}

// concatChunks returns a fresh buffer sized to hold chunks[lo:hi]
// concatenated; its contents are only meaningful as a send payload when
// the caller has already populated chunks[lo:hi].
func concatChunks(chunks [][]byte, lo, hi int) []byte {
	size := 0
	for i := lo; i < hi; i++ {
		size += len(chunks[i])
	}
	out := make([]byte, size)
	offset := 0
	for i := lo; i < hi; i++ {
		copy(out[offset:], chunks[i])
		offset += len(chunks[i])
	}
	return out
}

// splitInto scatters a concatenated buffer back into chunks[lo:hi].
func splitInto(chunks [][]byte, lo, hi int, data []byte) {
	offset := 0
	for i := lo; i < hi; i++ {
		copy(chunks[i], data[offset:offset+len(chunks[i])])
		offset += len(chunks[i])
	}
}

// ringAllgatherChunks circulates n chunks (each rank already owns
// chunks[relRank]) around the root-relative ring so every rank ends up
// holding all n chunks.
func ringAllgatherChunks(c substrate.Comm, chunks [][]byte, relRank, root, n int) error {
	if n <= 1 {
		return nil
	}
	sendRel := relRank
	for step := 0; step < n-1; step++ {
		dstRel := (relRank + 1) % n
		srcRel := (relRank - 1 + n) % n
		dst := (dstRel + root) % n
		src := (srcRel + root) % n
		tag := tagScatterAllgather + step

		recvRel := (sendRel - 1 + n) % n
		if err := exchange(c, chunks[sendRel], chunks[recvRel], dst, src, tag); err != nil {
			return err
		}
		sendRel = recvRel
	}
	return nil
}

// exchange sends out to dst and receives into in from src, in parallel.
// A ring's send and receive must run concurrently rather than one after
// the other: every rank in the ring is doing the same Send-then-Recv,
// and since the substrate's Send blocks until its peer's matching Recv
// is posted, running them sequentially everywhere deadlocks the whole
// ring on the first hop.
func exchange(c substrate.Comm, out, in []byte, dst, src, tag int) error {
	sendErr := make(chan error, 1)
	go func() { sendErr <- c.Send(out, dst, tag) }()

	recvErr := c.Recv(in, src, tag)
	if err := <-sendErr; err != nil {
		return cerrors.Wrap(cerrors.KindSubstrateFailure, "ring exchange send failed", err)
	}
	if recvErr != nil {
		return cerrors.Wrap(cerrors.KindSubstrateFailure, "ring exchange recv failed", recvErr)
	}
	return nil
}

// ChainOrder returns a permutation of [0,N) starting at root, built by
// greedily picking, at each step, the not-yet-placed rank closest
// (under m.Distance) to the chain's current tail. It is the topology-
// aware ordering PipelineBroadcast forwards segments along.
func ChainOrder(m *model.Model, root, n int) []int {
	chain := make([]int, 0, n)
	placed := make([]bool, n)
	chain = append(chain, root)
	placed[root] = true

	for len(chain) < n {
		tail := chain[len(chain)-1]
		best, bestDist := -1, math.MaxInt64
		for r := 0; r < n; r++ {
			if placed[r] {
				continue
			}
			d := m.Distance(tail, r)
			if d < bestDist {
				bestDist, best = d, r
			}
		}
		chain = append(chain, best)
		placed[best] = true
	}
	return chain
}

// SegmentCount picks the pipeline segment count minimizing the flat
// cost estimate alpha*(N-1+S-1) + (m/S*beta)*(N-1+S-1), closed-form via
// S ~= sqrt(m*beta*(N-1)/alpha). Always at least 1 and never more than
// messageBytes (a segment can't be smaller than one byte).
func SegmentCount(m *model.Model, messageBytes, n int) int {
	if messageBytes <= 0 || n <= 1 {
		return 1
	}
	alpha, beta := m.Alpha(), m.Beta()
	if alpha <= 0 {
		return 1
	}
	estimate := math.Sqrt(float64(messageBytes) * beta * float64(n-1) / alpha)
	s := int(math.Round(estimate))
	if s < 1 {
		s = 1
	}
	if s > messageBytes {
		s = messageBytes
	}
	return s
}

// PipelineBroadcast splits buf into SegmentCount(m, len(buf), N)
// segments and streams them down a topology-aware chain (ChainOrder):
// each non-root link receives a segment from its predecessor and
// immediately forwards it to its successor, so multiple segments are
// in flight on the chain simultaneously.
func PipelineBroadcast(c substrate.Comm, buf []byte, root int, m *model.Model) error {
	n := c.Size()
	if n <= 1 || len(buf) == 0 {
		return nil
	}
	rank := c.Rank()
	chain := ChainOrder(m, root, n)

	position := -1
	for i, r := range chain {
		if r == rank {
			position = i
			break
		}
	}

	segs := SegmentCount(m, len(buf), n)
	bounds := chunkBounds(len(buf), segs)

	var pred, succ = -1, -1
	if position > 0 {
		pred = chain[position-1]
	}
	if position < n-1 {
		succ = chain[position+1]
	}

	for s := 0; s < segs; s++ {
		seg := buf[bounds[s]:bounds[s+1]]
		tag := tagPipeline + s
		if pred >= 0 {
			if err := c.Recv(seg, pred, tag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "pipeline broadcast recv failed", err)
			}
		}
		if succ >= 0 {
			if err := c.Send(seg, succ, tag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "pipeline broadcast send failed", err)
			}
		}
	}
	return nil
}
