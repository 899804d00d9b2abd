//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package algorithms

import (
	"math/bits"

	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

const (
	tagBinomialReduce      = 60000
	tagReduceScatterGather = 70000
)

// BinomialTreeReduce folds sendbuf from every rank into recvbuf on
// root, applying op at each interior node of a binomial tree rooted at
// root. op may be any of the fixed {SUM,MAX,MIN,PROD} set; unlike the
// allreduce algorithms this one has no commutativity requirement since
// every reduction happens on the path from a rank straight to root,
// never reordered across independent branches.
func BinomialTreeReduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op, root int) error {
	n, rank := c.Size(), c.Rank()
	count := len(sendbuf)
	copy(recvbuf, sendbuf)
	if n <= 1 || count == 0 {
		return nil
	}

	relRank := (rank - root + n) % n
	rounds := bits.Len(uint(n - 1))

	// Rounds run largest step first: a reduce is a gather, the mirror
	// image of broadcast's smallest-step-first spread, so each interior
	// node has combined its whole subtree before it forwards toward root.
	for i := rounds - 1; i >= 0; i-- {
		step := 1 << i
		tag := tagBinomialReduce + i
		switch {
		case relRank < step:
			srcRel := relRank + step
			if srcRel < n {
				src := (srcRel + root) % n
				raw := make([]byte, 8*count)
				if err := c.Recv(raw, src, tag); err != nil {
					return cerrors.Wrap(cerrors.KindSubstrateFailure, "binomial reduce recv failed", err)
				}
				c.ReduceLocal(op, decodeFloats(raw), recvbuf)
			}
		case relRank < 2*step:
			dstRel := relRank - step
			dst := (dstRel + root) % n
			if err := c.Send(encodeFloats(recvbuf), dst, tag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "binomial reduce send failed", err)
			}
		}
	}
	return nil
}

// ReduceScatterGatherReduce is the large-message reduce: the same
// ring-ordered reduce-scatter RingAllreduce uses, stopping after the
// scatter half, followed by a plain gather of the N finished chunks to
// root. Bandwidth-optimal for large m, where BinomialTreeReduce's
// every-round full-vector sends would waste bandwidth on data a rank
// has already folded into its partial sum.
func ReduceScatterGatherReduce(c substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op, root int, m *model.Model) error {
	n, rank := c.Size(), c.Rank()
	count := len(sendbuf)
	if n <= 1 || count == 0 {
		copy(recvbuf, sendbuf)
		return nil
	}
	if !op.Commutative() {
		return cerrors.New(cerrors.KindUnsupportedOperator, "reduce-scatter+gather reduce requires a commutative-associative operator")
	}

	work := make([]float64, count)
	copy(work, sendbuf)

	ring := RingOrder(m, n)
	posOf := make([]int, n)
	for i, r := range ring {
		posOf[r] = i
	}
	pos := posOf[rank]
	succ := ring[(pos+1)%n]
	pred := ring[(pos-1+n)%n]

	bounds := chunkBounds(count, n)
	chunks := make([][]float64, n)
	for i := 0; i < n; i++ {
		chunks[i] = work[bounds[i]:bounds[i+1]]
	}

	sendIdx := pos
	for step := 0; step < n-1; step++ {
		recvIdx := (sendIdx - 1 + n) % n
		tag := tagReduceScatterGather + step
		incoming, err := exchangeFloats(c, chunks[sendIdx], len(chunks[recvIdx]), succ, pred, tag)
		if err != nil {
			return err
		}
		c.ReduceLocal(op, incoming, chunks[recvIdx])
		sendIdx = recvIdx
	}

	// After n-1 hops, the rank at ring position P holds the full
	// reduction for the chunk at index (P+1) mod n.
	myChunkIdx := (pos + 1) % n
	gatherTag := tagReduceScatterGather + n

	if rank == root {
		copy(recvbuf[bounds[myChunkIdx]:bounds[myChunkIdx+1]], chunks[myChunkIdx])
		for i, r := range ring {
			if r == root {
				continue
			}
			chunkIdx := (i + 1) % n
			raw := make([]byte, 8*(bounds[chunkIdx+1]-bounds[chunkIdx]))
			if err := c.Recv(raw, r, gatherTag); err != nil {
				return cerrors.Wrap(cerrors.KindSubstrateFailure, "reduce gather recv failed", err)
			}
			copy(recvbuf[bounds[chunkIdx]:bounds[chunkIdx+1]], decodeFloats(raw))
		}
		return nil
	}

	if err := c.Send(encodeFloats(chunks[myChunkIdx]), root, gatherTag); err != nil {
		return cerrors.Wrap(cerrors.KindSubstrateFailure, "reduce gather send failed", err)
	}
	return nil
}
