//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package algorithms

import (
	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

const (
	tagRingAllgather              = 50000
	tagRecursiveDoublingAllgather = 51000
)

// RingAllgather gathers one chunk per rank (sendbuf, the same length on
// every rank) into recvbuf, laid out recvbuf[r*len(sendbuf):...] =
// rank r's sendbuf, by circulating chunks N-1 hops around a topology-
// aware ring (RingOrder).
func RingAllgather(c substrate.Comm, sendbuf, recvbuf []byte, m *model.Model) error {
	n, rank := c.Size(), c.Rank()
	chunkSize := len(sendbuf)
	if chunkSize == 0 {
		return nil
	}
	copy(recvbuf[rank*chunkSize:(rank+1)*chunkSize], sendbuf)
	if n <= 1 {
		return nil
	}

	ring := RingOrder(m, n)
	posOf := make([]int, n)
	for i, r := range ring {
		posOf[r] = i
	}
	pos := posOf[rank]
	succ := ring[(pos+1)%n]
	pred := ring[(pos-1+n)%n]

	owner := rank
	for step := 0; step < n-1; step++ {
		tag := tagRingAllgather + step
		prevOwner := ring[(posOf[owner]-1+n)%n]
		out := recvbuf[owner*chunkSize : (owner+1)*chunkSize]
		in := recvbuf[prevOwner*chunkSize : (prevOwner+1)*chunkSize]
		if err := exchange(c, out, in, succ, pred, tag); err != nil {
			return err
		}
		owner = prevOwner
	}
	return nil
}

// RecursiveDoublingAllgather gathers one chunk per rank using log2(N)
// doubling rounds (requires power-of-two N; callers verify before
// dispatching here). Round i, every rank exchanges everything it has
// gathered so far with the partner 2^i ranks away, doubling the amount
// held each round.
func RecursiveDoublingAllgather(c substrate.Comm, sendbuf, recvbuf []byte) error {
	n, rank := c.Size(), c.Rank()
	chunkSize := len(sendbuf)
	if chunkSize == 0 {
		return nil
	}
	copy(recvbuf[rank*chunkSize:(rank+1)*chunkSize], sendbuf)
	if n <= 1 {
		return nil
	}
	if n&(n-1) != 0 {
		return cerrors.New(cerrors.KindInvalidConfig, "recursive doubling allgather requires a power-of-two participant count")
	}

	have := 1
	for mask := 1; mask < n; mask <<= 1 {
		partner := rank ^ mask
		tag := tagRecursiveDoublingAllgather + mask

		lo := (rank / mask) * mask * chunkSize
		hi := lo + have*chunkSize
		var partnerLo int
		if rank&mask == 0 {
			partnerLo = hi
		} else {
			partnerLo = lo - have*chunkSize
		}

		out := recvbuf[lo:hi]
		in := recvbuf[partnerLo : partnerLo+have*chunkSize]
		if err := exchange(c, out, in, partner, partner, tag); err != nil {
			return err
		}
		have *= 2
	}
	return nil
}
