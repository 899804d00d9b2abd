//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package algorithms

import (
	"encoding/binary"
	"math"

	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

// encodeFloats and decodeFloats convert between the numeric reduction
// algorithms' natural []float64 buffers and the []byte wire shape
// substrate.Comm actually moves. Little-endian, fixed 8 bytes/element;
// the substrate never interprets payload bytes itself, so the encoding
// only has to agree between sender and receiver, which it does because
// both sides of this repository use the same codec.
func encodeFloats(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

// EncodeFloats and DecodeFloats expose the wire codec to callers outside
// this package (the optimizer's non-commutative allreduce fallback needs
// to hand a reduced float64 buffer to the byte-oriented broadcast).
func EncodeFloats(v []float64) []byte   { return encodeFloats(v) }
func DecodeFloats(buf []byte) []float64 { return decodeFloats(buf) }

// exchangeFloats is exchange specialized to []float64 payloads: sends
// out to dst and receives theirSize elements from src, concurrently, so
// a pairwise exchange between the same two ranks never deadlocks on the
// substrate's synchronous Send.
func exchangeFloats(c substrate.Comm, out []float64, theirSize, dst, src, tag int) ([]float64, error) {
	outBuf := encodeFloats(out)
	inBuf := make([]byte, 8*theirSize)

	sendErr := make(chan error, 1)
	go func() { sendErr <- c.Send(outBuf, dst, tag) }()

	recvErr := c.Recv(inBuf, src, tag)
	if err := <-sendErr; err != nil {
		return nil, cerrors.Wrap(cerrors.KindSubstrateFailure, "float exchange send failed", err)
	}
	if recvErr != nil {
		return nil, cerrors.Wrap(cerrors.KindSubstrateFailure, "float exchange recv failed", recvErr)
	}
	return decodeFloats(inBuf), nil
}
