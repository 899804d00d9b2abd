//
// Copyright (c) 2020, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package cachekey builds the optimizer's decision cache key: the
// (op_kind, N, rounded-m-bucket) triple the spec's decision cache is
// keyed on, plus a stable hash of that triple for logging cache
// evictions without printing the full struct.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/clusterkit/topoopt/internal/pkg/bucket"
)

// Key is the optimizer's decision cache key. It is a plain comparable
// struct, usable directly as a Go map key; Hash exists only for
// human-readable logging.
type Key struct {
	OpKind     string
	N          int
	SizeBucket int
}

// New builds a Key, rounding sizeBytes up to its power-of-two bucket
// (bucket.Of) so that nearby message sizes share a cache entry.
func New(opKind string, n, sizeBytes int) Key {
	return Key{OpKind: opKind, N: n, SizeBucket: bucket.Of(sizeBytes)}
}

// Hash returns a short, stable hex digest of k, for log lines that
// shouldn't print the raw key fields.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", k.OpKind, k.N, k.SizeBucket)))
	return hex.EncodeToString(sum[:])[:12]
}

func (k Key) String() string {
	return fmt.Sprintf("%s/N=%d/bucket=%d", k.OpKind, k.N, k.SizeBucket)
}
