//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package cerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	e := New(KindInvalidConfig, "fat-tree k must be even")
	assert.Contains(t, e.Error(), "invalid configuration")
	assert.Contains(t, e.Error(), "fat-tree k must be even")
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindSubstrateFailure, "send failed", cause)
	assert.ErrorIs(t, e, cause)
}

func TestIs(t *testing.T) {
	e := New(KindSizeMismatch, "count overflow")
	assert.True(t, Is(e, KindSizeMismatch))
	assert.False(t, Is(e, KindInvalidConfig))
	assert.False(t, Is(errors.New("plain"), KindSizeMismatch))
}
