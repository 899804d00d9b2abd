//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package substrate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpApply(t *testing.T) {
	assert.Equal(t, 7.0, OpSum.Apply(3, 4))
	assert.Equal(t, 4.0, OpMax.Apply(3, 4))
	assert.Equal(t, 3.0, OpMin.Apply(3, 4))
	assert.Equal(t, 12.0, OpProd.Apply(3, 4))
}

func TestOpCommutative(t *testing.T) {
	for _, op := range []Op{OpSum, OpMax, OpMin, OpProd} {
		assert.True(t, op.Commutative(), op.String())
	}
	assert.False(t, Op(99).Commutative())
}

func TestMockSendRecv(t *testing.T) {
	comms := NewComms(2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := comms[0].Send([]byte("hello"), 1, 42)
		require.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		buf := make([]byte, 5)
		err := comms[1].Recv(buf, 0, 42)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))
	}()
	wg.Wait()
}

func TestMockBarrierReleasesAllRanks(t *testing.T) {
	n := 4
	comms := NewComms(n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	arrived := 0

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(c Comm) {
			defer wg.Done()
			c.Barrier()
			mu.Lock()
			arrived++
			mu.Unlock()
		}(comms[i])
	}
	wg.Wait()
	assert.Equal(t, n, arrived)
}

func TestReduceLocal(t *testing.T) {
	comms := NewComms(1)
	dst := []float64{1, 2, 3}
	src := []float64{10, 20, 30}
	comms[0].ReduceLocal(OpSum, src, dst)
	assert.Equal(t, []float64{11, 22, 33}, dst)
}

func TestFaultyCommTripsOnce(t *testing.T) {
	comms := NewComms(2)
	faulty := &FaultyComm{Comm: comms[0], FailOp: "Send"}

	err := faulty.Send([]byte("x"), 1, 0)
	assert.Error(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make([]byte, 1)
		_ = comms[1].Recv(buf, 0, 0)
	}()
	err = faulty.Send([]byte("x"), 1, 0)
	assert.NoError(t, err)
	wg.Wait()
}

func TestMessageSizeMismatch(t *testing.T) {
	comms := NewComms(2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = comms[0].Send([]byte("abc"), 1, 7)
	}()
	buf := make([]byte, 2)
	err := comms[1].Recv(buf, 0, 7)
	assert.Error(t, err)
	wg.Wait()
}
