//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package collective is the application-facing surface spec.md §6
// lists: optimize_broadcast, optimize_reduce, optimize_allreduce,
// optimize_allgather and network_characteristics(comm). It is a thin
// registry on top of internal/pkg/optimizer: Init binds a
// network-characteristics model to a communicator once, at process-group
// formation, and every OptimizeX call below looks that binding up and
// dispatches through the communicator's own Optimizer instance — one
// decision cache per communicator, matching §5's "each communicator is
// an isolated serial stream."
package collective

import (
	"sync"

	"github.com/clusterkit/topoopt/internal/pkg/model"
	"github.com/clusterkit/topoopt/internal/pkg/optimizer"
	"github.com/clusterkit/topoopt/pkg/cerrors"
	"github.com/clusterkit/topoopt/pkg/substrate"
)

var (
	registryMu sync.Mutex
	registry   = map[substrate.Comm]*optimizer.Optimizer{}
)

// Init builds a network-characteristics model for comm and registers an
// Optimizer over it, replacing any previous registration (a
// reconfiguration: the old decision cache is dropped along with the old
// Optimizer, matching §4.D's "ignore cache on first call after model
// reconfiguration"). Every process in the communicator must call Init
// with an equivalent cfg before calling any OptimizeX function on it.
func Init(comm substrate.Comm, cfg model.Config) (*model.Model, error) {
	m, err := model.New(cfg)
	if err != nil {
		return nil, err
	}
	registryMu.Lock()
	registry[comm] = optimizer.New(m)
	registryMu.Unlock()
	return m, nil
}

// Forget drops comm's registration. Callers that tear down a
// communicator should call this so the registry doesn't hold the last
// reference to its Optimizer forever.
func Forget(comm substrate.Comm) {
	registryMu.Lock()
	delete(registry, comm)
	registryMu.Unlock()
}

func lookup(comm substrate.Comm) (*optimizer.Optimizer, error) {
	registryMu.Lock()
	opt, ok := registry[comm]
	registryMu.Unlock()
	if !ok {
		return nil, cerrors.New(cerrors.KindInvalidConfig, "no network characteristics registered for this communicator; call collective.Init first")
	}
	return opt, nil
}

// NetworkCharacteristics returns the read-only model handle registered
// for comm via Init.
func NetworkCharacteristics(comm substrate.Comm) (*model.Model, error) {
	opt, err := lookup(comm)
	if err != nil {
		return nil, err
	}
	return opt.Model(), nil
}

// OptimizeBroadcast runs DECIDE → DISPATCH → EXECUTE → REPORT for a
// broadcast of buf from root on comm.
func OptimizeBroadcast(comm substrate.Comm, buf []byte, root int) (optimizer.Result, error) {
	opt, err := lookup(comm)
	if err != nil {
		return optimizer.Result{}, err
	}
	return opt.Broadcast(comm, buf, root)
}

// OptimizeReduce runs DECIDE → DISPATCH → EXECUTE → REPORT for a reduce
// of sendbuf into recvbuf under op, folded toward root.
func OptimizeReduce(comm substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op, root int) (optimizer.Result, error) {
	opt, err := lookup(comm)
	if err != nil {
		return optimizer.Result{}, err
	}
	return opt.Reduce(comm, sendbuf, recvbuf, op, root)
}

// OptimizeAllreduce runs DECIDE → DISPATCH → EXECUTE → REPORT for an
// allreduce of sendbuf into recvbuf under op.
func OptimizeAllreduce(comm substrate.Comm, sendbuf, recvbuf []float64, op substrate.Op) (optimizer.Result, error) {
	opt, err := lookup(comm)
	if err != nil {
		return optimizer.Result{}, err
	}
	return opt.Allreduce(comm, sendbuf, recvbuf, op)
}

// OptimizeAllgather runs DECIDE → DISPATCH → EXECUTE → REPORT for an
// allgather of sendbuf into recvbuf (len(recvbuf) == N*len(sendbuf)).
func OptimizeAllgather(comm substrate.Comm, sendbuf, recvbuf []byte) (optimizer.Result, error) {
	opt, err := lookup(comm)
	if err != nil {
		return optimizer.Result{}, err
	}
	return opt.Allgather(comm, sendbuf, recvbuf)
}
