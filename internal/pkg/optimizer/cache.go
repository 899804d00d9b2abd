//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

package optimizer

import (
	"container/list"
	"sync"

	"github.com/clusterkit/topoopt/internal/pkg/cachekey"
)

// DefaultCacheCapacity is the decision cache's default bound, matching
// §4.D's "e.g., 256 entries, LRU".
const DefaultCacheCapacity = 256

type cacheEntry struct {
	key  cachekey.Key
	plan Plan
}

// decisionCache is the optimizer's bounded LRU over (op_kind, N,
// rounded-m-bucket) keys. A mutex guards it rather than per-communicator
// partitioning: §5 allows either, and an Optimizer already is one
// communicator's state, so the mutex only matters if that one
// communicator's collectives are themselves invoked from multiple
// goroutines.
type decisionCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cachekey.Key]*list.Element
}

func newDecisionCache(capacity int) *decisionCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &decisionCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cachekey.Key]*list.Element, capacity),
	}
}

func (c *decisionCache) get(key cachekey.Key) (Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Plan{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).plan, true
}

func (c *decisionCache) put(key cachekey.Key, plan Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).plan = plan
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: key, plan: plan})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll = list.New()
	c.items = make(map[cachekey.Key]*list.Element, c.capacity)
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
