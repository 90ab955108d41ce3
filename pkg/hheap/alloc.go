// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// Allocate reserves size contiguous, ObjectAlignment-aligned bytes at
// hh's current level, refilling via c.Extend (which may itself trigger
// a local collection) when the cached frontier/limit cannot satisfy the
// request or hh has moved to a level the cached chunk does not belong
// to. A real embedding compiles the frontier bump inline into the
// mutator; this callable form exists so testobj, cmd/hhsim, and the
// tests can drive the collector through realistic allocation pressure
// without poking chunk internals directly.
func (c *Collector) Allocate(hh *HierarchicalHeap, dq deque, size uintptr) (uintptr, error) {
	size = alignUp(size, ObjectAlignment)

	if hh.lastAllocatedChunk == nil ||
		getLevel(hh.lastAllocatedChunk) != hh.level ||
		hh.savedFrontier+size > hh.limit {
		if err := c.Extend(hh, dq, size); err != nil {
			return 0, err
		}
	}

	addr := hh.savedFrontier
	UpdateValues(hh, addr+size)
	return addr, nil
}
