// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

// AppendChild links child under parent at a fork point. Takes both
// locks in a fixed order — parent, then child — to avoid the deadlock a
// reversed order could cause against a concurrent collection or join
// taking the same pair; requires child is not already linked anywhere.
// Children are prepended, so joins in LIFO order walk a well-formed
// merge chain.
func AppendChild(parent, child *HierarchicalHeap) {
	parent.Lock()
	defer parent.Unlock()
	child.Lock()
	defer child.Unlock()

	if child.parentHH != nil || child.nextChildHH != nil {
		cclog.Abortf("[HHEAP]> AppendChild: child %s is already linked into a parent", child.Display())
	}

	child.parentHH = parent
	child.nextChildHH = parent.childHHList
	parent.childHHList = child
}

// removeChild unlinks child from parent's childHHList. LIFO joins make
// the linear search O(1) in the common path: the child being joined is
// almost always the list head.
func removeChild(parent, child *HierarchicalHeap) {
	if parent.childHHList == child {
		parent.childHHList = child.nextChildHH
		child.nextChildHH = nil
		return
	}
	for cur := parent.childHHList; cur != nil; cur = cur.nextChildHH {
		if cur.nextChildHH == child {
			cur.nextChildHH = child.nextChildHH
			child.nextChildHH = nil
			return
		}
	}
}

// MergeIntoParent folds child's surviving level list into parent at a
// join point, required to be called only once child.level ==
// parent.level (i.e. any levels child allocated past the fork point
// have already been promoted or collected away): child's chunks are
// spliced onto parent's spine, child is detached from parent's child
// list, and parent's bookkeeping is refreshed. This is the
// non-collecting half of a join — the caller is expected to have
// already run a local collection over child if one was warranted.
// Takes both locks, parent then child, matching AppendChild's fixed
// order. The child HH record is garbage afterwards; its chunks now
// belong to parent.
func MergeIntoParent(parent, child *HierarchicalHeap) {
	parent.Lock()
	defer parent.Unlock()
	child.Lock()
	defer child.Unlock()

	if child.level != parent.level {
		cclog.Abortf("[HHEAP]> MergeIntoParent: child level %d != parent level %d (%s into %s)",
			child.level, parent.level, child.Display(), parent.Display())
	}

	updateLevelListPointers(&child.levelList, parent)
	mergeLevelList(&parent.levelList, &child.levelList)
	removeChild(parent, child)

	parent.locallyCollectibleHeapSize += child.locallyCollectibleHeapSize
	updateValues(parent)
}

// PromoteChunks lifts every chunk hh owns at hh.level down one level,
// merging them into the level below — called at the deepest point of a
// parallel region just before the region ends, so the region's
// surviving allocations become part of the enclosing scope's heap.
// hh.level itself is not changed here; the mutator lowers it separately
// with SetLevel as it leaves the region.
func PromoteChunks(hh *HierarchicalHeap) {
	if hh.level == 0 {
		return
	}

	hh.Lock()
	defer hh.Unlock()

	if top, ok := hh.levelList.HighestLevel(); ok && top > hh.level {
		panic("hheap: level list has chunks above the heap's current level")
	}
	promoteChunks(&hh.levelList, hh.level)
	updateValues(hh)
}

// Extend grows hh by one chunk of at least allocableSize bytes at hh's
// current level: a normal chunk appended to the existing head's list
// when the spine already has chunks at hh.level, a fresh level head
// spliced in otherwise. Returns ErrChunkPoolExhausted if pool has
// no room — the one condition this package reports through a returned
// error instead of cclog.Abortf, since the mutator may be able to retry
// after forcing a collection at a shallower minLevel.
//
// This is the low-level primitive: it never triggers a collection
// itself. Collector.Extend wraps it with the over-commit check.
func Extend(hh *HierarchicalHeap, pool ChunkPool, allocableSize uintptr) error {
	var c *Chunk
	var allocated bool
	if head := hh.levelList.findHead(hh.level); head != nil {
		c, allocated = allocateChunk(pool, head, allocableSize)
	} else {
		c, allocated = allocateLevelHeadChunk(pool, &hh.levelList.head, allocableSize, hh.level, hh)
	}
	if !allocated {
		return ErrChunkPoolExhausted
	}

	hh.lastAllocatedChunk = c
	hh.savedFrontier = c.Frontier()
	hh.limit = c.Limit()
	return nil
}

// Extend is the mutator's allocation slow-path refill, as a Collector
// method so it can apply the full refill policy: if the chunk pool is
// over-committed, a local collection of hh runs first (freeing whatever
// garbage the current request would otherwise have to grow past), and
// only then is a fresh chunk allocated. dq is the work-stealing deque
// to scan as a root if a collection does run; it may be nil if hh
// currently has no not-yet-stolen continuations.
func (c *Collector) Extend(hh *HierarchicalHeap, dq deque, allocableSize uintptr) error {
	if c.Pool.OverHalfAllocated() {
		c.CollectLocal(hh, dq)
	}
	return Extend(hh, c.Pool, allocableSize)
}
