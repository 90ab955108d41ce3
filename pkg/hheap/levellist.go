// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// LevelList is a heap's spine: a singly linked list of level-head chunks
// ordered by strictly descending level, each head heading a singly linked
// list of chunks at that level.
//
// Invariants: levels are strictly monotone; every level-head's
// containingHH equals the owning HH, except transiently during a
// collection when it may equal the copyObjectHH sentinel; lastChunk is
// reachable from the head by following nextChunk.
type LevelList struct {
	head *Chunk
}

// IsEmpty reports whether the list has no chunks at all.
func (l *LevelList) IsEmpty() bool {
	return l == nil || l.head == nil
}

// HighestLevel returns the level of the first (deepest/newest) head
// in the list, and false if the list is empty — O(1).
func (l *LevelList) HighestLevel() (uint32, bool) {
	if l.IsEmpty() {
		return 0, false
	}
	return l.head.level, true
}

// findHead returns the level-head chunk for level, or nil if no chunks
// exist at that level yet.
func (l *LevelList) findHead(level uint32) *Chunk {
	for c := l.head; c != nil; c = c.nextHead {
		if c.level == level {
			return c
		}
		if c.level < level {
			return nil
		}
	}
	return nil
}

// LastChunk returns the tail chunk of the whole list (the last chunk of
// its lowest-numbered level), or nil if the list is empty.
func (l *LevelList) LastChunk() *Chunk {
	if l.IsEmpty() {
		return nil
	}
	tail := l.head
	for tail.nextHead != nil {
		tail = tail.nextHead
	}
	return tail.lastChunk
}

// mergeLevelList merges src into dst. For each level-head in src, in its
// descending order, dst either gains a new head at that level (spliced
// into the correct position) or, if dst already has a head at that
// level, src's chunks are concatenated onto dst's existing list for that
// level (via lastChunk) and src's head is demoted to a normal chunk
// pointing at the surviving head.
//
// Note containingHH pointers inside src are NOT rewritten by this
// function; callers that need that (moving an HH, retagging to-space)
// must call updateLevelListPointers first.
func mergeLevelList(dst, src *LevelList) {
	for src.head != nil {
		s := src.head
		src.head = s.nextHead

		existing := dst.findHead(s.level)
		if existing == nil {
			insertHead(dst, s)
			continue
		}

		existing.lastChunk.nextChunk = s
		existing.lastChunk = s.lastChunk

		s.level = invalidLevel
		s.levelHead = existing
		s.nextHead = nil
		s.lastChunk = nil
		s.containingHH = nil
	}
}

// insertHead splices a standalone level-head chunk (its nextHead field is
// ignored on entry) into list at its correctly ordered position.
func insertHead(list *LevelList, h *Chunk) {
	var prev *Chunk
	cursor := list.head
	for cursor != nil && cursor.level > h.level {
		prev = cursor
		cursor = cursor.nextHead
	}
	h.nextHead = cursor
	if prev == nil {
		list.head = h
	} else {
		prev.nextHead = h
	}
}

// freeChunks releases to pool every chunk in list whose level is >=
// minLevel, updating list to point at the first surviving head.
func freeChunks(pool ChunkPool, list *LevelList, minLevel uint32) {
	for list.head != nil && list.head.level >= minLevel {
		head := list.head
		list.head = head.nextHead
		freeChunkChain(pool, head)
	}
}

func freeChunkChain(pool ChunkPool, head *Chunk) {
	for c := head; c != nil; {
		next := c.nextChunk
		unregisterChunk(c)
		pool.Free(c.slab)
		c = next
	}
}

// promoteChunks moves every chunk at exactly level down to level-1,
// merging into the level-1 head (creating it if none exists). When level
// is the current top of the list, this lifts the allocations made during
// a parallel region up into the enclosing scope once the region ends.
func promoteChunks(list *LevelList, level uint32) {
	var prev *Chunk
	promoted := list.head
	for promoted != nil && promoted.level > level {
		prev = promoted
		promoted = promoted.nextHead
	}
	if promoted == nil || promoted.level != level {
		return
	}

	if prev == nil {
		list.head = promoted.nextHead
	} else {
		prev.nextHead = promoted.nextHead
	}
	promoted.nextHead = nil

	existing := list.findHead(level - 1)
	if existing == nil {
		promoted.level = level - 1
		insertHead(list, promoted)
		return
	}

	existing.lastChunk.nextChunk = promoted
	existing.lastChunk = promoted.lastChunk

	promoted.level = invalidLevel
	promoted.levelHead = existing
	promoted.lastChunk = nil
	promoted.containingHH = nil
}

// updateLevelListPointers rewrites every head's containingHH to newHH —
// called after moving an HH object, or after a collection finishes
// copying into to-space heads tagged with the copyObjectHH sentinel.
func updateLevelListPointers(list *LevelList, newHH *HierarchicalHeap) {
	for c := list.head; c != nil; c = c.nextHead {
		c.containingHH = newHH
	}
}

// levelSize returns the bytes actually allocated (start through
// frontier) across every chunk at exactly level, used to recompute
// locallyCollectibleSize.
func levelSize(list *LevelList, level uint32) uintptr {
	head := list.findHead(level)
	if head == nil {
		return 0
	}
	var total uintptr
	for c := head; c != nil; c = c.nextChunk {
		total += c.frontier - c.Start()
	}
	return total
}

// assertLevelListInvariants panics if list violates the spine
// invariants. Only meant to be called from tests and from
// assertion-gated paths in the collector.
func assertLevelListInvariants(list *LevelList) {
	prevLevel := uint32(0)
	first := true
	for h := list.head; h != nil; h = h.nextHead {
		if !first && h.level >= prevLevel {
			panic("hheap: level list levels are not strictly descending")
		}
		first = false
		prevLevel = h.level

		tail := h
		for c := h; c != nil; c = c.nextChunk {
			if c.frontier < c.Start() || c.frontier > c.Limit() {
				panic("hheap: chunk frontier out of [start, limit)")
			}
			tail = c
		}
		if h.lastChunk != tail {
			panic("hheap: level head lastChunk is not reachable via nextChunk")
		}
	}
}
