// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"sync"
	"unsafe"
)

// ObjectAlignment is the alignment every object's start address must
// satisfy within a chunk.
const ObjectAlignment = 8

// chunkHeaderSize is the nominal size reserved for a chunk's packed
// header. The chunk metadata actually lives in the Chunk struct below
// rather than overlaid on the first bytes of the slab (Go has no
// portable way to overlay a struct onto a byte slice).
// The reservation is kept anyway so that Start()/Limit() preserve the
// invariant that a chunk's allocable region begins strictly after room
// for a header, which a couple of invariant checks rely on.
const chunkHeaderSize = 64

// Chunk is a contiguous, aligned region of bump-allocatable memory,
// together with the packed metadata conceptually living in its header.
//
// Invariants:
//   - start() <= frontier <= limit()
//   - the levelHead chain from any normal chunk terminates at a chunk
//     whose level != invalidLevel
type Chunk struct {
	slab      []byte // backing storage, kept alive for this chunk's lifetime
	base      uintptr
	frontier  uintptr
	nextChunk *Chunk

	level uint32 // invalidLevel unless this chunk is a level head

	// level-head fields, valid when level != invalidLevel
	nextHead     *Chunk
	lastChunk    *Chunk
	containingHH *HierarchicalHeap

	// toSpaceHead caches the to-space head for this level during a
	// collection, so forwarding the second and later survivors at a
	// level is O(1). Only ever set on from-space heads inside the
	// collection range, all of which are freed before the collection
	// returns, so it never leaks past a collection.
	toSpaceHead *Chunk

	// normal-chunk field, valid when level == invalidLevel
	levelHead *Chunk
}

// chunkRegistry maps a chunk's slab base address to the *Chunk wrapping
// it, across every HierarchicalHeap and every ChunkPool in the process.
// A chunk's level is a property of its own header, not of whichever HH
// struct happens to hold the Go pointer to it right now, so resolving
// "what level does this address belong to" for the forwarding pass's
// entanglement check has to work independent of which hh.levelList (if
// any) the caller is currently walking; every live chunk's header is
// self-describing. A sync.Map is adequate:
// entries are added/removed no more often than chunks are
// allocated/freed, and lookups happen once per forwarded slot.
var chunkRegistry sync.Map // base uintptr -> *Chunk

func registerChunk(c *Chunk) {
	chunkRegistry.Store(c.base, c)
}

func unregisterChunk(c *Chunk) {
	chunkRegistry.Delete(c.base)
}

// findChunkForAddr resolves the *Chunk backing addr, if any chunk
// currently registered (in any HH, in any pool) contains it. pool is
// consulted first purely to translate addr into its slab's base address;
// the Chunk itself may belong to a different pool/HH than the one
// currently being collected.
func findChunkForAddr(pool ChunkPool, addr uintptr) (*Chunk, bool) {
	slab, ok := pool.Find(addr)
	if !ok {
		return nil, false
	}
	v, ok := chunkRegistry.Load(addrOf(slab))
	if !ok {
		return nil, false
	}
	return v.(*Chunk), true
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func alignUp(n, alignment uintptr) uintptr {
	if alignment == 0 {
		return n
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

// Start returns the first byte past this chunk's header, rounded up to
// ObjectAlignment — the initial bump-allocation frontier of a fresh chunk.
func (c *Chunk) Start() uintptr {
	return alignUp(c.base+chunkHeaderSize, ObjectAlignment)
}

// Limit returns the chunk's physical end.
func (c *Chunk) Limit() uintptr {
	return c.base + uintptr(len(c.slab))
}

// Frontier returns the current bump pointer: the first unallocated byte
// within this chunk.
func (c *Chunk) Frontier() uintptr {
	return c.frontier
}

// IsLevelHead reports whether c is the head chunk of its level's list —
// a single hot-path comparison against the invalid-level sentinel.
func (c *Chunk) IsLevelHead() bool {
	return c.level != invalidLevel
}

// bytesRemaining returns the number of unallocated bytes left in c.
func (c *Chunk) bytesRemaining() uintptr {
	return c.Limit() - c.frontier
}

// updateChunkValues writes back the chunk's frontier after a direct
// (mutator fast-path or copier) bump allocation.
func updateChunkValues(c *Chunk, frontier uintptr) {
	c.frontier = frontier
}

// getLevel returns the level of the list chunk belongs to: its own level
// if it is a head, or the head's level reached by walking the levelHead
// chain otherwise. Chains are intentionally shallow, since the collector
// eagerly demotes merged heads to point directly at the surviving head.
func getLevel(chunk *Chunk) uint32 {
	for chunk.level == invalidLevel {
		chunk = chunk.levelHead
	}
	return chunk.level
}

// levelHeadOf returns the level-head chunk that chunk ultimately belongs
// to (itself, if chunk is already a head).
func levelHeadOf(chunk *Chunk) *Chunk {
	for chunk.level == invalidLevel {
		chunk = chunk.levelHead
	}
	return chunk
}

// allocateChunk acquires a chunk of at least allocableSize allocable
// bytes from pool, installs it as a normal chunk pointing at headOfLevel,
// appends it to headOfLevel's list, and updates lastChunk. Returns nil,
// false if the pool is exhausted.
func allocateChunk(pool ChunkPool, headOfLevel *Chunk, allocableSize uintptr) (*Chunk, bool) {
	slab, ok := pool.Allocate(allocableSize + chunkHeaderSize)
	if !ok {
		return nil, false
	}

	c := &Chunk{slab: slab, base: addrOf(slab), level: invalidLevel, levelHead: headOfLevel}
	c.frontier = c.Start()
	registerChunk(c)

	head := levelHeadOf(headOfLevel)
	head.lastChunk.nextChunk = c
	head.lastChunk = c

	return c, true
}

// allocateLevelHeadChunk acquires a chunk of at least allocableSize
// allocable bytes from pool, installs it as a level-head chunk at level,
// owned by owningHH, and splices it into *listHead at the correct ordered
// position (level lists are kept in strictly descending level order;
// same-level heads are never merged here — merging two same-level heads
// is a level-list invariant violation, only mergeLevelList may do that).
func allocateLevelHeadChunk(pool ChunkPool, listHead **Chunk, allocableSize uintptr, level uint32, owningHH *HierarchicalHeap) (*Chunk, bool) {
	slab, ok := pool.Allocate(allocableSize + chunkHeaderSize)
	if !ok {
		return nil, false
	}

	c := &Chunk{slab: slab, base: addrOf(slab), level: level, containingHH: owningHH}
	c.frontier = c.Start()
	c.lastChunk = c
	registerChunk(c)

	var prev *Chunk
	cursor := *listHead
	for cursor != nil && cursor.level > level {
		prev = cursor
		cursor = cursor.nextHead
	}
	c.nextHead = cursor
	if prev == nil {
		*listHead = c
	} else {
		prev.nextHead = c
	}

	return c, true
}
