// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
)

// lock states for HierarchicalHeap.lock, a two-state word protected by
// atomic CAS rather than a sync.Mutex — the lock is held only across a
// handful of pointer writes, so a spin loop is preferable to parking on
// a mutex.
const (
	hhUnlocked int32 = 0
	hhLocked   int32 = 1
)

// noStealLevel is the stealLevel value of a heap nothing has been stolen
// from: every level it owns is private.
const noStealLevel = ^uint32(0)

// HierarchicalHeap is one node of a task's heap hierarchy: the per-task
// bookkeeping record rooted at the level the task forked at and extended
// by every chunk the task (or its uncollected descendants) has
// bump-allocated since.
type HierarchicalHeap struct {
	lock int32 // hhUnlocked / hhLocked, CAS-protected

	level      uint32 // current (deepest) level this task allocates at
	stealLevel uint32 // highest level stolen from this task, or noStealLevel

	levelList    LevelList // chunks owned directly by this HH
	newLevelList LevelList // to-space under construction during a collection

	savedFrontier uintptr // frontier of lastAllocatedChunk, saved across a collection
	limit         uintptr // cached Limit() of lastAllocatedChunk, for the mutator fast path

	lastAllocatedChunk *Chunk

	parentHH    *HierarchicalHeap
	nextChildHH *HierarchicalHeap // sibling link in parentHH.childHHList
	childHHList *HierarchicalHeap // head of the singly linked list of children

	thread       Thread // the thread (goroutine handle) currently running atop this HH
	threadObjPtr ObjPtr // the thread's own heap-resident record, forwarded like retVal
	retVal       ObjPtr // value being returned across a join, scanned as a root

	locallyCollectibleSize     uintptr // bytes reachable from this HH's own private levels
	locallyCollectibleHeapSize uintptr // above plus all uncollected descendants

	debugName string // stable human-readable ID, for logs and tests only
}

// Thread is the out-of-scope "thread" collaborator: whatever the
// embedding scheduler uses to denote a schedulable unit of work, opaque
// to this package except for the operations below.
type Thread interface {
	// ForeachObjptrInThread visits every root object-pointer slot owned
	// directly by the thread record itself, the current-stack slot
	// included, so a collection can rewrite them all in place.
	ForeachObjptrInThread(forward func(slot *ObjPtr))
	// CurrentStack returns the stack object currently active on this
	// thread, so the collector can special-case "am I copying my own
	// currently running stack".
	CurrentStack() ObjPtr
}

// NewHierarchicalHeap allocates a fresh, unlinked HH forked at level.
// The returned HH owns no chunks yet (its first chunk is created lazily
// by the first allocation that runs against it), has had nothing stolen,
// and has no parent: the caller links it into a parent's tree with
// AppendChild.
func NewHierarchicalHeap(level uint32) *HierarchicalHeap {
	return &HierarchicalHeap{
		level:      level,
		stealLevel: noStealLevel,
		debugName:  uuid.NewString(),
	}
}

// Lock spins until the HH's lock word can be taken by this goroutine.
// Held only across the handful of pointer/field updates of a single
// mutator allocation or a single collector bookkeeping step — never
// across I/O or another lock acquisition — so a bare spin is preferable
// to parking.
func (hh *HierarchicalHeap) Lock() {
	for !atomic.CompareAndSwapInt32(&hh.lock, hhUnlocked, hhLocked) {
	}
}

// Unlock releases a lock taken by Lock.
func (hh *HierarchicalHeap) Unlock() {
	atomic.StoreInt32(&hh.lock, hhUnlocked)
}

// GetSavedFrontier returns the frontier this HH's mutator allocation
// pointer was saved at the last time a collection or refill ran, which
// is where bump allocation resumes from on the next allocation into
// this HH.
func (hh *HierarchicalHeap) GetSavedFrontier() uintptr {
	return hh.savedFrontier
}

// GetLimit returns the cached allocation limit the mutator compares its
// frontier against before taking the slow path.
func (hh *HierarchicalHeap) GetLimit() uintptr {
	return hh.limit
}

// GetCurrent returns the chunk currently being bump-allocated into.
func (hh *HierarchicalHeap) GetCurrent() *Chunk {
	return hh.lastAllocatedChunk
}

// GetLevel returns hh's own current (deepest) allocation level.
func (hh *HierarchicalHeap) GetLevel() uint32 {
	return hh.level
}

// GetStealLevel returns the highest level stolen from hh, and false if
// nothing has ever been stolen.
func (hh *HierarchicalHeap) GetStealLevel() (uint32, bool) {
	if hh.stealLevel == noStealLevel {
		return 0, false
	}
	return hh.stealLevel, true
}

// lowestPrivateLevel is the shallowest level hh may still collect
// privately: one past the deepest steal, or level zero if nothing has
// been stolen.
func (hh *HierarchicalHeap) lowestPrivateLevel() uint32 {
	if hh.stealLevel == noStealLevel {
		return 0
	}
	return hh.stealLevel + 1
}

// Levels returns the levels of hh's spine in its own (descending)
// order. Intended for diagnostics and tests; the mutator has no reason
// to enumerate levels.
func (hh *HierarchicalHeap) Levels() []uint32 {
	var levels []uint32
	for c := hh.levelList.head; c != nil; c = c.nextHead {
		levels = append(levels, c.level)
	}
	return levels
}

// GetContaining returns the HH that directly owns chunk — its level
// head's containingHH, which may transiently be the copyObjectHH
// sentinel while a collection is constructing to-space.
func GetContaining(chunk *Chunk) *HierarchicalHeap {
	return levelHeadOf(chunk).containingHH
}

// ObjptrInHierarchicalHeap reports whether op's chunk is owned
// (transitively, via levelHeadOf) by hh specifically rather than some
// other HH sharing the same pool.
func ObjptrInHierarchicalHeap(hh *HierarchicalHeap, chunk *Chunk) bool {
	return GetContaining(chunk) == hh
}

// GetObjptrLevel resolves the level of the chunk backing op, as seen by
// pool, without regard to which HH currently owns that chunk. Reports
// ok=false if op is not backed by any chunk pool knows about (e.g. a
// global-heap pointer).
func GetObjptrLevel(pool ChunkPool, om ObjectModel, op ObjPtr) (level uint32, ok bool) {
	chunk, found := findChunkForAddr(pool, om.ObjptrToPointer(op))
	if !found {
		return 0, false
	}
	return getLevel(chunk), true
}

// Sizeof returns the in-memory size of a HierarchicalHeap record, for
// an embedding runtime that stores HH records inside its own
// (global-heap) object layout and needs to reserve space for them.
func Sizeof() uintptr {
	return unsafe.Sizeof(HierarchicalHeap{})
}

// Offsetof returns the byte offset of the level-list bookkeeping within
// a HierarchicalHeap record, the field an embedding runtime's scanner
// must skip when it treats the record's prefix as opaque machine words.
func Offsetof() uintptr {
	return unsafe.Offsetof(HierarchicalHeap{}.levelList)
}

// Display renders a one-line debug summary of hh for log lines.
func (hh *HierarchicalHeap) Display() string {
	if hh == nil {
		return "<nil-hh>"
	}
	return fmt.Sprintf("HH{%s level=%d stealLevel=%d collectible=%d}",
		hh.debugName, hh.level, hh.stealLevel, hh.locallyCollectibleSize)
}

// EnsureNotEmpty guarantees hh owns at least one chunk at hh.level,
// allocating a fresh level head from pool if the level list is currently
// empty — called before the very first allocation into a freshly forked
// HH.
func EnsureNotEmpty(hh *HierarchicalHeap, pool ChunkPool, allocableSize uintptr) bool {
	if !hh.levelList.IsEmpty() {
		return true
	}
	c, ok := allocateLevelHeadChunk(pool, &hh.levelList.head, allocableSize, hh.level, hh)
	if !ok {
		return false
	}
	hh.lastAllocatedChunk = c
	hh.savedFrontier = c.Frontier()
	hh.limit = c.Limit()
	return true
}

// SetThread attaches t as the thread currently running atop hh, so a
// local collection scans its roots and current stack alongside hh's
// deque. Passing nil detaches any previously attached thread.
func SetThread(hh *HierarchicalHeap, t Thread) {
	hh.thread = t
}

// SetThreadObjptr records the heap address of the thread's own record,
// for embeddings whose scheduler allocates thread records inside the
// hierarchical heap. The slot is forwarded as a root — the thread
// object itself, distinct from the contents SetThread's Thread scans —
// so the record relocates with everything else it owns. Passing zero
// marks the record as living outside any collectible heap.
func SetThreadObjptr(hh *HierarchicalHeap, op ObjPtr) {
	hh.threadObjPtr = op
}

// GetThreadObjptr returns the thread record's current heap address, as
// rewritten by the most recent collection.
func GetThreadObjptr(hh *HierarchicalHeap) ObjPtr {
	return hh.threadObjPtr
}

// SetRetVal records op as the value currently being returned across a
// pending join on hh, scanned as a root until the join completes.
func SetRetVal(hh *HierarchicalHeap, op ObjPtr) {
	hh.retVal = op
}

// SetLevel moves hh's current allocation level, typically one deeper on
// entering a parallel region and one shallower on leaving it.
// Unsynchronised: callers are restricted to the owning worker, between
// fork/join events, never concurrently with that worker's own
// collection.
func SetLevel(hh *HierarchicalHeap, level uint32) {
	hh.level = level
}

// SetStealLevel records that work at level has been stolen from hh, so
// every level up to and including it is no longer private and must be
// left alone by local collection. Called by the scheduler with hh's
// lock held.
func SetStealLevel(hh *HierarchicalHeap, level uint32) {
	hh.stealLevel = level
}

// UpdateValues writes the mutator's current allocation frontier back
// into hh and its current chunk — the write-back half of the mutator
// fast path, called at every safe point before the collector may run.
func UpdateValues(hh *HierarchicalHeap, frontier uintptr) {
	hh.savedFrontier = frontier
	updateChunkValues(hh.lastAllocatedChunk, frontier)
}

// UpdateLevelListPointers rewrites every level head of hh's spine to
// name hh as its owner — required after the embedding runtime relocates
// the HH record itself, since heads hold a direct back-pointer.
func UpdateLevelListPointers(hh *HierarchicalHeap) {
	updateLevelListPointers(&hh.levelList, hh)
}

// updateValues refreshes hh's bookkeeping fields (savedFrontier, limit,
// lastAllocatedChunk) to reflect the chunk currently at the tail of its
// spine, after a collection or merge has changed it.
func updateValues(hh *HierarchicalHeap) {
	tail := hh.levelList.LastChunk()
	hh.lastAllocatedChunk = tail
	if tail == nil {
		hh.savedFrontier = 0
		hh.limit = 0
		return
	}
	hh.savedFrontier = tail.Frontier()
	hh.limit = tail.Limit()
}

// GetLocallyCollectibleSize returns the bytes currently allocated
// across hh's private levels, as recomputed by the most recent
// collection or merge.
func (hh *HierarchicalHeap) GetLocallyCollectibleSize() uintptr {
	return hh.locallyCollectibleSize
}

// recomputeLocallyCollectibleSize re-derives the private-range size
// bookkeeping by summing level sizes from hh.level down through the
// lowest private level.
func (hh *HierarchicalHeap) recomputeLocallyCollectibleSize() {
	low := hh.lowestPrivateLevel()
	var total uintptr
	for lvl := hh.level; ; lvl-- {
		total += levelSize(&hh.levelList, lvl)
		if lvl <= low {
			break
		}
	}
	hh.locallyCollectibleSize = total
}
