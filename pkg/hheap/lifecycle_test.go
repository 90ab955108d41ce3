// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"testing"

	"github.com/parheap/parheap/pkg/chunkpool"
)

func TestAppendChildLinksIntoParent(t *testing.T) {
	parent := NewHierarchicalHeap(2)
	child := NewHierarchicalHeap(3)

	AppendChild(parent, child)

	if child.parentHH != parent {
		t.Error("AppendChild() did not set child.parentHH")
	}
	if parent.childHHList != child {
		t.Error("AppendChild() did not prepend child to parent.childHHList")
	}
}

func TestAppendChildLIFOOrder(t *testing.T) {
	parent := NewHierarchicalHeap(0)
	c1 := NewHierarchicalHeap(1)
	c2 := NewHierarchicalHeap(1)

	AppendChild(parent, c1)
	AppendChild(parent, c2)

	if parent.childHHList != c2 || c2.nextChildHH != c1 {
		t.Error("repeated AppendChild() should prepend, producing LIFO order")
	}
}

func TestMergeIntoParentSplicesLevelListAndDetaches(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	parent := NewHierarchicalHeap(2)
	child := NewHierarchicalHeap(2)
	AppendChild(parent, child)

	EnsureNotEmpty(parent, pool, 64)
	if _, ok := allocateLevelHeadChunk(pool, &child.levelList.head, 64, 3, child); !ok {
		t.Fatal("allocateLevelHeadChunk on child failed")
	}
	updateValues(child)

	MergeIntoParent(parent, child)

	if parent.childHHList != nil {
		t.Error("MergeIntoParent() should detach child from parent.childHHList")
	}
	lvl, ok := parent.levelList.HighestLevel()
	if !ok || lvl != 3 {
		t.Errorf("parent.levelList.HighestLevel() = (%d, %v), want (3, true) after merge", lvl, ok)
	}
	if parent.levelList.head.containingHH != parent {
		t.Error("merged level-3 head's containingHH was not rewritten to parent")
	}
}

func TestAppendChildThenMergeWithNoAllocationIsIdentity(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	parent := NewHierarchicalHeap(2)
	EnsureNotEmpty(parent, pool, 64)
	before := parent.levelList.head

	child := NewHierarchicalHeap(2)
	AppendChild(parent, child)
	MergeIntoParent(parent, child)

	if parent.levelList.head != before {
		t.Error("append+merge with no intervening child allocation should leave parent.levelList unchanged")
	}
	if lvl, ok := parent.levelList.HighestLevel(); !ok || lvl != 2 {
		t.Errorf("parent.levelList.HighestLevel() = (%d, %v), want (2, true)", lvl, ok)
	}
}

func TestPromoteChunksLiftsTopLevelDownOne(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)
	EnsureNotEmpty(hh, pool, 64)

	PromoteChunks(hh)

	if hh.GetLevel() != 5 {
		t.Errorf("GetLevel() after PromoteChunks() = %d, want 5 (promotion moves chunks, not the heap's level)", hh.GetLevel())
	}
	if lvl, ok := hh.levelList.HighestLevel(); !ok || lvl != 4 {
		t.Errorf("levelList.HighestLevel() after promote = (%d, %v), want (4, true)", lvl, ok)
	}
}

func TestPromoteChunksNoopOnEmptyHH(t *testing.T) {
	hh := NewHierarchicalHeap(5)
	PromoteChunks(hh)
	if hh.GetLevel() != 5 {
		t.Errorf("GetLevel() should be unchanged by promoting an empty HH, got %d", hh.GetLevel())
	}
}

func TestExtendAllocatesFirstChunkAsLevelHead(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(1)

	if err := Extend(hh, pool, 64); err != nil {
		t.Fatalf("Extend() failed: %v", err)
	}
	if !hh.GetCurrent().IsLevelHead() {
		t.Error("Extend() on an empty HH should allocate a level-head chunk")
	}
}

func TestExtendAllocatesLevelHeadWhenLevelDeepens(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(1)
	EnsureNotEmpty(hh, pool, 64)

	SetLevel(hh, 2)
	if err := Extend(hh, pool, 64); err != nil {
		t.Fatalf("Extend() failed: %v", err)
	}

	cur := hh.GetCurrent()
	if !cur.IsLevelHead() || cur.level != 2 {
		t.Errorf("Extend() after SetLevel(2) should create a level-2 head, got level %d (head=%v)", getLevel(cur), cur.IsLevelHead())
	}
	if lvl, ok := hh.levelList.HighestLevel(); !ok || lvl != 2 {
		t.Errorf("HighestLevel() = (%d, %v), want (2, true)", lvl, ok)
	}
}

func TestExtendAppendsNormalChunkWhenHeadExists(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(1)
	EnsureNotEmpty(hh, pool, 64)
	head := hh.GetCurrent()

	if err := Extend(hh, pool, 64); err != nil {
		t.Fatalf("Extend() failed: %v", err)
	}
	if hh.GetCurrent().IsLevelHead() {
		t.Error("Extend() on an HH that already has a level-1 head should append a normal chunk")
	}
	if head.nextChunk != hh.GetCurrent() {
		t.Error("Extend() did not link the new chunk after the existing head")
	}
}

func TestExtendReturnsErrorOnExhaustion(t *testing.T) {
	hh := NewHierarchicalHeap(0)
	if err := Extend(hh, exhaustedPool{}, 64); err != ErrChunkPoolExhausted {
		t.Errorf("Extend() = %v, want ErrChunkPoolExhausted", err)
	}
}

func TestCollectorExtendTriggersCollectionWhenOverHalfAllocated(t *testing.T) {
	pool := &pressurePool{Pool: chunkpool.NewWithAlignment(4096), over: true}
	om := fakeObjectModel{}
	c := NewCollector(pool, om, fakeStackOps{}, &noopQueueLock{}, nil)

	hh := NewHierarchicalHeap(0)
	EnsureNotEmpty(hh, pool, 64)

	if err := c.Extend(hh, nil, 64); err != nil {
		t.Fatalf("Collector.Extend() failed: %v", err)
	}
	if !pool.collectTriggered {
		t.Error("Collector.Extend() should run a collection first when the pool reports over-half-allocated")
	}
}

// pressurePool wraps a real pool but always reports OverHalfAllocated as
// configured, recording whether it was consulted while reporting
// pressure — Collector.Extend runs a collection whenever that report is
// true, so the flag stands for the collection having run.
type pressurePool struct {
	*chunkpool.Pool
	over             bool
	collectTriggered bool
}

func (p *pressurePool) OverHalfAllocated() bool {
	if p.over {
		p.over = false // only force the one collection Extend should trigger
		p.collectTriggered = true
		return true
	}
	return false
}

type fakeStackOps struct{}

func (fakeStackOps) IsCurrentStack(ObjPtr) bool            { return false }
func (fakeStackOps) ShrinkReserved(ObjPtr, bool) uintptr   { return 0 }
func (fakeStackOps) StackUsed(ObjPtr) uintptr              { return 0 }
func (fakeStackOps) StackReserved(ObjPtr) uintptr          { return 0 }
func (fakeStackOps) SetStackReserved(ObjPtr, uintptr)      {}
func (fakeStackOps) StackStructSize() uintptr              { return 0 }

type noopQueueLock struct{ locked bool }

func (l *noopQueueLock) Lock()                    { l.locked = true }
func (l *noopQueueLock) Unlock()                  { l.locked = false }
func (l *noopQueueLock) AlreadyLockedByMe() bool  { return false }
