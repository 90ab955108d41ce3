// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"testing"

	"github.com/parheap/parheap/pkg/chunkpool"
)

func buildLevelList(t *testing.T, pool ChunkPool, owner *HierarchicalHeap, levels ...uint32) *LevelList {
	t.Helper()
	var list LevelList
	for _, lvl := range levels {
		if _, ok := allocateLevelHeadChunk(pool, &list.head, 64, lvl, owner); !ok {
			t.Fatalf("allocateLevelHeadChunk(%d) failed", lvl)
		}
	}
	return &list
}

func TestLevelListHighestLevel(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	var empty LevelList
	if _, ok := empty.HighestLevel(); ok {
		t.Error("HighestLevel() on an empty list should report ok=false")
	}

	list := buildLevelList(t, pool, hh, 5, 3, 4)
	lvl, ok := list.HighestLevel()
	if !ok || lvl != 5 {
		t.Errorf("HighestLevel() = (%d, %v), want (5, true)", lvl, ok)
	}
}

func TestMergeLevelListDisjointLevels(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	dst := buildLevelList(t, pool, hh, 5, 3)
	src := buildLevelList(t, pool, hh, 4)

	mergeLevelList(dst, src)

	var levels []uint32
	for c := dst.head; c != nil; c = c.nextHead {
		levels = append(levels, c.level)
	}
	want := []uint32{5, 4, 3}
	if len(levels) != len(want) {
		t.Fatalf("levels = %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("levels[%d] = %d, want %d", i, levels[i], want[i])
		}
	}
	assertLevelListInvariants(dst)
}

func TestMergeLevelListSameLevelDemotesSourceHead(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	dst := buildLevelList(t, pool, hh, 5)
	dstHead := dst.head
	dstTail := dstHead.lastChunk

	src := buildLevelList(t, pool, hh, 5)
	srcHead := src.head
	srcChunk2, _ := allocateChunk(pool, srcHead, 64)

	mergeLevelList(dst, src)

	if dst.head != dstHead {
		t.Fatal("merge should keep dst's original head as the surviving head")
	}
	if dstTail.nextChunk != srcHead {
		t.Error("merge did not splice src's chunk chain onto dst's tail")
	}
	if srcHead.IsLevelHead() {
		t.Error("merge should demote src's head to a normal chunk")
	}
	if levelHeadOf(srcHead) != dstHead {
		t.Error("demoted src head's levelHead chain should terminate at the surviving head")
	}
	if dstHead.lastChunk != srcChunk2 {
		t.Error("merge did not update the surviving head's lastChunk")
	}
	assertLevelListInvariants(dst)
}

func TestFreeChunksReleasesAboveMinLevel(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh, 5, 4, 3)
	allocated, _, _ := pool.Stats()
	if allocated != 3 {
		t.Fatalf("pool allocated = %d, want 3", allocated)
	}

	freeChunks(pool, list, 4)

	if lvl, _ := list.HighestLevel(); lvl != 3 {
		t.Errorf("HighestLevel() after freeChunks(minLevel=4) = %d, want 3", lvl)
	}
	allocatedAfter, _, _ := pool.Stats()
	if allocatedAfter != 1 {
		t.Errorf("pool allocated after freeChunks = %d, want 1 (only level 3 survives)", allocatedAfter)
	}
}

func TestPromoteChunksIntoEmptyLevel(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh, 5)
	promoteChunks(list, 5)

	lvl, ok := list.HighestLevel()
	if !ok || lvl != 4 {
		t.Errorf("HighestLevel() after promote = (%d, %v), want (4, true)", lvl, ok)
	}
}

func TestPromoteChunksMergesIntoExistingLevel(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh, 5, 4)
	level4Head := list.head.nextHead

	promoteChunks(list, 5)

	if list.head != level4Head {
		t.Fatal("promote into an existing level-1 head should not create a new head")
	}
	assertLevelListInvariants(list)
}

func TestPromoteTwiceEquivalentToOneTwoStepDemotion(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	listA := buildLevelList(t, pool, hh, 5)
	promoteChunks(listA, 5)
	promoteChunks(listA, 4)
	lvlA, _ := listA.HighestLevel()

	listB := buildLevelList(t, pool, hh, 5)
	promoteChunks(listB, 5)
	lvlB, _ := listB.HighestLevel()
	promoteChunks(listB, lvlB)
	lvlB, _ = listB.HighestLevel()

	if lvlA != lvlB {
		t.Errorf("two-step promotion landed at level %d, single-chain promotion at %d", lvlA, lvlB)
	}
}

func TestUpdateLevelListPointers(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh1 := NewHierarchicalHeap(5)
	hh2 := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh1, 5, 3)
	updateLevelListPointers(list, hh2)

	for c := list.head; c != nil; c = c.nextHead {
		if c.containingHH != hh2 {
			t.Errorf("head at level %d has containingHH %v, want %v", c.level, c.containingHH, hh2)
		}
	}
}

func TestLevelSize(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh, 5)
	head := list.head
	second, _ := allocateChunk(pool, head, 64)

	if got := levelSize(list, 5); got != 0 {
		t.Errorf("levelSize() of untouched chunks = %d, want 0", got)
	}

	updateChunkValues(head, head.Start()+48)
	updateChunkValues(second, second.Start()+16)

	if got := levelSize(list, 5); got != 64 {
		t.Errorf("levelSize() = %d, want 64 (48 + 16 allocated bytes)", got)
	}
	if got := levelSize(list, 9); got != 0 {
		t.Errorf("levelSize() for an absent level = %d, want 0", got)
	}
}

func TestAssertLevelListInvariantsCatchesOutOfOrderLevels(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	list := buildLevelList(t, pool, hh, 5, 3)
	list.head.nextHead.level = 9 // corrupt: no longer strictly descending

	defer func() {
		if recover() == nil {
			t.Error("assertLevelListInvariants should panic on an out-of-order level chain")
		}
	}()
	assertLevelListInvariants(list)
}
