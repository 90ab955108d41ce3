// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"testing"

	"github.com/parheap/parheap/pkg/chunkpool"
)

func TestAllocateLevelHeadChunkOrdering(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(5)

	var list LevelList
	if _, ok := allocateLevelHeadChunk(pool, &list.head, 64, 5, hh); !ok {
		t.Fatal("allocateLevelHeadChunk(level 5) failed")
	}
	if _, ok := allocateLevelHeadChunk(pool, &list.head, 64, 3, hh); !ok {
		t.Fatal("allocateLevelHeadChunk(level 3) failed")
	}
	if _, ok := allocateLevelHeadChunk(pool, &list.head, 64, 4, hh); !ok {
		t.Fatal("allocateLevelHeadChunk(level 4) failed")
	}

	var levels []uint32
	for c := list.head; c != nil; c = c.nextHead {
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
}

func TestAllocateChunkAppendsToLastChunk(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(1)

	var list LevelList
	head, ok := allocateLevelHeadChunk(pool, &list.head, 64, 1, hh)
	if !ok {
		t.Fatal("allocateLevelHeadChunk failed")
	}

	second, ok := allocateChunk(pool, head, 64)
	if !ok {
		t.Fatal("allocateChunk failed")
	}
	if head.nextChunk != second {
		t.Error("allocateChunk did not link the new chunk after the head")
	}
	if head.lastChunk != second {
		t.Error("allocateChunk did not update the head's lastChunk")
	}
	if levelHeadOf(second) != head {
		t.Error("levelHeadOf(second) did not resolve back to head")
	}
	if getLevel(second) != 1 {
		t.Errorf("getLevel(second) = %d, want 1", getLevel(second))
	}
}

func TestChunkStartFrontierLimitInvariant(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(0)

	var list LevelList
	c, ok := allocateLevelHeadChunk(pool, &list.head, 128, 0, hh)
	if !ok {
		t.Fatal("allocateLevelHeadChunk failed")
	}

	if c.Start() > c.Frontier() {
		t.Errorf("Start() = %#x > Frontier() = %#x", c.Start(), c.Frontier())
	}
	if c.Frontier() > c.Limit() {
		t.Errorf("Frontier() = %#x > Limit() = %#x", c.Frontier(), c.Limit())
	}
	if c.Start()%ObjectAlignment != 0 {
		t.Errorf("Start() = %#x is not %d-byte aligned", c.Start(), ObjectAlignment)
	}
}

func TestIsLevelHead(t *testing.T) {
	pool := chunkpool.NewWithAlignment(4096)
	hh := NewHierarchicalHeap(2)

	var list LevelList
	head, _ := allocateLevelHeadChunk(pool, &list.head, 64, 2, hh)
	normal, _ := allocateChunk(pool, head, 64)

	if !head.IsLevelHead() {
		t.Error("head.IsLevelHead() = false, want true")
	}
	if normal.IsLevelHead() {
		t.Error("normal.IsLevelHead() = true, want false")
	}
}

func TestAllocateChunkPoolExhausted(t *testing.T) {
	pool := &exhaustedPool{}
	hh := NewHierarchicalHeap(0)

	var list LevelList
	_, ok := allocateLevelHeadChunk(pool, &list.head, 64, 0, hh)
	if ok {
		t.Error("allocateLevelHeadChunk should fail once the pool reports exhaustion")
	}
}
