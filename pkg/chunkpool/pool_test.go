// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkpool

import "testing"

func TestAllocateAligned(t *testing.T) {
	p := NewWithAlignment(4096)
	region, ok := p.Allocate(100)
	if !ok {
		t.Fatal("Allocate() returned false")
	}
	if len(region) < 4096 {
		t.Errorf("len(region) = %d, want >= 4096", len(region))
	}
	if addrOf(region)%4096 != 0 {
		t.Errorf("region base %#x is not 4096-aligned", addrOf(region))
	}
}

func TestFreeThenReuse(t *testing.T) {
	p := NewWithAlignment(4096)
	a, _ := p.Allocate(10)
	p.Free(a)

	b, _ := p.Allocate(10)
	if addrOf(a) != addrOf(b) {
		t.Error("Allocate() after Free() should reuse the freed slab")
	}

	allocated, grown, pooled := p.Stats()
	if allocated != 1 || grown != 1 || pooled != 0 {
		t.Errorf("Stats() = (%d,%d,%d), want (1,1,0)", allocated, grown, pooled)
	}
}

func TestFindAndPointerInPool(t *testing.T) {
	p := NewWithAlignment(4096)
	region, _ := p.Allocate(10)
	base := addrOf(region)

	found, ok := p.Find(base + 5)
	if !ok || addrOf(found) != base {
		t.Error("Find() did not return the owning slab")
	}

	if !p.PointerInPool(base) {
		t.Error("PointerInPool() = false for a live address")
	}
	if p.PointerInPool(base + uintptr(len(region)) + 1) {
		t.Error("PointerInPool() = true for an address past the slab")
	}
}

func TestOverHalfAllocated(t *testing.T) {
	p := NewWithAlignment(4096)
	if p.OverHalfAllocated() {
		t.Error("OverHalfAllocated() = true on an empty pool")
	}

	a, _ := p.Allocate(10)
	if !p.OverHalfAllocated() {
		t.Error("OverHalfAllocated() = false with 1/1 slabs checked out")
	}

	b, _ := p.Allocate(10)
	p.Free(a)
	if p.OverHalfAllocated() {
		t.Error("OverHalfAllocated() = true with 1/2 slabs checked out")
	}

	p.Free(b)
	if p.OverHalfAllocated() {
		t.Error("OverHalfAllocated() = true after freeing everything")
	}
}

func TestClearDropsPooledSlabs(t *testing.T) {
	p := NewWithAlignment(4096)
	a, _ := p.Allocate(10)
	b, _ := p.Allocate(10)
	p.Free(b)

	p.Clear()

	allocated, grown, pooled := p.Stats()
	if allocated != 1 || grown != 1 || pooled != 0 {
		t.Errorf("Stats() after Clear() = (%d,%d,%d), want (1,1,0)", allocated, grown, pooled)
	}
	if !p.PointerInPool(addrOf(a)) {
		t.Error("Clear() must not drop live slabs")
	}
	if p.PointerInPool(addrOf(b)) {
		t.Error("Clear() should remove cleared slabs from the address index")
	}
}

func TestMaxPooledSlabsCap(t *testing.T) {
	p := NewWithAlignment(4096)
	var slabs [][]byte
	for i := 0; i < MaxPooledSlabs+10; i++ {
		s, ok := p.Allocate(10)
		if !ok {
			t.Fatalf("Allocate() failed at i=%d", i)
		}
		slabs = append(slabs, s)
	}
	for _, s := range slabs {
		p.Free(s)
	}
	_, _, pooled := p.Stats()
	if pooled != MaxPooledSlabs {
		t.Errorf("pooled = %d, want %d", pooled, MaxPooledSlabs)
	}
}
