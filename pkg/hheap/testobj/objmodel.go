// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package testobj is a minimal, in-process object model filling the
// "object model" / "stack utilities" collaborator roles package hheap
// leaves external. It exists only to let pkg/hheap's tests and
// cmd/hhsim drive the collector through realistic allocation, root
// scanning, and forwarding without pulling in a real compiler-generated
// object layout.
//
// Objects live directly inside the chunk-pool memory hheap.Collector
// already manages: a normal object is an 8-byte packed header word
// followed by its non-pointer bytes and then its pointer fields; an array
// additionally carries an 8-byte length ahead of the header; a stack
// carries its used/reserved byte counts ahead of a flat run of pointer
// slots. None of this encoding matters to the collector core — a real
// object model's layout is entirely its own business, and so is this
// one's.
package testobj

import (
	"sync"
	"unsafe"

	"github.com/parheap/parheap/pkg/hheap"
)

const (
	headerSize      = 8
	arrayLengthSize = 8
	stackFieldsSize = 16 // used + reserved, each 8 bytes
	minStackReserve = 64
)

const fwdBit = uint64(1) << 63

func readU64(addr uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(addr))
}

func writeU64(addr uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(addr)) = v
}

func packHeader(tag hheap.Tag, nonPtrBytes, ptrCount uint32) hheap.Header {
	return hheap.Header(uint64(tag&0x7) | uint64(nonPtrBytes&0xFFFF)<<3 | uint64(ptrCount&0xFFFF)<<19)
}

func unpackHeader(h hheap.Header) (tag hheap.Tag, nonPtrBytes, ptrCount uint32) {
	v := uint64(h)
	tag = hheap.Tag(v & 0x7)
	nonPtrBytes = uint32((v >> 3) & 0xFFFF)
	ptrCount = uint32((v >> 19) & 0xFFFF)
	return
}

// GlobalHeap is a trivial stand-in for the shared (non-hierarchical)
// heap: plain Go allocations outside any chunk pool, so tests can
// exercise ObjectModel.IsObjptrInGlobalHeap's early-out.
type GlobalHeap struct {
	mu   sync.Mutex
	bufs [][]byte
}

// NewGlobalHeap returns an empty global heap.
func NewGlobalHeap() *GlobalHeap {
	return &GlobalHeap{}
}

// Alloc returns size bytes of global-heap storage, never touched by any
// hierarchical collection.
func (g *GlobalHeap) Alloc(size uintptr) hheap.ObjPtr {
	b := make([]byte, size)
	g.mu.Lock()
	g.bufs = append(g.bufs, b)
	g.mu.Unlock()
	return hheap.ObjPtr(addrOf(b))
}

// Contains reports whether addr falls within any buffer this heap has
// handed out.
func (g *GlobalHeap) Contains(addr uintptr) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range g.bufs {
		base := addrOf(b)
		if addr >= base && addr < base+uintptr(len(b)) {
			return true
		}
	}
	return false
}

func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// ObjectModel implements hheap.ObjectModel over the packed layout
// documented above. The zero value is usable; Global may be set to route
// IsObjptrInGlobalHeap at a particular GlobalHeap instance, and is
// otherwise treated as "no global heap configured" (every object is
// hierarchical-heap-local).
type ObjectModel struct {
	Global *GlobalHeap
}

func (ObjectModel) Header(p hheap.ObjPtr) hheap.Header {
	return hheap.Header(readU64(uintptr(p) - headerSize))
}

func (ObjectModel) SplitHeader(h hheap.Header) (tag hheap.Tag, nonPtrBytes, ptrCount uint32) {
	return unpackHeader(h)
}

func (ObjectModel) SizeofArrayNoMetaData(length int, nonPtrBytes, ptrCount uint32) uintptr {
	elem := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
	return uintptr(length) * elem
}

func (ObjectModel) ArrayLength(p hheap.ObjPtr) int {
	return int(readU64(uintptr(p) - headerSize - arrayLengthSize))
}

func (ObjectModel) MetadataSize(tag hheap.Tag) uintptr {
	if tag == hheap.TagArray {
		return headerSize + arrayLengthSize
	}
	return headerSize
}

func (ObjectModel) HasFwdPtr(p hheap.ObjPtr) bool {
	return readU64(uintptr(p)-headerSize)&fwdBit != 0
}

func (ObjectModel) FwdPtr(p hheap.ObjPtr) hheap.ObjPtr {
	return hheap.ObjPtr(readU64(uintptr(p)-headerSize) &^ fwdBit)
}

func (ObjectModel) SetFwdPtr(p hheap.ObjPtr, to hheap.ObjPtr) {
	writeU64(uintptr(p)-headerSize, uint64(to)|fwdBit)
}

func (m ObjectModel) ForeachObjptrInObject(p hheap.ObjPtr, skip func(hheap.ObjPtr) bool, forward func(*hheap.ObjPtr)) {
	tag, nonPtrBytes, ptrCount := m.SplitHeader(m.Header(p))

	visit := func(base uintptr, n uint32) {
		for j := uint32(0); j < n; j++ {
			slot := (*hheap.ObjPtr)(unsafe.Pointer(base + uintptr(j)*hheap.OBJPTR_SIZE))
			if skip != nil && skip(*slot) {
				continue
			}
			forward(slot)
		}
	}

	switch tag {
	case hheap.TagArray:
		length := m.ArrayLength(p)
		elemSize := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
		for i := 0; i < length; i++ {
			visit(uintptr(p)+uintptr(i)*elemSize+uintptr(nonPtrBytes), ptrCount)
		}
	case hheap.TagStack:
		used := readU64(uintptr(p))
		visit(uintptr(p)+stackFieldsSize, uint32(used/hheap.OBJPTR_SIZE))
	default:
		visit(uintptr(p)+uintptr(nonPtrBytes), ptrCount)
	}
}

func (m ObjectModel) IsObjptrInGlobalHeap(op hheap.ObjPtr) bool {
	if m.Global == nil {
		return false
	}
	return m.Global.Contains(uintptr(op))
}

func (ObjectModel) PointerToObjptr(p uintptr) hheap.ObjPtr {
	return hheap.ObjPtr(p)
}

func (ObjectModel) ObjptrToPointer(op hheap.ObjPtr) uintptr {
	return uintptr(op)
}

// StackOps implements hheap.StackOps over the same stack layout: an
// 8-byte used count and an 8-byte reserved count ahead of a flat run of
// pointer-sized slots.
type StackOps struct{}

// IsCurrentStack always reports false: this object model has no
// per-goroutine "currently running stack" register of its own, and
// relies entirely on the explicit currentStack comparison copier.go
// already performs alongside this call.
func (StackOps) IsCurrentStack(hheap.ObjPtr) bool {
	return false
}

// ShrinkReserved halves unused slack for the currently running stack
// (reserved capacity decays toward roughly twice what's actually used,
// floored at minStackReserve), and otherwise leaves reserved untouched —
// a stack that is not currently running is never resized.
func (StackOps) ShrinkReserved(stack hheap.ObjPtr, isCurrent bool) uintptr {
	reserved := readU64(uintptr(stack) + 8)
	if !isCurrent {
		return uintptr(reserved)
	}
	used := readU64(uintptr(stack))
	want := used * 2
	if want < minStackReserve {
		want = minStackReserve
	}
	if want > reserved {
		want = reserved
	}
	return uintptr(want)
}

func (StackOps) StackUsed(stack hheap.ObjPtr) uintptr {
	return uintptr(readU64(uintptr(stack)))
}

func (StackOps) StackReserved(stack hheap.ObjPtr) uintptr {
	return uintptr(readU64(uintptr(stack) + 8))
}

func (StackOps) SetStackReserved(stack hheap.ObjPtr, reserved uintptr) {
	writeU64(uintptr(stack)+8, uint64(reserved))
}

func (StackOps) StackStructSize() uintptr {
	return stackFieldsSize
}

// SetStackUsed records how many bytes of stack.'s flat pointer-slot run
// are live, for tests that build a stack and then mark some slots dead by
// shrinking used below their offset.
func SetStackUsed(stack hheap.ObjPtr, used uintptr) {
	writeU64(uintptr(stack), uint64(used))
}

// SetStackSlot writes idx's pointer slot (0-based, counted in OBJPTR_SIZE
// units from the start of the stack's data region) to val.
func SetStackSlot(stack hheap.ObjPtr, idx int, val hheap.ObjPtr) {
	writeU64(uintptr(stack)+stackFieldsSize+uintptr(idx)*hheap.OBJPTR_SIZE, uint64(val))
}

// StackSlot reads back idx's pointer slot.
func StackSlot(stack hheap.ObjPtr, idx int) hheap.ObjPtr {
	return hheap.ObjPtr(readU64(uintptr(stack) + stackFieldsSize + uintptr(idx)*hheap.OBJPTR_SIZE))
}

// Thread is a minimal hheap.Thread implementation: a fixed set of root
// slots plus whichever stack is currently considered "running".
type Thread struct {
	mu    sync.Mutex
	roots []hheap.ObjPtr
	stack hheap.ObjPtr
}

// NewThread returns a thread with no roots and no current stack.
func NewThread() *Thread {
	return &Thread{}
}

func (t *Thread) ForeachObjptrInThread(forward func(slot *hheap.ObjPtr)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.roots {
		forward(&t.roots[i])
	}
	if t.stack != 0 {
		forward(&t.stack)
	}
}

func (t *Thread) CurrentStack() hheap.ObjPtr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// SetCurrentStack records which stack object this thread is now running
// on, so the collector's computeObjectCopyParameters can special-case it.
func (t *Thread) SetCurrentStack(stack hheap.ObjPtr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stack = stack
}

// AddRoot appends a new root slot to the thread's own (non-stack) roots.
func (t *Thread) AddRoot(op hheap.ObjPtr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = append(t.roots, op)
}

// Root returns the current value of root slot i, following whatever
// forwarding the most recent collection installed.
func (t *Thread) Root(i int) hheap.ObjPtr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roots[i]
}

// Deque is a minimal work-stealing-deque stand-in satisfying the
// unexported deque interface collector.go scans as a root set: whatever
// not-yet-stolen continuations the owning worker still holds.
type Deque struct {
	mu    sync.Mutex
	items []hheap.ObjPtr
}

// NewDeque returns an empty deque.
func NewDeque() *Deque {
	return &Deque{}
}

func (d *Deque) ForeachObjptrInDeque(forward func(slot *hheap.ObjPtr)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		forward(&d.items[i])
	}
}

// Push adds op to the deque as a not-yet-stolen continuation.
func (d *Deque) Push(op hheap.ObjPtr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, op)
}

// Len reports how many entries the deque currently holds.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// At returns the current value of entry i, following whatever forwarding
// the most recent collection installed.
func (d *Deque) At(i int) hheap.ObjPtr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items[i]
}
