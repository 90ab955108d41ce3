// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package testobj

import "github.com/parheap/parheap/pkg/hheap"

// NewNormal bump-allocates a fixed-layout object of nonPtrBytes
// non-pointer bytes followed by ptrCount zeroed pointer fields into hh,
// via c. The pointer fields are zeroed explicitly, since the chunk pool
// hands out reused slabs without clearing them.
func NewNormal(c *hheap.Collector, hh *hheap.HierarchicalHeap, dq interface {
	ForeachObjptrInDeque(func(*hheap.ObjPtr))
}, nonPtrBytes, ptrCount uint32) (hheap.ObjPtr, error) {
	bodySize := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
	addr, err := c.Allocate(hh, dq, headerSize+bodySize)
	if err != nil {
		return 0, err
	}
	writeU64(addr, uint64(packHeader(hheap.TagNormal, nonPtrBytes, ptrCount)))
	p := hheap.ObjPtr(addr + headerSize)
	for i := 0; i < int(ptrCount); i++ {
		SetPointerField(p, nonPtrBytes, i, 0)
	}
	return p, nil
}

// SetPointerField writes idx's pointer field of a normal object allocated
// via NewNormal with the given nonPtrBytes.
func SetPointerField(p hheap.ObjPtr, nonPtrBytes uint32, idx int, val hheap.ObjPtr) {
	writeU64(uintptr(p)+uintptr(nonPtrBytes)+uintptr(idx)*hheap.OBJPTR_SIZE, uint64(val))
}

// PointerField reads back idx's pointer field, following whatever
// forwarding the most recent collection installed.
func PointerField(p hheap.ObjPtr, nonPtrBytes uint32, idx int) hheap.ObjPtr {
	return hheap.ObjPtr(readU64(uintptr(p) + uintptr(nonPtrBytes) + uintptr(idx)*hheap.OBJPTR_SIZE))
}

// NewArray bump-allocates an array of length elements, each laid out as
// nonPtrBytes non-pointer bytes followed by ptrCount zeroed pointer
// fields.
func NewArray(c *hheap.Collector, hh *hheap.HierarchicalHeap, dq interface {
	ForeachObjptrInDeque(func(*hheap.ObjPtr))
}, length int, nonPtrBytes, ptrCount uint32) (hheap.ObjPtr, error) {
	elemSize := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
	bodySize := uintptr(length) * elemSize
	addr, err := c.Allocate(hh, dq, arrayLengthSize+headerSize+bodySize)
	if err != nil {
		return 0, err
	}
	writeU64(addr, uint64(length))
	writeU64(addr+arrayLengthSize, uint64(packHeader(hheap.TagArray, nonPtrBytes, ptrCount)))
	p := hheap.ObjPtr(addr + arrayLengthSize + headerSize)
	for e := 0; e < length; e++ {
		for i := 0; i < int(ptrCount); i++ {
			SetArrayPointerField(p, nonPtrBytes, ptrCount, e, i, 0)
		}
	}
	return p, nil
}

// SetArrayPointerField writes element elemIdx's ptrIdx'th pointer field.
func SetArrayPointerField(p hheap.ObjPtr, nonPtrBytes, ptrCount uint32, elemIdx, ptrIdx int, val hheap.ObjPtr) {
	elemSize := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
	addr := uintptr(p) + uintptr(elemIdx)*elemSize + uintptr(nonPtrBytes) + uintptr(ptrIdx)*hheap.OBJPTR_SIZE
	writeU64(addr, uint64(val))
}

// ArrayPointerField reads back element elemIdx's ptrIdx'th pointer field.
func ArrayPointerField(p hheap.ObjPtr, nonPtrBytes, ptrCount uint32, elemIdx, ptrIdx int) hheap.ObjPtr {
	elemSize := uintptr(nonPtrBytes) + uintptr(ptrCount)*hheap.OBJPTR_SIZE
	addr := uintptr(p) + uintptr(elemIdx)*elemSize + uintptr(nonPtrBytes) + uintptr(ptrIdx)*hheap.OBJPTR_SIZE
	return hheap.ObjPtr(readU64(addr))
}

// NewStack bump-allocates a stack object with reserved bytes of pointer-slot
// capacity and zero bytes currently used.
func NewStack(c *hheap.Collector, hh *hheap.HierarchicalHeap, dq interface {
	ForeachObjptrInDeque(func(*hheap.ObjPtr))
}, reserved uintptr) (hheap.ObjPtr, error) {
	addr, err := c.Allocate(hh, dq, headerSize+stackFieldsSize+reserved)
	if err != nil {
		return 0, err
	}
	writeU64(addr, uint64(packHeader(hheap.TagStack, 0, 0)))
	p := hheap.ObjPtr(addr + headerSize)
	writeU64(uintptr(p), 0)
	writeU64(uintptr(p)+8, uint64(reserved))
	return p, nil
}
