// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import "unsafe"

// defaultChunkAllocableSize is the allocable-byte request made for a
// fresh to-space chunk when no single object forces a larger request.
// Chosen well under chunkpool.Alignment so that a fresh to-space chunk,
// header included, fits the pool's default slab size without forcing an
// oversized allocation for the common case.
const defaultChunkAllocableSize = 256 * 1024

// toSpaceCursor is a bump allocator over a collection's
// under-construction to-space spine. Objects keep their level across the
// copy: an object found at level L is copied into the to-space head for
// level L, created lazily on first use and spliced into list at its
// ordered position. Each from-space level head caches a pointer to its
// to-space counterpart (toSpaceHead) so the per-object lookup is O(1)
// after the first copy at that level. To-space heads carry the
// copyObjectHH sentinel as their containingHH until the collection
// finishes and updateLevelListPointers retags them.
type toSpaceCursor struct {
	pool ChunkPool
	list *LevelList
}

// newToSpaceCursor starts an empty to-space spine growing into list.
func newToSpaceCursor(pool ChunkPool, list *LevelList) *toSpaceCursor {
	return &toSpaceCursor{pool: pool, list: list}
}

// allocate reserves size contiguous bytes in the to-space list for
// level, consulting fromHead's cached to-space head first and creating
// it if this is the first survivor at that level. Objects are never
// split across two chunks: a request too big for the default chunk size
// gets a chunk sized exactly to it instead.
func (cur *toSpaceCursor) allocate(fromHead *Chunk, level uint32, size uintptr) (uintptr, bool) {
	size = alignUp(size, ObjectAlignment)
	want := uintptr(defaultChunkAllocableSize)
	if size > want {
		want = size
	}

	head := fromHead.toSpaceHead
	if head == nil {
		var ok bool
		head, ok = allocateLevelHeadChunk(cur.pool, &cur.list.head, want, level, copyObjectHH)
		if !ok {
			return 0, false
		}
		fromHead.toSpaceHead = head
	}

	tail := head.lastChunk
	if tail.bytesRemaining() < size {
		var ok bool
		tail, ok = allocateChunk(cur.pool, head, want)
		if !ok {
			return 0, false
		}
	}

	addr := tail.Frontier()
	updateChunkValues(tail, addr+size)
	return addr, true
}

// computeObjectCopyParameters inspects the header at src and returns the
// metadata size (for arrays, whatever length prefix the object model
// counts as metadata), body size, and copy size, along with the tag. The
// copy size is metadata plus body, except for stacks, where it is
// metadata plus the stack struct plus the used prefix only. For stacks,
// whether src is the stack currently running on the worker performing
// the copy decides whether its reserved size is shrunk first.
func computeObjectCopyParameters(om ObjectModel, stk StackOps, src ObjPtr, currentStack ObjPtr) (tag Tag, metaDataSize, objectSize, copySize uintptr) {
	h := om.Header(src)
	var nonPtrBytes, ptrCount uint32
	tag, nonPtrBytes, ptrCount = om.SplitHeader(h)
	metaDataSize = om.MetadataSize(tag)

	switch tag {
	case TagArray:
		length := om.ArrayLength(src)
		objectSize = om.SizeofArrayNoMetaData(length, nonPtrBytes, ptrCount)
		copySize = metaDataSize + objectSize
	case TagStack:
		isCurrent := stk.IsCurrentStack(src) || src == currentStack
		reserved := stk.ShrinkReserved(src, isCurrent)
		if isCurrent {
			stk.SetStackReserved(src, reserved)
		}
		objectSize = stk.StackStructSize() + reserved
		// The slack between used and reserved is capacity for future
		// stack growth; only the live prefix needs to move.
		copySize = metaDataSize + stk.StackStructSize() + stk.StackUsed(src)
	default:
		objectSize = uintptr(nonPtrBytes) + uintptr(ptrCount)*OBJPTR_SIZE
		copySize = metaDataSize + objectSize
	}

	return tag, metaDataSize, objectSize, copySize
}

// copyObject copies the object at src into to-space at its own level,
// reserving metadata plus objectSize bytes but moving only copySize (for
// stacks, the reserved slack beyond the used prefix is left uncopied), and
// installs a forwarding pointer at src. src must not already be
// forwarded — the collector's forwarding pass resolves forwarding
// pointers before deciding to copy.
//
// Weak references and hierarchical-heap headers are refused: ok=false
// with the offending tag, for the caller to abort on.
func copyObject(om ObjectModel, stk StackOps, cur *toSpaceCursor, fromHead *Chunk, level uint32, src ObjPtr, currentStack ObjPtr) (dst ObjPtr, tag Tag, copySize uintptr, ok bool) {
	var metaDataSize, objectSize uintptr
	tag, metaDataSize, objectSize, copySize = computeObjectCopyParameters(om, stk, src, currentStack)
	if tag == TagWeak || tag == TagHierarchicalHeapHeader {
		return 0, tag, 0, false
	}

	dstAddr, allocated := cur.allocate(fromHead, level, metaDataSize+objectSize)
	if !allocated {
		return 0, tag, 0, false
	}

	srcAddr := om.ObjptrToPointer(src) - metaDataSize
	copyBytes(dstAddr, srcAddr, copySize)

	dst = om.PointerToObjptr(dstAddr + metaDataSize)
	om.SetFwdPtr(src, dst)

	if tag == TagStack {
		stk.SetStackReserved(dst, objectSize-stk.StackStructSize())
	}

	return dst, tag, copySize, true
}

// copyBytes performs the raw byte copy underlying copyObject. Both
// addresses are known, already-validated offsets inside live chunk slabs
// (the destination from an allocation this package just made, the source
// from the object model's own accessors), so the unsafe.Slice view is
// scoped tightly to this one call and never escapes it.
func copyBytes(dstAddr, srcAddr, n uintptr) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(dstAddr)), n)
	src := unsafe.Slice((*byte)(unsafe.Pointer(srcAddr)), n)
	copy(dst, src)
}
