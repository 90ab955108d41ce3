// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// ObjPtr is an opaque reference to a heap object, as understood by the
// embedding runtime's object model. The collector never interprets the
// bits of an ObjPtr itself except through the ObjectModel interface below.
type ObjPtr = uintptr

// Tag identifies the layout class of an object, read from its header word.
type Tag int

const (
	// TagNormal is a fixed-layout object: a run of non-pointer bytes
	// followed by a run of object pointers.
	TagNormal Tag = iota
	// TagArray is a variable-length array of fixed-layout elements.
	TagArray
	// TagStack is a continuation stack.
	TagStack
	// TagWeak is a weak reference. The collector refuses to copy these.
	TagWeak
	// TagHierarchicalHeapHeader marks an HH object itself, which must
	// live in the global heap and is never copied by this collector.
	TagHierarchicalHeapHeader
)

// Header is the raw header word read from an object, before it has been
// split into a tag and field counts.
type Header uint64

// OBJPTR_SIZE is the width, in bytes, of a single ObjPtr as stored
// inside an object.
const OBJPTR_SIZE = 8

// ObjectModel is the out-of-scope collaborator that knows how to decode
// object headers, walk an object's pointer fields, and install/read
// forwarding pointers. The collector core never invents its own encoding
// for any of this; it is entirely delegated here.
type ObjectModel interface {
	// Header returns the raw header word of the object at p.
	Header(p ObjPtr) Header

	// SplitHeader decodes a header word into its tag and, for
	// fixed-layout objects, the non-pointer byte count and pointer
	// count that make up the object body.
	SplitHeader(h Header) (tag Tag, nonPtrBytes uint32, ptrCount uint32)

	// SizeofArrayNoMetaData computes the body size (excluding the array
	// header) of an array of the given length whose elements have the
	// given non-pointer-byte and pointer-field layout.
	SizeofArrayNoMetaData(length int, nonPtrBytes, ptrCount uint32) uintptr

	// ArrayLength returns the element count of the array at p.
	ArrayLength(p ObjPtr) int

	// MetadataSize returns the fixed header size in bytes for the
	// given tag.
	MetadataSize(tag Tag) uintptr

	// HasFwdPtr reports whether the object at p has already been
	// forwarded (its header word has been overlaid with a tagged
	// pointer, per the object model's forwarding convention).
	HasFwdPtr(p ObjPtr) bool

	// FwdPtr returns the forwarding target previously installed by
	// SetFwdPtr. Calling this when HasFwdPtr is false is a programming
	// error.
	FwdPtr(p ObjPtr) ObjPtr

	// SetFwdPtr overlays the header word of the object at p with a
	// tagged pointer to its new location, per the object model's
	// forwarding convention.
	SetFwdPtr(p ObjPtr, to ObjPtr)

	// ForeachObjptrInObject invokes forward once per object-pointer
	// slot within the object at p. If skip is non-nil and returns true
	// for a given slot value, that slot is left untouched. The drain
	// phase (collector.go) passes a nil skip: every copied object,
	// stacks included, has its slots scanned there.
	ForeachObjptrInObject(p ObjPtr, skip func(ObjPtr) bool, forward func(slot *ObjPtr))

	// IsObjptrInGlobalHeap reports whether op refers to an object in the
	// shared (global) heap rather than any hierarchical heap. Such
	// pointers are never in scope for local collection.
	IsObjptrInGlobalHeap(op ObjPtr) bool

	// PointerToObjptr / ObjptrToPointer convert between a raw address
	// and the runtime's tagged object-pointer representation. For many
	// object models these are the identity function.
	PointerToObjptr(p uintptr) ObjPtr
	ObjptrToPointer(op ObjPtr) uintptr
}

// StackOps is the out-of-scope "stack utilities" collaborator.
type StackOps interface {
	// IsCurrentStack reports whether stack is the stack currently
	// executing on the calling worker.
	IsCurrentStack(stack ObjPtr) bool

	// ShrinkReserved computes the reserved size a stack object should be
	// copied with, potentially smaller than its current reserved size
	// when the stack is the one currently running (isCurrent) and has
	// shrunk since it was last resized.
	ShrinkReserved(stack ObjPtr, isCurrent bool) uintptr

	// StackUsed/StackReserved/StackStructSize expose the fields of a
	// stack object the copier needs in order to compute copy parameters.
	StackUsed(stack ObjPtr) uintptr
	StackReserved(stack ObjPtr) uintptr
	SetStackReserved(stack ObjPtr, reserved uintptr)
	StackStructSize() uintptr
}

// ChunkPool is the out-of-scope "chunk pool" collaborator. Package
// chunkpool provides one concrete, in-memory implementation; any
// allocator satisfying this interface can be substituted.
type ChunkPool interface {
	// Allocate returns a slab of at least minAllocable usable bytes,
	// aligned to Alignment(), or ok=false if the pool is exhausted.
	Allocate(minAllocable uintptr) (slab []byte, ok bool)

	// Free releases a slab previously returned by Allocate.
	Free(slab []byte)

	// Find returns the slab containing the byte at addr, if any.
	Find(addr uintptr) (slab []byte, ok bool)

	// OverHalfAllocated reports whether the pool is under enough
	// pressure that a collection should be attempted before growing.
	OverHalfAllocated() bool

	// PointerInPool reports whether addr falls within any slab this
	// pool has ever handed out.
	PointerInPool(addr uintptr) bool

	// Alignment returns the pool's natural slab alignment.
	Alignment() uintptr
}

// QueueLock is the out-of-scope work-stealing-queue lock. A local
// collection takes this lock for its duration to freeze steals.
type QueueLock interface {
	Lock()
	Unlock()
	// AlreadyLockedByMe reports whether the calling goroutine already
	// holds this lock, so CollectLocal can detect reentry from within
	// a scheduler critical section and avoid double-acquiring.
	AlreadyLockedByMe() bool
}
