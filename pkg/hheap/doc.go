// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hheap implements the core of a hierarchical, per-task copying
// garbage collector for a parallel, work-stealing functional runtime.
//
// # Overview
//
// The collector partitions the heap by dynamic task structure: each
// running task owns a HierarchicalHeap (HH) whose storage is organised
// into numbered levels corresponding to nesting depth in a parallel
// fork/join call tree. Local garbage collection is performed privately by
// a worker over only the levels it still exclusively owns; values escape
// to higher (older, shallower) levels by promotion.
//
// Component layout, leaves first:
//
//   - Chunk (chunk.go): a fixed-alignment memory slab with a packed
//     header; the bump-allocation primitive.
//   - Level list (levellist.go): a heap's spine of per-level chunk lists,
//     ordered by descending level; merge, free, promote, iterate.
//   - HierarchicalHeap (heap.go): the task-local heap object — current
//     level, level list, parent/child links, lock, frontier/limit cache,
//     statistics.
//   - Object copier (copier.go): per-object size/metadata computation and
//     bump-copy into a target chunk list, installing forwarding pointers.
//   - Local collector (collector.go): orchestrates root discovery,
//     recursive forwarding over the level list, reclamation, and merge.
//   - Lifecycle API (lifecycle.go): append-child, merge-into-parent,
//     promote, extend, set-level — the entry points a mutator calls at
//     fork/join points.
//
// Explicitly out of scope: the object-model details (header decoding,
// stack shrinking — see ObjectModel and StackOps), the work-stealing
// scheduler (see QueueLock), the global (shared) heap and its collector,
// the trace/log subsystem beyond cclog, the rusage-style statistics
// sampler, the mutator allocator fast path, and the low-level chunk pool
// allocator (see ChunkPool; package chunkpool supplies one concrete,
// testable implementation).
//
// Non-goals: a generational or concurrent-marking collector; compaction
// across tasks; weak-reference processing (weak objects are refused);
// cross-task remembered sets (writes across level boundaries are handled
// by promotion, not by a write barrier maintained here).
package hheap
