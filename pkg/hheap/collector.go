// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the out-of-scope collaborators a local collection
// needs, the tunables of Config, and the accumulated statistics of every
// collection it has run.
type Collector struct {
	Pool      ChunkPool
	ObjModel  ObjectModel
	StackOps  StackOps
	QueueLock QueueLock
	Config    Config

	Stats CollectorStats
}

// NewCollector wires a Collector against its out-of-scope collaborators,
// registering its statistics with reg (nil is accepted, see
// NewCollectorStats). The collector runs in CollectionLevelAll mode until
// Config is overridden by the caller.
func NewCollector(pool ChunkPool, om ObjectModel, sops StackOps, ql QueueLock, reg prometheus.Registerer) *Collector {
	return &Collector{
		Pool: pool, ObjModel: om, StackOps: sops, QueueLock: ql,
		Config: DefaultConfig(),
		Stats:  NewCollectorStats(reg),
	}
}

// deque is the out-of-scope work-stealing deque collaborator: the set of
// not-yet-stolen continuations belonging to the thread running the
// collection, scanned as roots alongside the thread's stack.
type deque interface {
	ForeachObjptrInDeque(forward func(slot *ObjPtr))
}

// CollectionReport summarises a single local collection, for callers
// that export per-pause metrics and for tests asserting survivor counts.
type CollectionReport struct {
	MinLevel, MaxLevel uint32
	ObjectsCopied      int
	StacksCopied       int
	BytesCopied        uintptr
}

// CollectLocal runs a local collection of hh under the scope c.Config
// selects — see minLevelFor. It is a no-op (a zero CollectionReport)
// when Config.CollectionLevel is CollectionLevelNone. It is always
// invoked by the worker that owns hh; there is no "collect someone
// else's heap" entry point.
func (c *Collector) CollectLocal(hh *HierarchicalHeap, dq deque) CollectionReport {
	minLevel, ok := c.minLevelFor(hh)
	if !ok {
		return CollectionReport{}
	}
	return c.collectLocalAt(hh, dq, minLevel)
}

// CollectLocalAt runs a local collection of hh restricted to
// [minLevel, hh.level], bypassing c.Config's mode selection — for a
// caller that has already computed its own scope (e.g. after an
// explicit promote).
func (c *Collector) CollectLocalAt(hh *HierarchicalHeap, dq deque, minLevel uint32) CollectionReport {
	return c.collectLocalAt(hh, dq, minLevel)
}

// collectLocalAt collects every level in [minLevel, hh.level] owned by
// hh: forwards the root set into a fresh per-level to-space spine,
// drains it Cheney-style, frees the collected from-space chunks, and
// merges the to-space back in as the new spine.
//
// Extremely small collections (the common case: a leaf task that
// allocated almost nothing) are not special-cased away — a collection
// that discovers no survivors still does the fixed bookkeeping, but
// copies nothing, so its cost degrades gracefully to "walk the roots and
// find they're all dead or out of range".
func (c *Collector) collectLocalAt(hh *HierarchicalHeap, dq deque, minLevel uint32) CollectionReport {
	start := time.Now()

	reentrant := c.QueueLock.AlreadyLockedByMe()
	if !reentrant {
		c.QueueLock.Lock()
		defer c.QueueLock.Unlock()
	}

	hh.Lock()
	defer hh.Unlock()

	report := CollectionReport{MinLevel: minLevel}

	topLevel, ok := hh.levelList.HighestLevel()
	if !ok || topLevel < minLevel {
		return report
	}
	maxLevel := hh.level
	report.MaxLevel = maxLevel

	cclog.Debugf("[HHEAP]> collecting %s over levels [%d, %d]", hh.Display(), minLevel, maxLevel)

	cur := newToSpaceCursor(c.Pool, &hh.newLevelList)
	currentStack := ObjPtr(0)
	if hh.thread != nil {
		currentStack = hh.thread.CurrentStack()
	}

	var toScan []ObjPtr

	// forward implements the per-slot forwarding algorithm: resolve the
	// slot's chunk and level, walk the top-most collectible replica
	// chain, then either accept an existing to-space copy, follow a
	// forwarding pointer out of the collection range, or copy the
	// object into to-space at its own level.
	forward := func(slot *ObjPtr) {
		op := *slot
		if op == 0 {
			return
		}
		if c.ObjModel.IsObjptrInGlobalHeap(op) {
			return
		}
		chunk, found := findChunkForAddr(c.Pool, c.ObjModel.ObjptrToPointer(op))
		if !found {
			cclog.Abortf("[HHEAP]> pointer %#x is neither in the global heap nor in any pool chunk", uintptr(op))
		}
		lvl := getLevel(chunk)
		if lvl > maxLevel {
			cclog.Abortf("[HHEAP]> entanglement detected: reference to level %d from a collection bounded at level %d (%s)", lvl, maxLevel, hh.Display())
		}
		if lvl < minLevel {
			return
		}

		// Walk the top-most collectible replica chain: forwarding
		// pointers installed by earlier promotions may chain through
		// several in-range replicas before leaving the range.
		for c.ObjModel.HasFwdPtr(op) {
			next := c.ObjModel.FwdPtr(op)
			nextChunk, nextFound := findChunkForAddr(c.Pool, c.ObjModel.ObjptrToPointer(next))
			if !nextFound || getLevel(nextChunk) < minLevel {
				break
			}
			op, chunk, lvl = next, nextChunk, getLevel(nextChunk)
		}

		head := levelHeadOf(chunk)
		switch {
		case isCopyObjectHH(head.containingHH):
			// The replica already lives in to-space; the slot just
			// needs its address.
			*slot = op
		case c.ObjModel.HasFwdPtr(op):
			// Forwarded out of the collection range by an earlier
			// promotion; follow once.
			*slot = c.ObjModel.FwdPtr(op)
		default:
			dst, tag, copySize, copied := copyObject(c.ObjModel, c.StackOps, cur, head, lvl, op, currentStack)
			if !copied {
				if tag == TagWeak || tag == TagHierarchicalHeapHeader {
					cclog.Abortf("[HHEAP]> cannot copy object with tag %d at %#x during local collection of %s", tag, uintptr(op), hh.Display())
				}
				cclog.Abortf("[HHEAP]> chunk pool exhausted while copying during local collection of %s", hh.Display())
			}
			*slot = dst
			toScan = append(toScan, dst)
			report.ObjectsCopied++
			report.BytesCopied += copySize
			if tag == TagStack {
				report.StacksCopied++
			}
		}
	}

	c.forwardRoots(hh, dq, forward)

	// Cheney-style drain: every freshly copied object is scanned in
	// turn, appending whatever it newly forwards, until the to-space
	// scan cursor catches the to-space frontier.
	for i := 0; i < len(toScan); i++ {
		c.ObjModel.ForeachObjptrInObject(toScan[i], nil, forward)
	}

	freeChunks(c.Pool, &hh.levelList, minLevel)
	updateLevelListPointers(&hh.newLevelList, hh)
	mergeLevelList(&hh.levelList, &hh.newLevelList)
	updateValues(hh)

	hh.recomputeLocallyCollectibleSize()

	pause := time.Since(start)
	c.Stats.record(maxLevel-minLevel+1, report, pause)
	cclog.Debugf("[HHEAP]> collected %s: %d objects (%d stacks), %d bytes in %s",
		hh.Display(), report.ObjectsCopied, report.StacksCopied, report.BytesCopied, pause)

	return report
}

// forwardRoots visits every root the mutator could still reach through
// hh, in order: the thread record's own slots (the current-stack slot
// among them, so the thread resumes on the copied stack), the thread
// object itself when the embedding allocates thread records in the heap,
// its not-yet-stolen deque entries, and its pending return value, each
// updated in place.
func (c *Collector) forwardRoots(hh *HierarchicalHeap, dq deque, forward func(slot *ObjPtr)) {
	if hh.thread != nil {
		hh.thread.ForeachObjptrInThread(forward)
	}
	if hh.threadObjPtr != 0 {
		forward(&hh.threadObjPtr)
	}
	if dq != nil {
		dq.ForeachObjptrInDeque(forward)
	}
	if hh.retVal != 0 {
		forward(&hh.retVal)
	}
}
