// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// CollectionLevel selects how much of a task's private range a call to
// Collector.CollectLocal is allowed to touch.
type CollectionLevel int

const (
	// CollectionLevelNone disables local collection entirely: CollectLocal
	// becomes a no-op. Useful for isolating allocation-only benchmarks and
	// for comparing against a baseline with collection turned off.
	CollectionLevelNone CollectionLevel = iota
	// CollectionLevelSuperlocal restricts every collection to exactly the
	// task's current level (minLevel == maxLevel == hh.level) — the
	// cheapest collection that can still reclaim the current frame's own
	// garbage, never walking into levels shared with an ancestor task.
	CollectionLevelSuperlocal
	// CollectionLevelAll is the default: a collection covers every private
	// level, [max(stealLevel+1, FloorLevel), hh.level].
	CollectionLevelAll
)

// Config groups the collector-wide tunables, as one flat struct with
// documented defaults rather than a package of loose global vars.
type Config struct {
	// CollectionLevel selects the collection mode above. Zero value is
	// CollectionLevelNone; callers that want collection must set this
	// explicitly, matching Go's usual "zero value is the safe default"
	// convention — NewCollector sets CollectionLevelAll for callers that
	// don't override it.
	CollectionLevel CollectionLevel

	// FloorLevel is the shallowest level a collection is ever allowed to
	// reach down to, regardless of StealLevel — a deployment-wide knob for
	// keeping a few outermost levels permanently off-limits to local
	// collection (they are expected to be collected only by a join-time
	// merge into an ancestor, or never, if they are the process's root
	// task). Defaults to zero (no floor).
	FloorLevel uint32
}

// DefaultConfig returns the Config a fresh Collector uses when none is
// supplied: full private-range collection, no configured floor.
func DefaultConfig() Config {
	return Config{CollectionLevel: CollectionLevelAll}
}

// minLevelFor computes the collection-scope minLevel for hh under c's
// configured mode, and reports ok=false when collection is disabled
// outright.
func (c *Collector) minLevelFor(hh *HierarchicalHeap) (minLevel uint32, ok bool) {
	switch c.Config.CollectionLevel {
	case CollectionLevelNone:
		return 0, false
	case CollectionLevelSuperlocal:
		return hh.level, true
	default:
		minLevel = c.Config.FloorLevel
		if low := hh.lowestPrivateLevel(); low > minLevel {
			minLevel = low
		}
		return minLevel, true
	}
}
