// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// PopulateGlobalHeapHoles is a deliberate poison pill. Backfilling
// unused chunk tails with filler objects would only matter if a
// global-heap collector had to walk chunk-pool memory; this package
// never shares chunks with one — ChunkPool-backed slabs are private to
// hierarchical heaps — so no caller should ever need this, and none
// does. It exists only so that a scheduler integration that goes
// looking for the hook finds an explicit "not applicable here" instead
// of silence.
func PopulateGlobalHeapHoles(*HierarchicalHeap) error {
	return ErrUnimplemented
}
