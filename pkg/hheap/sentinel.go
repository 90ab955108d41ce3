// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// invalidLevel is the sentinel carried in a chunk's level field when the
// chunk is not a level head; the level must instead be found by walking
// the chunk's levelHead chain.
const invalidLevel uint32 = ^uint32(0)

// copyObjectHH is the distinguished, process-wide sentinel installed as a
// level-head's containingHH while that level is under construction as
// to-space during a local collection. It is never
// dereferenced as a real *HierarchicalHeap — only compared by identity —
// so a single unexported package-level value, rather than a real heap,
// is sufficient and keeps the "is this to-space?" check a single pointer
// comparison.
var copyObjectHH = &HierarchicalHeap{debugName: "<copy-object-hh-sentinel>"}

func isCopyObjectHH(hh *HierarchicalHeap) bool {
	return hh == copyObjectHH
}
