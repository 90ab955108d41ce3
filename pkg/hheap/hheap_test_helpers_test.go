// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

// exhaustedPool is a ChunkPool that always reports exhaustion, used to
// exercise the out-of-chunk-pool paths without having to coax a real
// pool into actually running out of address space.
type exhaustedPool struct{}

func (exhaustedPool) Allocate(uintptr) ([]byte, bool) { return nil, false }
func (exhaustedPool) Free([]byte)                     {}
func (exhaustedPool) Find(uintptr) ([]byte, bool)     { return nil, false }
func (exhaustedPool) OverHalfAllocated() bool         { return false }
func (exhaustedPool) PointerInPool(uintptr) bool      { return false }
func (exhaustedPool) Alignment() uintptr              { return 4096 }
