// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package chunkpool

import "unsafe"

// addrOf returns the address of the first byte of b. Used only for
// alignment arithmetic and as an opaque, comparable slab identity; the
// returned value is never dereferenced as a pointer by this package.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
