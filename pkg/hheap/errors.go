// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import "errors"

// Sentinel errors for conditions this package can report without
// aborting the process — currently only the mutator's slow-path refill.
//
// Unrecoverable conditions (out-of-chunk-pool during copy,
// entanglement, weak objects reaching the copier, invariant failures)
// are raised through cclog.Abortf instead of returned: the collector
// has no recovery path for them, and continuing would violate memory
// safety.
var (
	// ErrChunkPoolExhausted is returned by Extend when the chunk pool
	// cannot satisfy a refill request even after a collection attempt.
	ErrChunkPoolExhausted = errors.New("[HHEAP]> chunk pool exhausted")

	// ErrUnimplemented is returned by collaborator stubs this module
	// deliberately does not implement (see PopulateGlobalHeapHoles).
	ErrUnimplemented = errors.New("[HHEAP]> unimplemented")
)
