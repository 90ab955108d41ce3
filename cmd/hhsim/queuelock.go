// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// QueueLock is a trivial stand-in for the work-stealing scheduler's
// process-wide queue lock: a plain mutex plus goroutine-local
// reentrancy tracking. The scheduler itself is out of scope; this
// exists only so cmd/hhsim's workers can drive hheap.Collector the way
// a real mutator would — taking the lock once per top-level
// fork/collect/join step and never fighting themselves when a
// collection is triggered from inside an already-locked step.
type QueueLock struct {
	mu      sync.Mutex
	held    int32
	ownerID uint64
}

// goroutineID parses the numeric goroutine id out of a runtime.Stack
// trace. It is the same trick several long-lived Go servers resort to
// when no other goroutine-local storage is available; acceptable here
// since it backs only a demo driver's lock, never the collector itself.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseUint(string(buf), 10, 64)
	return id
}

func (q *QueueLock) Lock() {
	q.mu.Lock()
	atomic.StoreInt32(&q.held, 1)
	atomic.StoreUint64(&q.ownerID, goroutineID())
}

func (q *QueueLock) Unlock() {
	atomic.StoreInt32(&q.held, 0)
	atomic.StoreUint64(&q.ownerID, 0)
	q.mu.Unlock()
}

func (q *QueueLock) AlreadyLockedByMe() bool {
	return atomic.LoadInt32(&q.held) == 1 && atomic.LoadUint64(&q.ownerID) == goroutineID()
}
