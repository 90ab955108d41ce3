// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command hhsim is a small simulation driver for package hheap: it spins
// up a handful of goroutine "workers" that each fork a child heap off a
// shared root, bump-allocate test objects into it via package testobj,
// occasionally run a local collection, and finally merge back into the
// root — exercising the lifecycle API and the collector's concurrency
// discipline the way a real work-stealing mutator/scheduler would,
// without implementing the scheduler itself.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/gops/agent"
	"github.com/parheap/parheap/pkg/chunkpool"
	"github.com/parheap/parheap/pkg/hheap"
	"github.com/parheap/parheap/pkg/hheap/testobj"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	var (
		numWorkers   int
		duration     time.Duration
		allocRate    float64
		collectEvery int
		flagGops     bool
	)
	flag.IntVar(&numWorkers, "workers", 4, "number of concurrent forking workers")
	flag.DurationVar(&duration, "duration", 5*time.Second, "how long to run the simulation")
	flag.Float64Var(&allocRate, "alloc-rate", 500, "allocations per second, per worker")
	flag.IntVar(&collectEvery, "collect-every", 64, "run a local collection every N allocations")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			cclog.Abortf("[hhsim]> gops/agent.Listen failed: %s", err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	pool := chunkpool.New()
	global := testobj.NewGlobalHeap()
	om := testobj.ObjectModel{Global: global}
	stackOps := testobj.StackOps{}
	queueLock := &QueueLock{}
	registry := prometheus.NewRegistry()

	collector := hheap.NewCollector(pool, om, stackOps, queueLock, registry)
	root := hheap.NewHierarchicalHeap(0)
	if !hheap.EnsureNotEmpty(root, pool, 4096) {
		cclog.Abortf("[hhsim]> failed to allocate the root heap's first chunk")
	}

	var (
		totalAllocs      int64
		totalCollections int64
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		w := w
		g.Go(func() error {
			return runWorker(gctx, w, collector, root, allocRate, collectEvery, &totalAllocs, &totalCollections)
		})
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	for {
		select {
		case <-ticker.C:
			allocated, grown, pooled := pool.Stats()
			cclog.Debugf("[hhsim]> allocs=%d collections=%d pool{allocated=%d grown=%d pooled=%d}",
				atomic.LoadInt64(&totalAllocs), atomic.LoadInt64(&totalCollections), allocated, grown, pooled)
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				cclog.Errorf("[hhsim]> worker failed: %s", err.Error())
				os.Exit(1)
			}
			cclog.Infof("[hhsim]> done: %d allocations, %d local collections across %d workers",
				atomic.LoadInt64(&totalAllocs), atomic.LoadInt64(&totalCollections), numWorkers)
			cclog.ComponentDebug("hheap", collector.Stats.Dump())
			return
		}
	}
}

// runWorker forks a child heap off root at level 1, bump-allocates a
// stream of small objects into it (occasionally rooting one in its
// thread so it survives collection, to keep the simulated heap from
// being trivially all-garbage), periodically runs a local collection,
// and merges the survivors back into root once ctx is done.
func runWorker(ctx context.Context, id int, collector *hheap.Collector, root *hheap.HierarchicalHeap, allocRate float64, collectEvery int, totalAllocs, totalCollections *int64) error {
	limiter := rate.NewLimiter(rate.Limit(allocRate), 1)

	child := hheap.NewHierarchicalHeap(root.GetLevel() + 1)
	hheap.AppendChild(root, child)

	thread := testobj.NewThread()
	hheap.SetThread(child, thread)
	dq := testobj.NewDeque()

	rng := rand.New(rand.NewSource(int64(id) + 1))
	n := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		ptrCount := uint32(rng.Intn(3))
		p, err := testobj.NewNormal(collector, child, dq, 16, ptrCount)
		if err != nil {
			return err
		}
		atomic.AddInt64(totalAllocs, 1)
		n++

		// Keep roughly one in eight objects alive by rooting it, so a
		// collection has genuine survivors to copy instead of reclaiming
		// everything.
		if rng.Intn(8) == 0 {
			thread.AddRoot(p)
		}

		if n%collectEvery == 0 {
			collector.CollectLocal(child, dq)
			atomic.AddInt64(totalCollections, 1)
		}
	}

	collector.CollectLocal(child, dq)
	atomic.AddInt64(totalCollections, 1)

	hheap.PromoteChunks(child)
	if child.GetLevel() != root.GetLevel() {
		hheap.SetLevel(child, root.GetLevel())
	}
	hheap.MergeIntoParent(root, child)
	return nil
}
