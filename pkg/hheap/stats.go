// Copyright (C) The parheap authors.
// All rights reserved. This file is part of parheap.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hheap

import (
	"bytes"
	"sync"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// CollectorStats accumulates per-process statistics across every local
// collection a Collector has run, exported as Prometheus metrics so an
// embedding runtime can chart collection frequency and effectiveness
// the same way the rest of its stack exposes metrics.
type CollectorStats struct {
	mu sync.Mutex

	local *prometheus.Registry // always holds the instruments, backing Dump

	numCollections   prometheus.Counter
	numLevelsMerged  prometheus.Counter
	objectsCopied    prometheus.Counter
	stacksCopied     prometheus.Counter
	bytesSurvived    prometheus.Counter
	lastSurvivedSize prometheus.Gauge
	pauseSeconds     prometheus.Histogram
}

// NewCollectorStats registers a fresh set of collection counters with
// reg. Passing a nil reg is valid and yields a CollectorStats whose
// counters accumulate in-process (and remain visible through Dump)
// without being exported anywhere, suitable for tests.
func NewCollectorStats(reg prometheus.Registerer) CollectorStats {
	s := CollectorStats{
		local: prometheus.NewRegistry(),
		numCollections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hheap",
			Name:      "local_collections_total",
			Help:      "Number of local hierarchical-heap collections run.",
		}),
		numLevelsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hheap",
			Name:      "levels_merged_total",
			Help:      "Number of levels merged across all local collections.",
		}),
		objectsCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hheap",
			Name:      "objects_copied_total",
			Help:      "Number of objects copied as survivors across all local collections.",
		}),
		stacksCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hheap",
			Name:      "stacks_copied_total",
			Help:      "Number of continuation stacks copied as survivors across all local collections.",
		}),
		bytesSurvived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hheap",
			Name:      "survived_bytes_total",
			Help:      "Total bytes copied as survivors across all local collections.",
		}),
		lastSurvivedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hheap",
			Name:      "last_collection_survived_bytes",
			Help:      "Bytes copied as survivors by the most recent local collection.",
		}),
		pauseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hheap",
			Name:      "local_collection_pause_seconds",
			Help:      "Wall-clock duration of each local collection.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}

	instruments := []prometheus.Collector{
		s.numCollections, s.numLevelsMerged, s.objectsCopied,
		s.stacksCopied, s.bytesSurvived, s.lastSurvivedSize, s.pauseSeconds,
	}
	s.local.MustRegister(instruments...)
	if reg != nil {
		reg.MustRegister(instruments...)
	}
	return s
}

// record updates every counter after one local collection completes.
// Safe to call with an unregistered (nil-Registerer) CollectorStats: the
// prometheus.Counter/Gauge/Histogram values still accumulate, they are
// simply never scraped.
func (s *CollectorStats) record(levelsMerged uint32, report CollectionReport, pause time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numCollections == nil {
		return
	}
	s.numCollections.Inc()
	s.numLevelsMerged.Add(float64(levelsMerged))
	s.objectsCopied.Add(float64(report.ObjectsCopied))
	s.stacksCopied.Add(float64(report.StacksCopied))
	s.bytesSurvived.Add(float64(report.BytesCopied))
	s.lastSurvivedSize.Set(float64(report.BytesCopied))
	s.pauseSeconds.Observe(pause.Seconds())
}

// Dump renders the accumulated collection statistics in the Prometheus
// text exposition format, for log lines and debugging sessions where no
// scrape endpoint is wired up.
func (s *CollectorStats) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local == nil {
		return ""
	}
	mfs, err := s.local.Gather()
	if err != nil {
		cclog.Warnf("[HHEAP]> gathering collector statistics failed: %s", err.Error())
		return ""
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			cclog.Warnf("[HHEAP]> encoding collector statistics failed: %s", err.Error())
			return ""
		}
	}
	return buf.String()
}
