// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of one engine.
type metrics struct {
	rendersStarted prometheus.Counter
	rendersEnded   prometheus.Counter
	rendersAborted prometheus.Counter
	increments     prometheus.Counter
	snapshots      prometheus.Counter
	snapshotWait   prometheus.Histogram
}

// newMetrics creates the collectors and, if reg is non-nil, registers them
// together with gauges reading the live queue length and parked worker count.
// A failed registration leaves reg as it was.
func newMetrics(reg prometheus.Registerer, queued, parked func() float64) (*metrics, error) {
	m := &metrics{
		rendersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neb_renders_started_total",
			Help: "Renders started.",
		}),
		rendersEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neb_renders_completed_total",
			Help: "Renders that developed every negative and combined.",
		}),
		rendersAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neb_renders_aborted_total",
			Help: "Renders aborted by a step or combine fault, or by Close.",
		}),
		increments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neb_increments_total",
			Help: "Completed Step increments.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neb_snapshots_total",
			Help: "Snapshots combined from an in-progress render.",
		}),
		snapshotWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "neb_snapshot_barrier_seconds",
			Help:    "Time for every worker to park for a snapshot.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.rendersStarted,
		m.rendersEnded,
		m.rendersAborted,
		m.increments,
		m.snapshots,
		m.snapshotWait,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "neb_queued_tasks",
			Help: "Tasks waiting in the queue.",
		}, queued),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "neb_parked_workers",
			Help: "Workers parked for a pause or stop.",
		}, parked),
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, fmt.Errorf("neb: register metrics: %w", err)
		}
	}
	return m, nil
}
