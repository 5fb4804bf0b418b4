// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxsverify

import (
	m "github.com/zapek/gxs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	Verified        prometheus.Counter
	Failed          prometheus.Counter
	Delayed         prometheus.Counter
	PendingResolved prometheus.Counter
	PendingDropped  prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "verify"

	return metrics{
		Verified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "verified_count",
			Help:      "Number of candidates that passed verification.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "failed_count",
			Help:      "Number of candidates rejected for invalid or missing signatures.",
		}),
		Delayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "delayed_count",
			Help:      "Number of candidates delayed for a missing author key.",
		}),
		PendingResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "pending_resolved_count",
			Help:      "Number of pending candidates resolved by a retry.",
		}),
		PendingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "pending_dropped_count",
			Help:      "Number of pending candidates dropped after their retry budget ran out.",
		}),
	}
}

func (v *Verifier) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(v.metrics)
}
