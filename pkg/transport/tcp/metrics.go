// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcp

import (
	"github.com/prometheus/client_golang/prometheus"

	m "github.com/zapek/gxs/pkg/metrics"
)

type metrics struct {
	PeersConnected    prometheus.Counter
	PeersDisconnected prometheus.Counter
	FramesRead        prometheus.Counter
	FramesWritten     prometheus.Counter
	DecodeErrors      prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "tcp"

	return metrics{
		PeersConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "peers_connected_total",
			Help:      "Peer links established.",
		}),
		PeersDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "peers_disconnected_total",
			Help:      "Peer links torn down.",
		}),
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_read_total",
			Help:      "Protocol frames read off the wire.",
		}),
		FramesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "frames_written_total",
			Help:      "Protocol frames written to the wire.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that failed to decode.",
		}),
	}
}

func (s *Service) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(s.metrics)
}
