// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	m "github.com/zapek/gxs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	SyncRounds       prometheus.Counter
	GroupsSent       prometheus.Counter
	GroupsReceived   prometheus.Counter
	GroupsSaved      prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	MessagesSaved    prometheus.Counter
	NotifiesSent     prometheus.Counter
	NotifiesReceived prometheus.Counter
	ProtocolErrors   prometheus.Counter
}

func newMetrics() metrics {
	subsystem := "sync"

	return metrics{
		SyncRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "rounds_count",
			Help:      "Number of sync rounds run against peers.",
		}),
		GroupsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "groups_sent_count",
			Help:      "Number of full groups sent to peers.",
		}),
		GroupsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "groups_received_count",
			Help:      "Number of full groups received from peers.",
		}),
		GroupsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "groups_saved_count",
			Help:      "Number of received groups that passed verification and were stored.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_count",
			Help:      "Number of full messages sent to peers.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "messages_received_count",
			Help:      "Number of full messages received from peers.",
		}),
		MessagesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "messages_saved_count",
			Help:      "Number of received messages that passed verification and were stored.",
		}),
		NotifiesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "notifies_sent_count",
			Help:      "Number of new-content notifications gossiped to peers.",
		}),
		NotifiesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "notifies_received_count",
			Help:      "Number of new-content notifications received from peers.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "protocol_errors_count",
			Help:      "Number of malformed or out-of-order protocol items from peers.",
		}),
	}
}
