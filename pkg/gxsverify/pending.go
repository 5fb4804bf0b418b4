// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxsverify

import (
	"sync"
	"time"

	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport"
)

const (
	// DefaultPendingBudget is how long a delayed candidate may keep
	// retrying before it is dropped.
	DefaultPendingBudget = 200 * time.Second
	// DefaultPendingPeriod is how often the pending queue retries.
	DefaultPendingPeriod = 10 * time.Second
)

// Retry re-runs verification of a delayed candidate against the given
// peer. It returns Delayed while the author key is still unknown.
type Retry func(peer transport.Peer) Result

type pendingEntry struct {
	retry  Retry
	budget time.Duration
}

// PendingQueue holds candidates whose verification came back Delayed
// and retries them periodically against a random connected peer until
// they resolve or their time budget runs out.
type PendingQueue struct {
	transport transport.Service
	verifier  *Verifier
	logger    logging.Logger

	budget time.Duration
	period time.Duration

	mtx     sync.Mutex
	entries map[string]*pendingEntry

	started bool
	quit    chan struct{}
	done    chan struct{}
}

// NewPendingQueue constructs a pending queue. Start must be called for
// retries to run.
func NewPendingQueue(t transport.Service, verifier *Verifier, logger logging.Logger, budget, period time.Duration) *PendingQueue {
	if budget <= 0 {
		budget = DefaultPendingBudget
	}
	if period <= 0 {
		period = DefaultPendingPeriod
	}
	return &PendingQueue{
		transport: t,
		verifier:  verifier,
		logger:    logger,
		budget:    budget,
		period:    period,
		entries:   make(map[string]*pendingEntry),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Add queues a delayed candidate under the given key. A candidate
// already queued under the same key keeps its remaining budget.
func (q *PendingQueue) Add(key string, retry Retry) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if _, ok := q.entries[key]; ok {
		return
	}
	q.entries[key] = &pendingEntry{
		retry:  retry,
		budget: q.budget,
	}
}

// Len returns the number of queued candidates.
func (q *PendingQueue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.entries)
}

// Start runs the retry loop until Close is called.
func (q *PendingQueue) Start() {
	q.started = true
	go func() {
		defer close(q.done)

		ticker := time.NewTicker(q.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				q.Tick()
			case <-q.quit:
				return
			}
		}
	}()
}

// Close stops the retry loop. Queued candidates are discarded.
func (q *PendingQueue) Close() error {
	close(q.quit)
	if q.started {
		<-q.done
	}
	return nil
}

// Tick runs one retry pass against a randomly chosen peer. The periodic
// loop calls it; so can whoever just learned new identities. With no
// connected peer there is nobody to ask for the missing key, so budgets
// are left untouched.
func (q *PendingQueue) Tick() {
	peer, ok := q.transport.RandomPeer()
	if !ok {
		return
	}

	q.mtx.Lock()
	keys := make([]string, 0, len(q.entries))
	retries := make([]Retry, 0, len(q.entries))
	for k, e := range q.entries {
		keys = append(keys, k)
		retries = append(retries, e.retry)
	}
	q.mtx.Unlock()

	for i, key := range keys {
		res := retries[i](peer)

		q.mtx.Lock()
		e, ok := q.entries[key]
		if !ok {
			q.mtx.Unlock()
			continue
		}
		switch res {
		case Delayed:
			e.budget -= q.period
			if e.budget < 0 {
				delete(q.entries, key)
				q.mtx.Unlock()
				q.verifier.metrics.PendingDropped.Inc()
				q.logger.Warningf("pending candidate %s dropped, author key never resolved", key)
				continue
			}
		default:
			delete(q.entries, key)
			q.verifier.metrics.PendingResolved.Inc()
		}
		q.mtx.Unlock()
	}
}
