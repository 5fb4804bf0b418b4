// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"time"

	"github.com/zapek/gxs/pkg/transport"
	"github.com/zapek/gxs/pkg/wire"
)

// State is the lifecycle position of a transaction.
type State uint8

const (
	// Starting: outgoing, START sent, waiting for the acknowledge.
	Starting State = iota + 1
	// Receiving: incoming, collecting items until the declared count.
	Receiving
	// WaitingConfirmation: outgoing, items sent, waiting for the
	// receiver's success notice.
	WaitingConfirmation
	// Completed is terminal; a completed transaction never completes
	// again.
	Completed
	// Failed is terminal.
	Failed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "STARTING"
	case Receiving:
		return "RECEIVING"
	case WaitingConfirmation:
		return "WAITING_CONFIRMATION"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "Unknown"
	}
}

// transaction is one batched transfer in flight with one peer. The id
// is scoped to the initiating side of the link, so the incoming and
// outgoing sets are kept apart.
type transaction struct {
	id    uint32
	peer  transport.Peer
	flags wire.Flags
	state State

	// declared by the initiator's START item
	itemCount       uint32
	updateTimestamp time.Time

	items []wire.Item

	// for the lazy timeout sweep
	touched time.Time
}

func (t *transaction) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(t.touched) > timeout
}
