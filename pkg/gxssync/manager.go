// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport"
	"github.com/zapek/gxs/pkg/wire"
)

// DefaultTransactionTimeout is how long a transaction may sit idle
// before the lazy sweep drops it.
const DefaultTransactionTimeout = 2 * time.Minute

var (
	// ErrUnknownTransaction means an item referenced a transaction id
	// with no live transaction behind it. Completed and failed ids are
	// unknown again.
	ErrUnknownTransaction = errors.New("gxssync: unknown transaction")
	// ErrDuplicateTransaction means a START reused a live transaction
	// id.
	ErrDuplicateTransaction = errors.New("gxssync: duplicate transaction")
)

// completedFunc is called once per incoming transaction, after the
// success notice was written back to the sender. No manager lock is
// held during the call.
type completedFunc func(ctx context.Context, peer transport.Peer, tx *transaction)

// manager runs the batched-transfer state machine for one content
// service. Transaction ids are scoped to the side that started them, so
// transactions we started and transactions the peer started live in
// separate maps.
type manager struct {
	transport   transport.Service
	serviceType uint16
	timeout     time.Duration
	completed   completedFunc
	logger      logging.Logger
	now         func() time.Time

	mtx      sync.Mutex
	incoming map[string]map[uint32]*transaction
	outgoing map[string]map[uint32]*transaction
}

func newManager(t transport.Service, serviceType uint16, timeout time.Duration, completed completedFunc, logger logging.Logger) *manager {
	if timeout <= 0 {
		timeout = DefaultTransactionTimeout
	}
	return &manager{
		transport:   t,
		serviceType: serviceType,
		timeout:     timeout,
		completed:   completed,
		logger:      logger,
		now:         time.Now,
		incoming:    make(map[string]map[uint32]*transaction),
		outgoing:    make(map[string]map[uint32]*transaction),
	}
}

// startOutgoing registers a new outgoing transaction and sends its
// START. The items are held back until the peer acknowledges.
func (m *manager) startOutgoing(ctx context.Context, peer transport.Peer, txId uint32, flags wire.Flags, updateTimestamp time.Time, items []wire.Item) error {
	m.sweep()

	tx := &transaction{
		id:              txId,
		peer:            peer,
		flags:           flags,
		state:           Starting,
		itemCount:       uint32(len(items)),
		updateTimestamp: updateTimestamp,
		items:           items,
		touched:         m.now(),
	}

	m.mtx.Lock()
	if _, ok := m.outgoing[peer.String()][txId]; ok {
		m.mtx.Unlock()
		return fmt.Errorf("%w: outgoing id %d with peer %s", ErrDuplicateTransaction, txId, peer)
	}
	if m.outgoing[peer.String()] == nil {
		m.outgoing[peer.String()] = make(map[uint32]*transaction)
	}
	m.outgoing[peer.String()][txId] = tx
	m.mtx.Unlock()

	err := m.transport.WriteItem(ctx, peer, m.serviceType, &wire.TransactionItem{
		Flags:           flags | wire.FlagStart,
		ItemCount:       tx.itemCount,
		UpdateTimestamp: updateTimestamp,
		TxId:            txId,
	})
	if err != nil {
		m.remove(m.outgoing, peer, txId)
		return fmt.Errorf("start transaction %d with peer %s: %w", txId, peer, err)
	}
	return nil
}

// processControl handles a transaction control item from the peer.
func (m *manager) processControl(ctx context.Context, peer transport.Peer, item *wire.TransactionItem) error {
	m.sweep()

	switch {
	case item.Flags.Has(wire.FlagStart):
		return m.processStart(ctx, peer, item)
	case item.Flags.Has(wire.FlagStartAcknowledge):
		return m.processStartAcknowledge(ctx, peer, item)
	case item.Flags.Has(wire.FlagEndSuccess):
		return m.finishOutgoing(peer, item.TxId, true)
	case item.Flags.Has(wire.FlagEndFailure):
		return m.finishOutgoing(peer, item.TxId, false)
	default:
		return fmt.Errorf("transaction %d from peer %s: unknown control flags %b", item.TxId, peer, item.Flags)
	}
}

func (m *manager) processStart(ctx context.Context, peer transport.Peer, item *wire.TransactionItem) error {
	if item.ItemCount == 0 {
		m.logger.Warningf("transaction %d from peer %s: empty start ignored", item.TxId, peer)
		return nil
	}

	tx := &transaction{
		id:              item.TxId,
		peer:            peer,
		flags:           item.Flags.TypeFlags(),
		state:           Receiving,
		itemCount:       item.ItemCount,
		updateTimestamp: item.UpdateTimestamp,
		touched:         m.now(),
	}

	m.mtx.Lock()
	if _, ok := m.incoming[peer.String()][item.TxId]; ok {
		m.mtx.Unlock()
		return fmt.Errorf("%w: incoming id %d from peer %s", ErrDuplicateTransaction, item.TxId, peer)
	}
	if m.incoming[peer.String()] == nil {
		m.incoming[peer.String()] = make(map[uint32]*transaction)
	}
	m.incoming[peer.String()][item.TxId] = tx
	m.mtx.Unlock()

	m.logger.Debugf("transaction %d from peer %s: receiving %d items", item.TxId, peer, item.ItemCount)

	return m.transport.WriteItem(ctx, peer, m.serviceType, &wire.TransactionItem{
		Flags: item.Flags.TypeFlags() | wire.FlagStartAcknowledge,
		TxId:  item.TxId,
	})
}

func (m *manager) processStartAcknowledge(ctx context.Context, peer transport.Peer, item *wire.TransactionItem) error {
	m.mtx.Lock()
	tx, ok := m.outgoing[peer.String()][item.TxId]
	if !ok || tx.state != Starting {
		m.mtx.Unlock()
		return fmt.Errorf("%w: acknowledge for id %d from peer %s", ErrUnknownTransaction, item.TxId, peer)
	}
	tx.state = WaitingConfirmation
	tx.touched = m.now()
	items := tx.items
	m.mtx.Unlock()

	for _, i := range items {
		if err := m.transport.WriteItem(ctx, peer, m.serviceType, i); err != nil {
			m.remove(m.outgoing, peer, item.TxId)
			return fmt.Errorf("send transaction %d items to peer %s: %w", item.TxId, peer, err)
		}
	}
	return nil
}

// finishOutgoing resolves the sender side once the receiver reported
// the outcome of the batch.
func (m *manager) finishOutgoing(peer transport.Peer, txId uint32, success bool) error {
	m.mtx.Lock()
	tx, ok := m.outgoing[peer.String()][txId]
	if !ok || tx.state != WaitingConfirmation {
		m.mtx.Unlock()
		return fmt.Errorf("%w: end for id %d from peer %s", ErrUnknownTransaction, txId, peer)
	}
	if success {
		tx.state = Completed
	} else {
		tx.state = Failed
	}
	delete(m.outgoing[peer.String()], txId)
	m.mtx.Unlock()

	if success {
		m.logger.Debugf("transaction %d with peer %s: completed", txId, peer)
	} else {
		m.logger.Warningf("transaction %d with peer %s: peer reported failure", txId, peer)
	}
	return nil
}

// addItem routes a batched data item into its incoming transaction. The
// transaction completes exactly when the declared item count is
// reached; any further item under the same id is a protocol error.
func (m *manager) addItem(ctx context.Context, peer transport.Peer, item wire.Item) error {
	m.sweep()

	m.mtx.Lock()
	tx, ok := m.incoming[peer.String()][item.TransactionId()]
	if !ok || tx.state != Receiving {
		m.mtx.Unlock()
		return fmt.Errorf("%w: item %s for id %d from peer %s", ErrUnknownTransaction, item.Type(), item.TransactionId(), peer)
	}
	tx.items = append(tx.items, item)
	tx.touched = m.now()
	if uint32(len(tx.items)) < tx.itemCount {
		m.mtx.Unlock()
		return nil
	}
	tx.state = Completed
	delete(m.incoming[peer.String()], tx.id)
	m.mtx.Unlock()

	err := m.transport.WriteItem(ctx, peer, m.serviceType, &wire.TransactionItem{
		Flags: tx.flags.TypeFlags() | wire.FlagEndSuccess,
		TxId:  tx.id,
	})
	if err != nil {
		m.logger.Warningf("transaction %d from peer %s: confirming failed: %v", tx.id, peer, err)
	}

	m.completed(ctx, peer, tx)
	return nil
}

// clearPeer drops every transaction in flight with the peer. A
// reconnect is a fresh link; nothing survives it.
func (m *manager) clearPeer(peer transport.Peer) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.incoming, peer.String())
	delete(m.outgoing, peer.String())
}

func (m *manager) remove(txs map[string]map[uint32]*transaction, peer transport.Peer, txId uint32) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(txs[peer.String()], txId)
}

// sweep drops transactions that sat idle past the timeout. It runs
// lazily on every manager entry point; there is no timer.
func (m *manager) sweep() {
	now := m.now()

	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, txs := range []map[string]map[uint32]*transaction{m.incoming, m.outgoing} {
		for _, peerTxs := range txs {
			for id, tx := range peerTxs {
				if tx.expired(now, m.timeout) {
					m.logger.Warningf("transaction %d with peer %s: timed out in state %s", id, tx.peer, tx.state)
					tx.state = Failed
					delete(peerTxs, id)
				}
			}
		}
	}
}
