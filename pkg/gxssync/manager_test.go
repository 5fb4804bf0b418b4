// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport"
	mockt "github.com/zapek/gxs/pkg/transport/mock"
	"github.com/zapek/gxs/pkg/wire"
)

const testServiceType = 0x0211

// managerHandler adapts a manager to the transport handler surface.
type managerHandler struct {
	m *manager
}

func (h *managerHandler) HandleItem(ctx context.Context, peer transport.Peer, item wire.Item) error {
	if c, ok := item.(*wire.TransactionItem); ok {
		return h.m.processControl(ctx, peer, c)
	}
	return h.m.addItem(ctx, peer, item)
}

func (h *managerHandler) Connected(transport.Peer)    {}
func (h *managerHandler) Disconnected(transport.Peer) {}

// nullHandler accepts and drops everything.
type nullHandler struct{}

func (nullHandler) HandleItem(context.Context, transport.Peer, wire.Item) error { return nil }
func (nullHandler) Connected(transport.Peer)                                    {}
func (nullHandler) Disconnected(transport.Peer)                                 {}

func groupItems(txId uint32, n int) []wire.Item {
	items := make([]wire.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, &wire.SyncGroupItem{
			Direction: wire.Request,
			GroupId:   gxs.NewId([]byte{byte(i + 1)}),
			TxId:      txId,
		})
	}
	return items
}

func TestTransactionHandshake(t *testing.T) {
	t.Parallel()

	network := mockt.NewNetwork()
	ea := network.Register(gxs.NewPeerId([]byte("peer-a")))
	eb := network.Register(gxs.NewPeerId([]byte("peer-b")))
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}
	peerB := transport.Peer{Id: gxs.NewPeerId([]byte("peer-b"))}

	var completed []*transaction
	ma := newManager(ea, testServiceType, 0, func(context.Context, transport.Peer, *transaction) {
		t.Fatal("sender side must not complete incoming transactions")
	}, logging.Noop())
	mb := newManager(eb, testServiceType, 0, func(_ context.Context, _ transport.Peer, tx *transaction) {
		completed = append(completed, tx)
	}, logging.Noop())
	ea.Register(testServiceType, &managerHandler{ma})
	eb.Register(testServiceType, &managerHandler{mb})
	network.Connect(ea, eb)

	txId := uint32(7)
	err := ma.startOutgoing(context.Background(), peerB, txId, wire.FlagTypeGroupListRequest, time.Time{}, groupItems(txId, 3))
	if err != nil {
		t.Fatal(err)
	}

	if len(completed) != 1 {
		t.Fatalf("got %d completed transactions, want 1", len(completed))
	}
	tx := completed[0]
	if got := len(tx.items); got != 3 {
		t.Fatalf("got %d items, want 3", got)
	}
	if tx.state != Completed {
		t.Fatalf("got state %s, want COMPLETED", tx.state)
	}
	if !tx.flags.Has(wire.FlagTypeGroupListRequest) {
		t.Fatalf("got flags %b, want group list request", tx.flags)
	}

	// a straggler under a finished id is a protocol error on both sides
	err = mb.addItem(context.Background(), peerA, &wire.SyncGroupItem{TxId: txId})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}
	if len(completed) != 1 {
		t.Fatalf("got %d completed transactions, want 1", len(completed))
	}
}

func TestTransactionUnknownId(t *testing.T) {
	t.Parallel()

	network := mockt.NewNetwork()
	ea := network.Register(gxs.NewPeerId([]byte("peer-a")))
	eb := network.Register(gxs.NewPeerId([]byte("peer-b")))
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	mb := newManager(eb, testServiceType, 0, func(context.Context, transport.Peer, *transaction) {
		t.Fatal("nothing must complete")
	}, logging.Noop())
	ea.Register(testServiceType, nullHandler{})
	eb.Register(testServiceType, &managerHandler{mb})
	network.Connect(ea, eb)

	err := mb.addItem(context.Background(), peerA, &wire.SyncGroupItem{TxId: 99})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}

	err = mb.processControl(context.Background(), peerA, &wire.TransactionItem{
		Flags: wire.FlagTypeGroups | wire.FlagEndSuccess,
		TxId:  99,
	})
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}
}

func TestTransactionDuplicateStart(t *testing.T) {
	t.Parallel()

	network := mockt.NewNetwork()
	ea := network.Register(gxs.NewPeerId([]byte("peer-a")))
	eb := network.Register(gxs.NewPeerId([]byte("peer-b")))
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	mb := newManager(eb, testServiceType, 0, func(context.Context, transport.Peer, *transaction) {}, logging.Noop())
	ea.Register(testServiceType, nullHandler{})
	eb.Register(testServiceType, &managerHandler{mb})
	network.Connect(ea, eb)

	start := &wire.TransactionItem{
		Flags:     wire.FlagTypeGroups | wire.FlagStart,
		ItemCount: 2,
		TxId:      5,
	}
	if err := mb.processControl(context.Background(), peerA, start); err != nil {
		t.Fatal(err)
	}
	err := mb.processControl(context.Background(), peerA, start)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("got %v, want ErrDuplicateTransaction", err)
	}
}

func TestTransactionTimeout(t *testing.T) {
	t.Parallel()

	network := mockt.NewNetwork()
	ea := network.Register(gxs.NewPeerId([]byte("peer-a")))
	eb := network.Register(gxs.NewPeerId([]byte("peer-b")))
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	mb := newManager(eb, testServiceType, 0, func(context.Context, transport.Peer, *transaction) {
		t.Fatal("a timed out transaction must not complete")
	}, logging.Noop())
	ea.Register(testServiceType, nullHandler{})
	eb.Register(testServiceType, &managerHandler{mb})
	network.Connect(ea, eb)

	base := time.Now()
	mb.now = func() time.Time { return base }

	err := mb.processControl(context.Background(), peerA, &wire.TransactionItem{
		Flags:     wire.FlagTypeGroups | wire.FlagStart,
		ItemCount: 2,
		TxId:      9,
	})
	if err != nil {
		t.Fatal(err)
	}
	items := groupItems(9, 2)
	if err := mb.addItem(context.Background(), peerA, items[0]); err != nil {
		t.Fatal(err)
	}

	// the timeout sweep is lazy; nothing happens until the next entry
	mb.now = func() time.Time { return base.Add(3 * time.Minute) }
	err = mb.addItem(context.Background(), peerA, items[1])
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}
}

func TestTransactionClearPeer(t *testing.T) {
	t.Parallel()

	network := mockt.NewNetwork()
	ea := network.Register(gxs.NewPeerId([]byte("peer-a")))
	eb := network.Register(gxs.NewPeerId([]byte("peer-b")))
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	mb := newManager(eb, testServiceType, 0, func(context.Context, transport.Peer, *transaction) {
		t.Fatal("a cleared transaction must not complete")
	}, logging.Noop())
	ea.Register(testServiceType, nullHandler{})
	eb.Register(testServiceType, &managerHandler{mb})
	network.Connect(ea, eb)

	err := mb.processControl(context.Background(), peerA, &wire.TransactionItem{
		Flags:     wire.FlagTypeGroups | wire.FlagStart,
		ItemCount: 2,
		TxId:      4,
	})
	if err != nil {
		t.Fatal(err)
	}

	mb.clearPeer(peerA)

	err = mb.addItem(context.Background(), peerA, groupItems(4, 1)[0])
	if !errors.Is(err, ErrUnknownTransaction) {
		t.Fatalf("got %v, want ErrUnknownTransaction", err)
	}
}
