// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mock provides an in-memory transport network that delivers
// items between registered endpoints synchronously. It is the recorder
// used by the protocol tests.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/transport"
	"github.com/zapek/gxs/pkg/wire"
)

// Network connects mock transports by peer id.
type Network struct {
	mtx       sync.Mutex
	endpoints map[string]*Transport
}

func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[string]*Transport),
	}
}

// Register creates the endpoint for the given peer id.
func (n *Network) Register(id gxs.PeerId) *Transport {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	t := &Transport{
		network:  n,
		self:     transport.Peer{Id: id},
		handlers: make(map[uint16]transport.Handler),
	}
	n.endpoints[id.String()] = t
	return t
}

// Connect links two endpoints and notifies their handlers.
func (n *Network) Connect(a, b *Transport) {
	a.addPeer(b.self)
	b.addPeer(a.self)
	a.notifyConnected(b.self)
	b.notifyConnected(a.self)
}

// Disconnect tears the link down and notifies their handlers.
func (n *Network) Disconnect(a, b *Transport) {
	a.removePeer(b.self)
	b.removePeer(a.self)
	a.notifyDisconnected(b.self)
	b.notifyDisconnected(a.self)
}

func (n *Network) endpoint(id gxs.PeerId) (*Transport, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	t, ok := n.endpoints[id.String()]
	return t, ok
}

var _ transport.Service = (*Transport)(nil)

// Transport is one endpoint of the mock network. It records everything
// written through it and delivers items to the remote endpoint's
// handler in the calling goroutine.
type Transport struct {
	network *Network
	self    transport.Peer

	mtx      sync.Mutex
	peers    []transport.Peer
	handlers map[uint16]transport.Handler
	records  []Record
}

// Record is one item written through the transport.
type Record struct {
	Peer        transport.Peer
	ServiceType uint16
	Item        wire.Item
}

func (t *Transport) Register(serviceType uint16, h transport.Handler) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.handlers[serviceType] = h
}

func (t *Transport) WriteItem(ctx context.Context, peer transport.Peer, serviceType uint16, item wire.Item) error {
	if !t.connected(peer) {
		return transport.ErrPeerNotFound
	}
	remote, ok := t.network.endpoint(peer.Id)
	if !ok {
		return transport.ErrPeerNotFound
	}

	t.mtx.Lock()
	t.records = append(t.records, Record{Peer: peer, ServiceType: serviceType, Item: item})
	t.mtx.Unlock()

	// round trip through the byte form so endpoints never share memory
	b, err := wire.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	copied, err := wire.Unmarshal(b)
	if err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}

	return remote.deliver(ctx, t.self, serviceType, copied)
}

func (t *Transport) deliver(ctx context.Context, from transport.Peer, serviceType uint16, item wire.Item) error {
	t.mtx.Lock()
	h, ok := t.handlers[serviceType]
	t.mtx.Unlock()
	if !ok {
		return transport.ErrServiceNotFound
	}
	return h.HandleItem(ctx, from, item)
}

func (t *Transport) RandomPeer() (transport.Peer, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if len(t.peers) == 0 {
		return transport.Peer{}, false
	}
	return t.peers[rand.Intn(len(t.peers))], true
}

func (t *Transport) Peers() []transport.Peer {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return append([]transport.Peer(nil), t.peers...)
}

// Records returns the items written to the given peer so far.
func (t *Transport) Records(peer transport.Peer) []Record {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	var out []Record
	for _, r := range t.records {
		if r.Peer.Equal(peer) {
			out = append(out, r)
		}
	}
	return out
}

func (t *Transport) connected(peer transport.Peer) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, p := range t.peers {
		if p.Equal(peer) {
			return true
		}
	}
	return false
}

func (t *Transport) addPeer(peer transport.Peer) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.peers = append(t.peers, peer)
}

func (t *Transport) removePeer(peer transport.Peer) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for i, p := range t.peers {
		if p.Equal(peer) {
			t.peers = append(t.peers[:i], t.peers[i+1:]...)
			return
		}
	}
}

func (t *Transport) notifyConnected(peer transport.Peer) {
	t.mtx.Lock()
	hs := make([]transport.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		hs = append(hs, h)
	}
	t.mtx.Unlock()
	for _, h := range hs {
		h.Connected(peer)
	}
}

func (t *Transport) notifyDisconnected(peer transport.Peer) {
	t.mtx.Lock()
	hs := make([]transport.Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		hs = append(hs, h)
	}
	t.mtx.Unlock()
	for _, h := range hs {
		h.Disconnected(peer)
	}
}
