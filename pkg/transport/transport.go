// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the peer-link abstraction the sync engine
// writes protocol items through. Links are assumed authenticated,
// ordered and reliable per peer; everything else is the transport
// implementation's business.
package transport

import (
	"context"
	"errors"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/wire"
)

var (
	ErrPeerNotFound    = errors.New("transport: peer not found")
	ErrServiceNotFound = errors.New("transport: service not found")
)

// Peer holds the identity of a connected peer.
type Peer struct {
	Id gxs.PeerId
}

func (p Peer) String() string {
	return p.Id.String()
}

// Equal returns true if two peers are identical.
func (p Peer) Equal(o Peer) bool {
	return p.Id.Equal(o.Id)
}

// Handler is what a content service exposes to the transport. Inbound
// items for one peer are delivered sequentially; different peers may be
// handled concurrently.
type Handler interface {
	// HandleItem processes one inbound protocol item from the peer.
	HandleItem(ctx context.Context, peer Peer, item wire.Item) error
	// Connected tells the service a fresh peer link is up. A reconnect
	// is a new link; no transaction state crosses it.
	Connected(peer Peer)
	// Disconnected tells the service the peer link was torn down.
	Disconnected(peer Peer)
}

// Service is the transport surface the sync engine needs.
type Service interface {
	// WriteItem sends one protocol item to the peer for the given
	// content service.
	WriteItem(ctx context.Context, peer Peer, serviceType uint16, item wire.Item) error
	// RandomPeer returns an arbitrarily chosen currently connected peer.
	RandomPeer() (Peer, bool)
	// Peers returns all currently connected peers.
	Peers() []Peer
	// Register attaches a content service handler to a service type.
	Register(serviceType uint16, h Handler)
}
