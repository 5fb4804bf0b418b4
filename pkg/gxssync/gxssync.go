// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gxssync implements the content synchronization engine: the
// per-peer sync scheduler, the batched-transfer transaction state
// machine and the watermark bookkeeping. Content services plug into it
// with their group and message types; the engine never interprets the
// service data blobs it moves around.
package gxssync

import (
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxsverify"
	"github.com/zapek/gxs/pkg/transport"
)

// Group is a content service's group type: synchronized metadata plus
// the service's opaque data blob.
type Group interface {
	GroupMeta() *gxs.GroupMeta
	MarshalData() ([]byte, error)
	UnmarshalData([]byte) error
}

// Message is a content service's message type.
type Message interface {
	MessageMeta() *gxs.MessageMeta
	MarshalData() ([]byte, error)
	UnmarshalData([]byte) error
}

// Provider is what a content service hands the engine: constructors for
// its concrete types, its authentication policy and its say over what
// gets fetched and shared.
type Provider[G Group, M Message] interface {
	// NewGroup returns a fresh, empty group for the engine to fill.
	NewGroup() G
	// NewMessage returns a fresh, empty message for the engine to fill.
	NewMessage() M
	// Requirements is the service's message authentication policy.
	Requirements() *gxsverify.Requirements
	// WantGroups filters the groups a peer advertised down to the ones
	// worth fetching. Groups already stored are filtered out before the
	// call.
	WantGroups(peer transport.Peer, ids []gxs.Id) []gxs.Id
	// WantMessages filters the messages a peer advertised for a stored
	// group. Messages already stored are filtered out before the call.
	WantMessages(peer transport.Peer, group G, ids []gxs.MessageId) []gxs.MessageId
	// PeerCanSee reports whether the group may be shared with the peer.
	PeerCanSee(peer transport.Peer, group G) bool
	// OnGroupsSaved tells the service new or updated groups were
	// accepted and stored.
	OnGroupsSaved(groups []G)
	// OnMessagesSaved tells the service new messages were accepted and
	// stored.
	OnMessagesSaved(messages []M)
}

// Store is the content storage the engine reads from and writes
// verified content to.
type Store[G Group, M Message] interface {
	// Group returns the stored group, or ok false.
	Group(id gxs.Id) (G, bool, error)
	// Groups returns all stored groups.
	Groups() ([]G, error)
	// GroupsUpdatedSince returns groups published after the given time.
	GroupsUpdatedSince(since time.Time) ([]G, error)
	// SaveGroup stores a group, overwriting a previous version.
	SaveGroup(g G) error
	// Message returns the stored message, or ok false.
	Message(groupId gxs.Id, id gxs.MessageId) (M, bool, error)
	// MessagesSince returns the group's messages published after the
	// given time.
	MessagesSince(groupId gxs.Id, since time.Time) ([]M, error)
	// SaveMessage stores a message.
	SaveMessage(m M) error
	// CountMessages returns the number of stored messages of a group.
	CountMessages(groupId gxs.Id) (int, error)
}
