// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"errors"
	"fmt"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/storage"
	"github.com/zapek/gxs/pkg/transport"
)

// UpdateStore keeps the sync watermarks. A watermark is always a value
// of the producing side's clock, handed over inside the protocol; the
// local clock never gets mixed in. All watermarks only move forward.
type UpdateStore struct {
	store       storage.StateStorer
	serviceType uint16
	now         func() time.Time
}

func NewUpdateStore(store storage.StateStorer, serviceType uint16) *UpdateStore {
	return &UpdateStore{
		store:       store,
		serviceType: serviceType,
		now:         time.Now,
	}
}

// LastPeerUpdate returns how far the peer's group list was synced: the
// peer's own clock value it sent along with the last completed group
// sync. Zero when the peer was never synced.
func (u *UpdateStore) LastPeerUpdate(peer transport.Peer) (time.Time, error) {
	return u.get(u.peerKey(peer))
}

// SetLastPeerUpdate advances the peer's group watermark. A value not
// newer than the stored one is ignored, so a watermark never regresses.
func (u *UpdateStore) SetLastPeerUpdate(peer transport.Peer, t time.Time) error {
	return u.advance(u.peerKey(peer), t)
}

// LastPeerMessageUpdate returns how far one group's messages were
// synced from the peer.
func (u *UpdateStore) LastPeerMessageUpdate(peer transport.Peer, groupId gxs.Id) (time.Time, error) {
	return u.get(u.peerGroupKey(peer, groupId))
}

// SetLastPeerMessageUpdate advances the peer's message watermark for
// one group.
func (u *UpdateStore) SetLastPeerMessageUpdate(peer transport.Peer, groupId gxs.Id, t time.Time) error {
	return u.advance(u.peerGroupKey(peer, groupId), t)
}

// LastServiceUpdate is the local content clock: the time our own group
// list last changed. Peers compare their watermarks against it.
func (u *UpdateStore) LastServiceUpdate() (time.Time, error) {
	return u.get(u.serviceKey())
}

// SetLastServiceUpdateNow bumps the local content clock and returns the
// new value.
func (u *UpdateStore) SetLastServiceUpdateNow() (time.Time, error) {
	t := u.now().Truncate(time.Second).UTC()

	// a burst of local changes within one second still moves the clock
	last, err := u.get(u.serviceKey())
	if err != nil {
		return time.Time{}, err
	}
	if !t.After(last) {
		t = last.Add(time.Second)
	}
	if err := u.advance(u.serviceKey(), t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func (u *UpdateStore) get(key string) (time.Time, error) {
	var s int64
	if err := u.store.Get(key, &s); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Unix(s, 0).UTC(), nil
}

func (u *UpdateStore) advance(key string, t time.Time) error {
	t = t.Truncate(time.Second)
	last, err := u.get(key)
	if err != nil {
		return err
	}
	if !t.After(last) {
		return nil
	}
	return u.store.Put(key, t.Unix())
}

func (u *UpdateStore) peerKey(peer transport.Peer) string {
	return fmt.Sprintf("gxs_%04x_peer_%s", u.serviceType, peer)
}

func (u *UpdateStore) peerGroupKey(peer transport.Peer, groupId gxs.Id) string {
	return fmt.Sprintf("gxs_%04x_peer_%s_group_%s", u.serviceType, peer, groupId)
}

func (u *UpdateStore) serviceKey() string {
	return fmt.Sprintf("gxs_%04x_last_update", u.serviceType)
}
