// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync_test

import (
	"testing"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxssync"
	mockstate "github.com/zapek/gxs/pkg/statestore/mock"
	"github.com/zapek/gxs/pkg/transport"
)

func TestWatermarksNeverRegress(t *testing.T) {
	t.Parallel()

	u := gxssync.NewUpdateStore(mockstate.NewStateStore(), testServiceType)
	peer := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}
	groupId := gxs.NewId([]byte{1})

	later := time.Unix(2000, 0).UTC()
	earlier := time.Unix(1000, 0).UTC()

	if err := u.SetLastPeerUpdate(peer, later); err != nil {
		t.Fatal(err)
	}
	if err := u.SetLastPeerUpdate(peer, earlier); err != nil {
		t.Fatal(err)
	}
	got, err := u.LastPeerUpdate(peer)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(later) {
		t.Fatalf("got %s, want %s", got, later)
	}

	if err := u.SetLastPeerMessageUpdate(peer, groupId, later); err != nil {
		t.Fatal(err)
	}
	if err := u.SetLastPeerMessageUpdate(peer, groupId, earlier); err != nil {
		t.Fatal(err)
	}
	got, err = u.LastPeerMessageUpdate(peer, groupId)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(later) {
		t.Fatalf("got %s, want %s", got, later)
	}
}

func TestWatermarkDefaultsToEpoch(t *testing.T) {
	t.Parallel()

	u := gxssync.NewUpdateStore(mockstate.NewStateStore(), testServiceType)
	peer := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	got, err := u.LastPeerUpdate(peer)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Fatalf("got %s, want zero", got)
	}
}

func TestContentClockAlwaysMoves(t *testing.T) {
	t.Parallel()

	u := gxssync.NewUpdateStore(mockstate.NewStateStore(), testServiceType)

	// two bumps inside the same second still give distinct clock values
	first, err := u.SetLastServiceUpdateNow()
	if err != nil {
		t.Fatal(err)
	}
	second, err := u.SetLastServiceUpdateNow()
	if err != nil {
		t.Fatal(err)
	}
	if !second.After(first) {
		t.Fatalf("clock did not move: %s then %s", first, second)
	}

	got, err := u.LastServiceUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(second) {
		t.Fatalf("got %s, want %s", got, second)
	}
}
