// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync_test

import (
	"testing"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxs/gxstest"
	"github.com/zapek/gxs/pkg/gxscrypto"
	"github.com/zapek/gxs/pkg/gxssync"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/statestore/leveldb"
)

func newPersistentStore(t *testing.T) *gxssync.PersistentStore[*testGroup, *testMessage] {
	t.Helper()

	st, err := leveldb.NewInMemoryStateStore(logging.Noop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Error(err)
		}
	})
	return gxssync.NewPersistentStore[*testGroup, *testMessage](st, "forums",
		func() *testGroup { return &testGroup{} },
		func() *testMessage { return &testMessage{} },
	)
}

func TestPersistentStoreGroups(t *testing.T) {
	t.Parallel()

	s := newPersistentStore(t)

	desc := []byte("a place to talk")
	meta := gxstest.Group(t, "test forum", gxs.DiffusionRestricted, desc)
	meta.LastPosted = time.Unix(5000, 0).UTC()
	g := &testGroup{meta: *meta, desc: desc}

	if err := s.SaveGroup(g); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Group(meta.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("group not found after save")
	}
	if got.meta.Name != meta.Name || got.meta.Diffusion != meta.Diffusion {
		t.Fatalf("metadata mismatch: %+v", got.meta)
	}
	if string(got.desc) != string(desc) {
		t.Fatalf("got data %q, want %q", got.desc, desc)
	}
	if !got.meta.Subscribed {
		t.Fatal("subscription flag lost")
	}
	if !got.meta.LastPosted.Equal(meta.LastPosted) {
		t.Fatalf("got last posted %s, want %s", got.meta.LastPosted, meta.LastPosted)
	}
	if got.meta.AdminPrivateKey == nil ||
		!gxscrypto.KeysEqual(&got.meta.AdminPrivateKey.PublicKey, meta.AdminPublicKey) {
		t.Fatal("admin private key lost")
	}
	if got.meta.PublishPrivateKey == nil {
		t.Fatal("publish private key lost")
	}

	// an unknown id is absence, not an error
	if _, ok, err := s.Group(gxs.NewId([]byte{0xff})); err != nil || ok {
		t.Fatalf("got ok=%v err=%v, want absent", ok, err)
	}

	// the publish-time filter is strict
	since, err := s.GroupsUpdatedSince(meta.Published)
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 0 {
		t.Fatalf("got %d groups, want 0", len(since))
	}
	since, err = s.GroupsUpdatedSince(meta.Published.Add(-time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(since) != 1 {
		t.Fatalf("got %d groups, want 1", len(since))
	}
}

func TestPersistentStoreMessages(t *testing.T) {
	t.Parallel()

	s := newPersistentStore(t)

	desc := []byte("d")
	gm := gxstest.Group(t, "test forum", gxs.DiffusionPublic, desc)
	g := &testGroup{meta: *gm, desc: desc}
	if err := s.SaveGroup(g); err != nil {
		t.Fatal(err)
	}

	authorKey, _ := gxstest.Author(t)
	body := []byte("hello world")
	mm := gxstest.Message(t, gm, authorKey, gxs.ZeroMessageId, "hello", body)
	m := &testMessage{meta: *mm, body: body}
	if err := s.SaveMessage(m); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Message(gm.Id, mm.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("message not found after save")
	}
	if string(got.body) != string(body) {
		t.Fatalf("got body %q, want %q", got.body, body)
	}
	if !got.meta.Author.Equal(mm.Author) {
		t.Fatalf("got author %s, want %s", got.meta.Author, mm.Author)
	}

	count, err := s.CountMessages(gm.Id)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("got %d messages, want 1", count)
	}

	msgs, err := s.MessagesSince(gm.Id, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	msgs, err = s.MessagesSince(gm.Id, mm.Published)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("got %d messages, want 0", len(msgs))
	}
}
