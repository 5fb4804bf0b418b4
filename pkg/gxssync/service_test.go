// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxs/gxstest"
	"github.com/zapek/gxs/pkg/gxssync"
	mocks "github.com/zapek/gxs/pkg/gxssync/mock"
	"github.com/zapek/gxs/pkg/gxsverify"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/logging"
	mockstate "github.com/zapek/gxs/pkg/statestore/mock"
	"github.com/zapek/gxs/pkg/transport"
	mockt "github.com/zapek/gxs/pkg/transport/mock"
	"github.com/zapek/gxs/pkg/wire"
)

const testServiceType = 0x0211

type testGroup struct {
	meta gxs.GroupMeta
	desc []byte
}

func (g *testGroup) GroupMeta() *gxs.GroupMeta    { return &g.meta }
func (g *testGroup) MarshalData() ([]byte, error) { return g.desc, nil }
func (g *testGroup) UnmarshalData(b []byte) error { g.desc = b; return nil }

type testMessage struct {
	meta gxs.MessageMeta
	body []byte
}

func (m *testMessage) MessageMeta() *gxs.MessageMeta { return &m.meta }
func (m *testMessage) MarshalData() ([]byte, error)  { return m.body, nil }
func (m *testMessage) UnmarshalData(b []byte) error  { m.body = b; return nil }

type testProvider struct {
	requirements *gxsverify.Requirements

	mtx           sync.Mutex
	savedGroups   []*testGroup
	savedMessages []*testMessage
}

func (p *testProvider) NewGroup() *testGroup                       { return &testGroup{} }
func (p *testProvider) NewMessage() *testMessage                   { return &testMessage{} }
func (p *testProvider) Requirements() *gxsverify.Requirements      { return p.requirements }
func (p *testProvider) PeerCanSee(transport.Peer, *testGroup) bool { return true }

func (p *testProvider) WantGroups(_ transport.Peer, ids []gxs.Id) []gxs.Id {
	return ids
}

func (p *testProvider) WantMessages(_ transport.Peer, _ *testGroup, ids []gxs.MessageId) []gxs.MessageId {
	return ids
}

func (p *testProvider) OnGroupsSaved(groups []*testGroup) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.savedGroups = append(p.savedGroups, groups...)
}

func (p *testProvider) OnMessagesSaved(messages []*testMessage) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.savedMessages = append(p.savedMessages, messages...)
}

func (p *testProvider) groupCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.savedGroups)
}

func (p *testProvider) messageCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.savedMessages)
}

type node struct {
	peer     transport.Peer
	endpoint *mockt.Transport
	store    *mocks.Store[*testGroup, *testMessage]
	provider *testProvider
	cache    *identity.Cache
	svc      *gxssync.Service[*testGroup, *testMessage]
}

func newNode(t *testing.T, network *mockt.Network, name string, requirements *gxsverify.Requirements) *node {
	t.Helper()

	id := gxs.NewPeerId([]byte(name))
	endpoint := network.Register(id)
	store := mocks.NewStore[*testGroup, *testMessage]()
	provider := &testProvider{requirements: requirements}
	cache, err := identity.NewCache(100)
	if err != nil {
		t.Fatal(err)
	}
	svc := gxssync.New[*testGroup, *testMessage](
		testServiceType, endpoint, store, mockstate.NewStateStore(),
		provider, cache, logging.Noop(),
		gxssync.Options{SyncPeriod: time.Hour},
	)
	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Error(err)
		}
	})
	return &node{
		peer:     transport.Peer{Id: id},
		endpoint: endpoint,
		store:    store,
		provider: provider,
		cache:    cache,
		svc:      svc,
	}
}

// createForum makes a locally owned, signed group on the node and bumps
// its content clock, as a content service would.
func createForum(t *testing.T, n *node, name string, desc []byte) *testGroup {
	t.Helper()

	meta := gxstest.Group(t, name, gxs.DiffusionPublic, desc)
	g := &testGroup{meta: *meta, desc: desc}
	if err := n.store.SaveGroup(g); err != nil {
		t.Fatal(err)
	}
	if _, err := n.svc.Updates().SetLastServiceUpdateNow(); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestGroupPropagation(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	network.Connect(a.endpoint, b.endpoint)

	g := createForum(t, a, "test forum", []byte("a place to talk"))

	b.svc.SyncNow(context.Background(), a.peer)

	got, ok, err := b.store.Group(g.meta.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("group did not propagate")
	}
	if got.meta.Name != "test forum" {
		t.Fatalf("got name %q, want %q", got.meta.Name, "test forum")
	}
	if string(got.desc) != "a place to talk" {
		t.Fatalf("got data %q, want %q", got.desc, "a place to talk")
	}
	if !got.meta.Subscribed {
		t.Fatal("fetched group must be subscribed")
	}
	if !got.meta.External {
		t.Fatal("fetched group must be marked external")
	}
	if got.meta.AdminPrivateKey != nil {
		t.Fatal("private keys must never cross the wire")
	}

	// the watermark is the producer's clock value
	want, err := a.svc.Updates().LastServiceUpdate()
	if err != nil {
		t.Fatal(err)
	}
	gotMark, err := b.svc.Updates().LastPeerUpdate(a.peer)
	if err != nil {
		t.Fatal(err)
	}
	if !gotMark.Equal(want) {
		t.Fatalf("got watermark %s, want %s", gotMark, want)
	}
}

func TestGroupSyncIdempotent(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	network.Connect(a.endpoint, b.endpoint)

	createForum(t, a, "test forum", []byte("d"))

	b.svc.SyncNow(context.Background(), a.peer)
	if got := b.provider.groupCount(); got != 1 {
		t.Fatalf("got %d saved groups, want 1", got)
	}

	// nothing new on either side, so further rounds save nothing
	b.svc.SyncNow(context.Background(), a.peer)
	b.svc.SyncNow(context.Background(), a.peer)
	if got := b.provider.groupCount(); got != 1 {
		t.Fatalf("got %d saved groups after resync, want 1", got)
	}
}

func TestMessagePropagation(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{
		Public:     gxsverify.RootPublish | gxsverify.ChildPublish,
		Restricted: gxsverify.RootPublish | gxsverify.ChildPublish,
		Private:    gxsverify.RootPublish | gxsverify.ChildPublish,
	}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	network.Connect(a.endpoint, b.endpoint)

	g := createForum(t, a, "test forum", []byte("d"))
	b.svc.SyncNow(context.Background(), a.peer)

	body := []byte("first post")
	meta := gxstest.Message(t, &g.meta, nil, gxs.ZeroMessageId, "hello", body)
	msg := &testMessage{meta: *meta, body: body}
	if err := a.store.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}
	g.meta.LastPosted = time.Now().Truncate(time.Second).UTC()
	if err := a.store.SaveGroup(g); err != nil {
		t.Fatal(err)
	}

	b.svc.SyncNow(context.Background(), a.peer)

	got, ok, err := b.store.Message(g.meta.Id, meta.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("message did not propagate")
	}
	if string(got.body) != "first post" {
		t.Fatalf("got body %q, want %q", got.body, "first post")
	}

	// watermark equals the sender's post clock, not the local time
	gotMark, err := b.svc.Updates().LastPeerMessageUpdate(a.peer, g.meta.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !gotMark.Equal(g.meta.LastPosted) {
		t.Fatalf("got watermark %s, want %s", gotMark, g.meta.LastPosted)
	}

	// redelivery rounds save nothing new
	b.svc.SyncNow(context.Background(), a.peer)
	if got := b.provider.messageCount(); got != 1 {
		t.Fatalf("got %d saved messages, want 1", got)
	}
}

func TestTamperedGroupRejected(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	network.Connect(a.endpoint, b.endpoint)

	g := createForum(t, a, "test forum", []byte("d"))
	g.meta.AdminSignature[0] ^= 0x01
	if err := a.store.SaveGroup(g); err != nil {
		t.Fatal(err)
	}

	b.svc.SyncNow(context.Background(), a.peer)

	if _, ok, _ := b.store.Group(g.meta.Id); ok {
		t.Fatal("tampered group must not be stored")
	}
	if got := b.provider.groupCount(); got != 0 {
		t.Fatalf("got %d saved groups, want 0", got)
	}
}

func TestDelayedAuthorResolution(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{
		Public: gxsverify.RootAuthor | gxsverify.ChildAuthor,
	}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	network.Connect(a.endpoint, b.endpoint)

	g := createForum(t, a, "test forum", []byte("d"))
	b.svc.SyncNow(context.Background(), a.peer)

	authorKey, authorId := gxstest.Author(t)
	body := []byte("signed post")
	meta := gxstest.Message(t, &g.meta, authorKey, gxs.ZeroMessageId, "hello", body)
	msg := &testMessage{meta: *meta, body: body}
	if err := a.store.SaveMessage(msg); err != nil {
		t.Fatal(err)
	}
	g.meta.LastPosted = time.Now().Truncate(time.Second).UTC()
	if err := a.store.SaveGroup(g); err != nil {
		t.Fatal(err)
	}

	// the author is unknown at b, so the message parks in the pending
	// queue instead of the store
	b.svc.SyncNow(context.Background(), a.peer)
	if _, ok, _ := b.store.Message(g.meta.Id, meta.Id); ok {
		t.Fatal("message with unknown author must not be stored yet")
	}
	if got := b.svc.Pending().Len(); got != 1 {
		t.Fatalf("got %d pending, want 1", got)
	}

	// the author's identity arrives and the next retry stores it
	b.cache.Add(a.peer, authorId, &authorKey.PublicKey)
	b.svc.Pending().Tick()

	if _, ok, _ := b.store.Message(g.meta.Id, meta.Id); !ok {
		t.Fatal("message must be stored after the author resolved")
	}
	if got := b.svc.Pending().Len(); got != 0 {
		t.Fatalf("got %d pending, want 0", got)
	}
}

func TestGossipNotify(t *testing.T) {
	t.Parallel()

	requirements := &gxsverify.Requirements{}
	network := mockt.NewNetwork()
	a := newNode(t, network, "peer-a", requirements)
	b := newNode(t, network, "peer-b", requirements)
	c := newNode(t, network, "peer-c", requirements)
	network.Connect(a.endpoint, b.endpoint)
	network.Connect(b.endpoint, c.endpoint)

	g := createForum(t, a, "test forum", []byte("d"))

	b.svc.SyncNow(context.Background(), a.peer)

	// b accepted new content and pings c, but not a, where it came from
	var toC, toA int
	for _, r := range b.endpoint.Records(c.peer) {
		if r.Item.Type() == wire.TypeSyncNotify {
			toC++
		}
	}
	for _, r := range b.endpoint.Records(a.peer) {
		if r.Item.Type() == wire.TypeSyncNotify {
			toA++
		}
	}
	if toC == 0 {
		t.Fatal("no notify gossiped onward")
	}
	if toA != 0 {
		t.Fatal("notify must not go back to the sender")
	}

	// the content then travels the second hop
	c.svc.SyncNow(context.Background(), b.peer)
	if _, ok, _ := c.store.Group(g.meta.Id); !ok {
		t.Fatal("group did not propagate over two hops")
	}
}
