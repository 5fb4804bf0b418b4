// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package identity_test

import (
	"testing"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxs/gxstest"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/transport"
)

func TestCacheScopedPerPeer(t *testing.T) {
	t.Parallel()

	cache, err := identity.NewCache(10)
	if err != nil {
		t.Fatal(err)
	}
	peerA := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}
	peerB := transport.Peer{Id: gxs.NewPeerId([]byte("peer-b"))}
	key, author := gxstest.Author(t)

	if _, ok := cache.PublicKey(peerA, author); ok {
		t.Fatal("empty cache must miss")
	}

	cache.Add(peerA, author, &key.PublicKey)

	got, ok := cache.PublicKey(peerA, author)
	if !ok || got != &key.PublicKey {
		t.Fatal("cached key lost")
	}
	// a key learned through one peer says nothing about another link
	if _, ok := cache.PublicKey(peerB, author); ok {
		t.Fatal("key must not leak across peers")
	}
}

func TestCacheEvicts(t *testing.T) {
	t.Parallel()

	cache, err := identity.NewCache(2)
	if err != nil {
		t.Fatal(err)
	}
	peer := transport.Peer{Id: gxs.NewPeerId([]byte("peer-a"))}

	keys := make([]gxs.Id, 3)
	for i := range keys {
		key, author := gxstest.Author(t)
		keys[i] = author
		cache.Add(peer, author, &key.PublicKey)
	}

	if _, ok := cache.PublicKey(peer, keys[0]); ok {
		t.Fatal("oldest entry must be evicted")
	}
	if _, ok := cache.PublicKey(peer, keys[2]); !ok {
		t.Fatal("newest entry must survive")
	}
}
