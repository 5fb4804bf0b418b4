// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package identity provides the author public-key lookup the
// verification pipeline depends on. A key is looked up per peer
// connection, so an identity known through one peer does not leak into
// verifying content claimed through another.
package identity

import (
	"crypto/rsa"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/transport"
)

// Lookup resolves an author id to its public key as known through the
// given peer connection. Absence is not an error; it is what makes a
// verification DELAYED.
type Lookup interface {
	PublicKey(peer transport.Peer, author gxs.Id) (*rsa.PublicKey, bool)
}

var _ Lookup = (*Cache)(nil)

// Cache is the local author-key cache. The identity content service
// fills it as identities arrive; the verification pipeline reads it.
type Cache struct {
	keys *lru.Cache[string, *rsa.PublicKey]
}

func NewCache(capacity int) (*Cache, error) {
	keys, err := lru.New[string, *rsa.PublicKey](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{keys: keys}, nil
}

// Add caches the author's public key as learned through the peer.
func (c *Cache) Add(peer transport.Peer, author gxs.Id, key *rsa.PublicKey) {
	c.keys.Add(cacheKey(peer, author), key)
}

// PublicKey implements Lookup.
func (c *Cache) PublicKey(peer transport.Peer, author gxs.Id) (*rsa.PublicKey, bool) {
	return c.keys.Get(cacheKey(peer, author))
}

func cacheKey(peer transport.Peer, author gxs.Id) string {
	return fmt.Sprintf("%s|%s", peer.Id.String(), author.String())
}
