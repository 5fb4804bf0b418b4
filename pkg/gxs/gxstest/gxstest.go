// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gxstest provides signed group and message fixtures for
// protocol tests.
package gxstest

import (
	"crypto/rsa"
	"testing"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxscrypto"
)

// Key generates an RSA keypair, failing the test on error.
func Key(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := gxscrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// Author generates an author identity: its keypair and the id derived
// from the public key.
func Author(t testing.TB) (*rsa.PrivateKey, gxs.Id) {
	t.Helper()
	key := Key(t)
	return key, gxscrypto.NewId(&key.PublicKey)
}

// Group creates a fully signed group owned by the caller, private keys
// included. data is the content service's opaque blob the admin
// signature covers.
func Group(t testing.TB, name string, diffusion gxs.Diffusion, data []byte) *gxs.GroupMeta {
	t.Helper()

	adminKey := Key(t)
	publishKey := Key(t)

	g := &gxs.GroupMeta{
		Id:                gxscrypto.NewId(&adminKey.PublicKey),
		Name:              name,
		Diffusion:         diffusion,
		Published:         time.Now().Truncate(time.Second).UTC(),
		AdminPublicKey:    &adminKey.PublicKey,
		PublishPublicKey:  &publishKey.PublicKey,
		AdminPrivateKey:   adminKey,
		PublishPrivateKey: publishKey,
		Subscribed:        true,
	}
	SignGroup(t, g, data)
	return g
}

// SignGroup recomputes the group's admin signature, and its author
// signature when an author key is attached through AuthorKey.
func SignGroup(t testing.TB, g *gxs.GroupMeta, data []byte) {
	t.Helper()

	sig, err := gxscrypto.Sign(g.SignaturePayload(data), g.AdminPrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	g.AdminSignature = sig
}

// Message creates a fully signed message in the group: author signature
// when authorKey is given, publish signature from the group's publish
// key, and the content-derived id. parent is zero for thread roots.
func Message(t testing.TB, g *gxs.GroupMeta, authorKey *rsa.PrivateKey, parent gxs.MessageId, name string, data []byte) *gxs.MessageMeta {
	t.Helper()

	m := &gxs.MessageMeta{
		GroupId:   g.Id,
		ParentId:  parent,
		Name:      name,
		Published: time.Now().Truncate(time.Second).UTC(),
	}
	if authorKey != nil {
		m.Author = gxscrypto.NewId(&authorKey.PublicKey)
	}

	payload := m.SignaturePayload(data)
	if authorKey != nil {
		sig, err := gxscrypto.Sign(payload, authorKey)
		if err != nil {
			t.Fatal(err)
		}
		m.AuthorSignature = sig
	}
	if g.PublishPrivateKey != nil {
		sig, err := gxscrypto.Sign(payload, g.PublishPrivateKey)
		if err != nil {
			t.Fatal(err)
		}
		m.PublishSignature = sig
	}

	m.Id = m.ComputeId(data)
	m.OriginalId = m.Id
	return m
}
