// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxs_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxs/gxstest"
	"github.com/zapek/gxs/pkg/gxscrypto"
)

func TestGroupMetaWireRoundTrip(t *testing.T) {
	t.Parallel()

	g := gxstest.Group(t, "test forum", gxs.DiffusionRestricted, []byte("d"))
	b, err := g.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	var got gxs.GroupMeta
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}

	opts := []cmp.Option{
		cmp.Comparer(func(a, b gxs.Id) bool { return a.Equal(b) }),
		cmpopts.IgnoreFields(gxs.GroupMeta{},
			"AdminPublicKey", "PublishPublicKey",
			"AdminPrivateKey", "PublishPrivateKey",
			"Subscribed", "LastPosted", "External"),
	}
	if diff := cmp.Diff(*g, got, opts...); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if !gxscrypto.KeysEqual(g.AdminPublicKey, got.AdminPublicKey) {
		t.Fatal("admin public key mismatch")
	}
	// local-only state never goes on the wire
	if got.Subscribed || got.AdminPrivateKey != nil || got.PublishPrivateKey != nil {
		t.Fatal("local-only fields leaked onto the wire")
	}
}

func TestGroupSignaturePayloadExcludesSignatures(t *testing.T) {
	t.Parallel()

	data := []byte("d")
	g := gxstest.Group(t, "test forum", gxs.DiffusionPublic, data)

	before := g.SignaturePayload(data)
	g.AdminSignature = []byte("something else entirely")
	g.AuthorSignature = []byte("also different")
	after := g.SignaturePayload(data)

	// the signatures cover everything except themselves
	if !bytes.Equal(before, after) {
		t.Fatal("signature payload must not depend on the signatures")
	}

	g.Name = "renamed"
	if bytes.Equal(before, g.SignaturePayload(data)) {
		t.Fatal("signature payload must cover the metadata")
	}
	g.Name = "test forum"
	if bytes.Equal(before, g.SignaturePayload([]byte("other data"))) {
		t.Fatal("signature payload must cover the service data")
	}
}

func TestGroupIdCommitsToAdminKey(t *testing.T) {
	t.Parallel()

	g := gxstest.Group(t, "test forum", gxs.DiffusionPublic, []byte("d"))
	if !gxscrypto.NewId(g.AdminPublicKey).Equal(g.Id) {
		t.Fatal("group id must derive from the admin key")
	}
	other := gxstest.Key(t)
	if gxscrypto.NewId(&other.PublicKey).Equal(g.Id) {
		t.Fatal("a different key must give a different id")
	}
}

func TestGroupMetaLocalRoundTrip(t *testing.T) {
	t.Parallel()

	g := gxstest.Group(t, "test forum", gxs.DiffusionPrivate, []byte("d"))
	g.External = true

	b, err := g.MarshalLocalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got gxs.GroupMeta
	if err := got.UnmarshalLocalBinary(b); err != nil {
		t.Fatal(err)
	}

	if !got.Subscribed || !got.External {
		t.Fatal("local flags lost")
	}
	if got.AdminPrivateKey == nil || got.AdminPrivateKey.N.Cmp(g.AdminPrivateKey.N) != 0 {
		t.Fatal("admin private key lost")
	}
	if got.PublishPrivateKey == nil {
		t.Fatal("publish private key lost")
	}
	if got.Name != g.Name || !got.Id.Equal(g.Id) {
		t.Fatal("metadata lost")
	}
}
