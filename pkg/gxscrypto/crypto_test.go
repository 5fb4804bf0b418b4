// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxscrypto_test

import (
	"testing"

	"github.com/zapek/gxs/pkg/gxscrypto"
)

func TestSignVerify(t *testing.T) {
	t.Parallel()

	key, err := gxscrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("some signed content")

	sig, err := gxscrypto.Sign(payload, key)
	if err != nil {
		t.Fatal(err)
	}
	if !gxscrypto.Verify(payload, sig, &key.PublicKey) {
		t.Fatal("valid signature rejected")
	}
	if gxscrypto.Verify([]byte("other content"), sig, &key.PublicKey) {
		t.Fatal("signature verified against different content")
	}

	sig[0] ^= 0x01
	if gxscrypto.Verify(payload, sig, &key.PublicKey) {
		t.Fatal("flipped signature accepted")
	}

	if gxscrypto.Verify(payload, sig, nil) {
		t.Fatal("nil key accepted")
	}
	if _, err := gxscrypto.Sign(payload, nil); err == nil {
		t.Fatal("signing without a key must fail")
	}
}

func TestKeysEqual(t *testing.T) {
	t.Parallel()

	a, err := gxscrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b, err := gxscrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if !gxscrypto.KeysEqual(&a.PublicKey, &a.PublicKey) {
		t.Fatal("key must equal itself")
	}
	if gxscrypto.KeysEqual(&a.PublicKey, &b.PublicKey) {
		t.Fatal("different keys must not be equal")
	}
	if gxscrypto.KeysEqual(&a.PublicKey, nil) {
		t.Fatal("nil is not any key")
	}
}

func TestNewIdDeterministic(t *testing.T) {
	t.Parallel()

	key, err := gxscrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if !gxscrypto.NewId(&key.PublicKey).Equal(gxscrypto.NewId(&key.PublicKey)) {
		t.Fatal("id derivation must be deterministic")
	}
}
