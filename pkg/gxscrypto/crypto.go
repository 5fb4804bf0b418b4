// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gxscrypto provides the key generation, id derivation and
// signature primitives used by GXS groups and messages.
package gxscrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"errors"

	"github.com/zapek/gxs/pkg/gxs"
)

const KeyBits = 2048

var ErrNoPrivateKey = errors.New("gxscrypto: no private key")

// GenerateKey generates an RSA keypair for a group admin or publish key.
func GenerateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeyBits)
}

// NewId derives the group id from its admin public key. The id is a
// truncated digest of the PKCS#1 form of the key, which makes the id a
// commitment to the key it was created with.
func NewId(pub *rsa.PublicKey) gxs.Id {
	h := sha1.Sum(x509.MarshalPKCS1PublicKey(pub))
	return gxs.NewId(h[:gxs.IdSize])
}

// Sign signs the payload with the given private key.
func Sign(payload []byte, key *rsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNoPrivateKey
	}
	digest := sha1.Sum(payload)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
}

// Verify checks the signature of the payload against the given public
// key.
func Verify(payload, signature []byte, key *rsa.PublicKey) bool {
	if key == nil {
		return false
	}
	digest := sha1.Sum(payload)
	return rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], signature) == nil
}

// KeysEqual reports whether two public keys are the same key. It is used
// to tell a wrong signature apart from an attempted key swap.
func KeysEqual(a, b *rsa.PublicKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.E == b.E && a.N.Cmp(b.N) == 0
}
