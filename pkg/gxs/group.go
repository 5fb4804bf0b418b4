// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxs

import (
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// Diffusion describes who a group is visible to. It selects which set of
// authentication requirements applies to the group's messages.
type Diffusion uint8

const (
	DiffusionPublic Diffusion = iota
	DiffusionRestricted
	DiffusionPrivate
)

func (d Diffusion) String() string {
	switch d {
	case DiffusionPublic:
		return "Public"
	case DiffusionRestricted:
		return "Restricted"
	case DiffusionPrivate:
		return "Private"
	default:
		return "Unknown"
	}
}

// GroupMeta is the synchronized metadata of a group. Content services
// embed it in their group types; the sync engine only ever needs the
// metadata plus the service's opaque data blob.
//
// The group id is derived from the admin public key and never changes
// after creation.
type GroupMeta struct {
	Id         Id
	OriginalId Id
	ParentId   Id
	Name       string
	Diffusion  Diffusion
	Published  time.Time
	Author     Id // all zero if anonymous
	CircleId   Id

	AdminPublicKey   *rsa.PublicKey
	PublishPublicKey *rsa.PublicKey

	AdminSignature  []byte
	AuthorSignature []byte

	// Local-only state, never synchronized.
	AdminPrivateKey   *rsa.PrivateKey
	PublishPrivateKey *rsa.PrivateKey
	Subscribed        bool
	LastPosted        time.Time
	External          bool
}

// MarshalBinary serializes the synchronized part of the metadata,
// including signatures. Local-only fields and private keys stay out.
func (g *GroupMeta) MarshalBinary() ([]byte, error) {
	return g.marshal(true), nil
}

// SignaturePayload returns the canonical byte form the group signatures
// are computed over: the metadata with the signature-bearing fields held
// empty, followed by the service data.
func (g *GroupMeta) SignaturePayload(data []byte) []byte {
	return append(g.marshal(false), data...)
}

func (g *GroupMeta) marshal(withSignatures bool) []byte {
	var w fieldWriter
	w.id(g.Id)
	w.id(g.OriginalId)
	w.id(g.ParentId)
	w.string(g.Name)
	w.uint8(uint8(g.Diffusion))
	w.uint32(epoch(g.Published))
	w.id(g.Author)
	w.id(g.CircleId)
	w.bytes(marshalPublicKey(g.AdminPublicKey))
	w.bytes(marshalPublicKey(g.PublishPublicKey))
	if withSignatures {
		w.bytes(g.AdminSignature)
		w.bytes(g.AuthorSignature)
	} else {
		w.bytes(nil)
		w.bytes(nil)
	}
	return w.buf.Bytes()
}

// MarshalLocalBinary serializes the full group record for local
// storage: the synchronized metadata plus the private keys and local
// flags that never go on the wire.
func (g *GroupMeta) MarshalLocalBinary() ([]byte, error) {
	var w fieldWriter
	w.bytes(g.marshal(true))
	w.bytes(marshalPrivateKey(g.AdminPrivateKey))
	w.bytes(marshalPrivateKey(g.PublishPrivateKey))
	w.uint8(boolByte(g.Subscribed))
	w.uint32(epoch(g.LastPosted))
	w.uint8(boolByte(g.External))
	return w.buf.Bytes(), nil
}

// UnmarshalLocalBinary is the inverse of MarshalLocalBinary.
func (g *GroupMeta) UnmarshalLocalBinary(b []byte) error {
	r := fieldReader{b: b}
	meta := r.bytes()
	adminKey := r.bytes()
	publishKey := r.bytes()
	g.Subscribed = r.uint8() != 0
	g.LastPosted = fromEpoch(r.uint32())
	g.External = r.uint8() != 0
	if err := r.finish(); err != nil {
		return err
	}
	if err := g.UnmarshalBinary(meta); err != nil {
		return err
	}
	var err error
	if g.AdminPrivateKey, err = unmarshalPrivateKey(adminKey); err != nil {
		return err
	}
	if g.PublishPrivateKey, err = unmarshalPrivateKey(publishKey); err != nil {
		return err
	}
	return nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (g *GroupMeta) UnmarshalBinary(b []byte) error {
	r := fieldReader{b: b}
	g.Id = r.id()
	g.OriginalId = r.id()
	g.ParentId = r.id()
	g.Name = r.string()
	g.Diffusion = Diffusion(r.uint8())
	g.Published = fromEpoch(r.uint32())
	g.Author = r.id()
	g.CircleId = r.id()
	adminKey := r.bytes()
	publishKey := r.bytes()
	g.AdminSignature = r.bytes()
	g.AuthorSignature = r.bytes()
	if err := r.finish(); err != nil {
		return err
	}
	var err error
	if g.AdminPublicKey, err = unmarshalPublicKey(adminKey); err != nil {
		return err
	}
	if g.PublishPublicKey, err = unmarshalPublicKey(publishKey); err != nil {
		return err
	}
	return nil
}

func marshalPublicKey(k *rsa.PublicKey) []byte {
	if k == nil {
		return nil
	}
	return x509.MarshalPKCS1PublicKey(k)
}

func unmarshalPublicKey(b []byte) (*rsa.PublicKey, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return x509.ParsePKCS1PublicKey(b)
}

func marshalPrivateKey(k *rsa.PrivateKey) []byte {
	if k == nil {
		return nil
	}
	return x509.MarshalPKCS1PrivateKey(k)
}

func unmarshalPrivateKey(b []byte) (*rsa.PrivateKey, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return x509.ParsePKCS1PrivateKey(b)
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

func epoch(t time.Time) uint32 {
	if t.IsZero() {
		return 0
	}
	return uint32(t.Unix())
}

func fromEpoch(s uint32) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0).UTC()
}
