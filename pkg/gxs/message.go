// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxs

import (
	"crypto/sha1"
	"time"
)

// MessageMeta is the synchronized metadata of a message posted inside a
// group. The message id is a content hash computed with the id fields
// blanked, which makes it a function of the immutable content only.
type MessageMeta struct {
	GroupId    Id
	Id         MessageId
	ParentId   MessageId // thread parent, zero for root messages
	OriginalId MessageId // set for edits and reposts
	Author     Id
	Name       string
	Published  time.Time

	AuthorSignature  []byte
	PublishSignature []byte

	// Local-only state, never synchronized.
	Hidden bool
}

// IsRoot reports whether the message starts a thread.
func (m *MessageMeta) IsRoot() bool {
	return m.ParentId.IsZero()
}

// MarshalBinary serializes the synchronized part of the metadata,
// including signatures and the message id.
func (m *MessageMeta) MarshalBinary() ([]byte, error) {
	return m.marshal(true, true), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (m *MessageMeta) UnmarshalBinary(b []byte) error {
	r := fieldReader{b: b}
	m.GroupId = r.id()
	m.Id = r.messageId()
	m.ParentId = r.messageId()
	m.OriginalId = r.messageId()
	m.Author = r.id()
	m.Name = r.string()
	m.Published = fromEpoch(r.uint32())
	m.AuthorSignature = r.bytes()
	m.PublishSignature = r.bytes()
	return r.finish()
}

// MarshalLocalBinary serializes the full message record for local
// storage, local flags included.
func (m *MessageMeta) MarshalLocalBinary() ([]byte, error) {
	var w fieldWriter
	w.bytes(m.marshal(true, true))
	w.uint8(boolByte(m.Hidden))
	return w.buf.Bytes(), nil
}

// UnmarshalLocalBinary is the inverse of MarshalLocalBinary.
func (m *MessageMeta) UnmarshalLocalBinary(b []byte) error {
	r := fieldReader{b: b}
	meta := r.bytes()
	m.Hidden = r.uint8() != 0
	if err := r.finish(); err != nil {
		return err
	}
	return m.UnmarshalBinary(meta)
}

// SignaturePayload returns the canonical byte form the message
// signatures are computed over: the id fields and signatures are held
// blank because they are derived from the signed content and must not be
// part of it.
func (m *MessageMeta) SignaturePayload(data []byte) []byte {
	return append(m.marshal(false, false), data...)
}

// ComputeId derives the message id: a hash over the serialized message
// with the id fields blanked. Signatures are part of the hashed content.
func (m *MessageMeta) ComputeId(data []byte) MessageId {
	h := sha1.Sum(append(m.marshal(false, true), data...))
	return NewMessageId(h[:])
}

func (m *MessageMeta) marshal(withIds, withSignatures bool) []byte {
	id := m.Id
	originalId := m.OriginalId
	if !withIds {
		id = ZeroMessageId
		// the original id equals the message id unless the message is an
		// edit, so it is blanked under the same rule
		if originalId.Equal(m.Id) {
			originalId = ZeroMessageId
		}
	}
	var w fieldWriter
	w.id(m.GroupId)
	w.messageId(id)
	w.messageId(m.ParentId)
	w.messageId(originalId)
	w.id(m.Author)
	w.string(m.Name)
	w.uint32(epoch(m.Published))
	if withSignatures {
		w.bytes(m.AuthorSignature)
		w.bytes(m.PublishSignature)
	} else {
		w.bytes(nil)
		w.bytes(nil)
	}
	return w.buf.Bytes()
}
