// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gxs contains the most basic and general GXS concepts:
// content-derived identifiers and the signed metadata carried by
// groups and messages.
package gxs

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// IdSize is the size of a group or author identifier. It is derived
	// from the admin public key of the group it identifies.
	IdSize = 16

	// MessageIdSize is the size of a message identifier. It is a content
	// hash over the serialized message with the id fields blanked.
	MessageIdSize = 20
)

var (
	ErrInvalidIdLength = errors.New("invalid id length")

	// ZeroId is the zero-valued group identifier. An all-zero author id
	// means the content is anonymous.
	ZeroId = Id{}

	// ZeroMessageId is the zero-valued message identifier.
	ZeroMessageId = MessageId{}
)

// Id identifies a group or an author identity. It never changes after
// creation.
type Id struct {
	b []byte
}

// NewId constructs an Id from a byte slice.
func NewId(b []byte) Id {
	return Id{b: b}
}

// ParseHexId returns an Id from a hex-encoded string representation.
func ParseHexId(s string) (Id, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroId, err
	}
	if len(b) != IdSize {
		return ZeroId, fmt.Errorf("%w: %d", ErrInvalidIdLength, len(b))
	}
	return NewId(b), nil
}

// MustParseHexId returns an Id from a hex-encoded string representation,
// and panics if there is a parse error.
func MustParseHexId(s string) Id {
	a, err := ParseHexId(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns a hex-encoded representation of the Id.
func (a Id) String() string {
	return hex.EncodeToString(a.canonical())
}

// Equal returns true if two ids are identical.
func (a Id) Equal(b Id) bool {
	return bytes.Equal(a.canonical(), b.canonical())
}

// IsZero returns true if the Id is not set to any value. An all-zero id
// is considered unset.
func (a Id) IsZero() bool {
	return bytes.Equal(a.canonical(), make([]byte, IdSize))
}

// Bytes returns a fixed-size bytes representation of the Id.
func (a Id) Bytes() []byte {
	return a.canonical()
}

// ByteString returns the raw Id string without encoding.
func (a Id) ByteString() string {
	return string(a.canonical())
}

func (a Id) canonical() []byte {
	if len(a.b) == IdSize {
		return a.b
	}
	c := make([]byte, IdSize)
	copy(c, a.b)
	return c
}

func (a Id) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Id) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := ParseHexId(s)
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// MessageId identifies a message inside a group. It is stable once set
// and is never part of the data that is hashed or signed.
type MessageId struct {
	b []byte
}

// NewMessageId constructs a MessageId from a byte slice.
func NewMessageId(b []byte) MessageId {
	return MessageId{b: b}
}

// ParseHexMessageId returns a MessageId from a hex-encoded string
// representation.
func ParseHexMessageId(s string) (MessageId, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ZeroMessageId, err
	}
	if len(b) != MessageIdSize {
		return ZeroMessageId, fmt.Errorf("%w: %d", ErrInvalidIdLength, len(b))
	}
	return NewMessageId(b), nil
}

// String returns a hex-encoded representation of the MessageId.
func (m MessageId) String() string {
	return hex.EncodeToString(m.canonical())
}

// Equal returns true if two message ids are identical.
func (m MessageId) Equal(o MessageId) bool {
	return bytes.Equal(m.canonical(), o.canonical())
}

// IsZero returns true if the MessageId is not set to any value.
func (m MessageId) IsZero() bool {
	return bytes.Equal(m.canonical(), make([]byte, MessageIdSize))
}

// Bytes returns a fixed-size bytes representation of the MessageId.
func (m MessageId) Bytes() []byte {
	return m.canonical()
}

// ByteString returns the raw MessageId string without encoding.
func (m MessageId) ByteString() string {
	return string(m.canonical())
}

func (m MessageId) canonical() []byte {
	if len(m.b) == MessageIdSize {
		return m.b
	}
	c := make([]byte, MessageIdSize)
	copy(c, m.b)
	return c
}

func (m MessageId) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MessageId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := ParseHexMessageId(s)
	if err != nil {
		return err
	}
	*m = id
	return nil
}

// PeerId identifies a peer connection endpoint. The engine treats it as
// opaque; the transport layer owns its meaning.
type PeerId struct {
	b []byte
}

// NewPeerId constructs a PeerId from a byte slice.
func NewPeerId(b []byte) PeerId {
	return PeerId{b: b}
}

// String returns a hex-encoded representation of the PeerId.
func (p PeerId) String() string {
	return hex.EncodeToString(p.b)
}

// Equal returns true if two peer ids are identical.
func (p PeerId) Equal(o PeerId) bool {
	return bytes.Equal(p.b, o.b)
}

// IsZero returns true if the PeerId is not set to any value.
func (p PeerId) IsZero() bool {
	return len(p.b) == 0
}

// Bytes returns a bytes representation of the PeerId.
func (p PeerId) Bytes() []byte {
	return p.b
}
