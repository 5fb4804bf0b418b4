// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire defines the protocol item payloads exchanged between
// peers by the sync engine, together with their explicit binary
// encoding. Every codec is a hand-written, closed mapping from struct
// fields to wire order.
package wire

import (
	"errors"
	"fmt"
)

// ItemType tags an item on the wire.
type ItemType uint8

const (
	TypeSyncGroupRequest ItemType = iota + 1
	TypeSyncGroupItem
	TypeSyncMessageRequest
	TypeSyncMessageItem
	TypeSyncNotify
	TypeSyncGroupStats
	TypeTransferGroup
	TypeTransferMessage
	TypeTransaction
)

func (t ItemType) String() string {
	switch t {
	case TypeSyncGroupRequest:
		return "SyncGroupRequest"
	case TypeSyncGroupItem:
		return "SyncGroupItem"
	case TypeSyncMessageRequest:
		return "SyncMessageRequest"
	case TypeSyncMessageItem:
		return "SyncMessageItem"
	case TypeSyncNotify:
		return "SyncNotify"
	case TypeSyncGroupStats:
		return "SyncGroupStats"
	case TypeTransferGroup:
		return "TransferGroup"
	case TypeTransferMessage:
		return "TransferMessage"
	case TypeTransaction:
		return "Transaction"
	default:
		return "Unknown"
	}
}

// Direction tells whether a batched sync item asks for content or
// advertises it.
type Direction uint8

const (
	Request Direction = iota + 1
	Response
)

// Transaction control and type flags. A START item carries exactly one
// type flag describing what the batch represents.
type Flags uint16

const (
	FlagStart Flags = 1 << iota
	FlagStartAcknowledge
	FlagEndSuccess
	FlagEndFailure

	FlagTypeGroupListRequest
	FlagTypeGroupListResponse
	FlagTypeGroups
	FlagTypeMessageListRequest
	FlagTypeMessageListResponse
	FlagTypeMessages
)

const typeFlagsMask = FlagTypeGroupListRequest | FlagTypeGroupListResponse |
	FlagTypeGroups | FlagTypeMessageListRequest | FlagTypeMessageListResponse |
	FlagTypeMessages

// Has reports whether all of the given flags are set.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// TypeFlags returns only the batch-type flags.
func (f Flags) TypeFlags() Flags {
	return f & typeFlagsMask
}

// Item is a protocol payload addressed to a content service. Items that
// belong to a transaction batch carry its id; control-plane requests
// carry zero.
type Item interface {
	Type() ItemType
	TransactionId() uint32
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

var (
	ErrUnknownItemType = errors.New("wire: unknown item type")
	ErrBufferTooShort  = errors.New("wire: buffer too short")
)

// Marshal frames an item as a type byte followed by its payload.
func Marshal(item Item) ([]byte, error) {
	b, err := item.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(item.Type())}, b...), nil
}

// Unmarshal is the inverse of Marshal.
func Unmarshal(b []byte) (Item, error) {
	if len(b) < 1 {
		return nil, ErrBufferTooShort
	}
	var item Item
	switch ItemType(b[0]) {
	case TypeSyncGroupRequest:
		item = &SyncGroupRequest{}
	case TypeSyncGroupItem:
		item = &SyncGroupItem{}
	case TypeSyncMessageRequest:
		item = &SyncMessageRequest{}
	case TypeSyncMessageItem:
		item = &SyncMessageItem{}
	case TypeSyncNotify:
		item = &SyncNotifyItem{}
	case TypeSyncGroupStats:
		item = &SyncGroupStatsItem{}
	case TypeTransferGroup:
		item = &TransferGroupItem{}
	case TypeTransferMessage:
		item = &TransferMessageItem{}
	case TypeTransaction:
		item = &TransactionItem{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownItemType, b[0])
	}
	if err := item.UnmarshalBinary(b[1:]); err != nil {
		return nil, err
	}
	return item, nil
}
