// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"time"

	"github.com/zapek/gxs/pkg/gxs"
)

// SyncGroupRequest asks a peer for the list of groups it has that are
// newer than our stored watermark for it.
type SyncGroupRequest struct {
	LastUpdated time.Time
}

func (i *SyncGroupRequest) Type() ItemType        { return TypeSyncGroupRequest }
func (i *SyncGroupRequest) TransactionId() uint32 { return 0 }

func (i *SyncGroupRequest) MarshalBinary() ([]byte, error) {
	var w writer
	w.timestamp(i.LastUpdated)
	return w.bytes(), nil
}

func (i *SyncGroupRequest) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.LastUpdated = r.timestamp()
	return r.finish()
}

// SyncGroupItem carries one group id inside a group-list transaction,
// either requesting it or advertising it with its publish time.
type SyncGroupItem struct {
	Direction        Direction
	GroupId          gxs.Id
	PublishTimestamp time.Time
	TxId             uint32
}

func (i *SyncGroupItem) Type() ItemType        { return TypeSyncGroupItem }
func (i *SyncGroupItem) TransactionId() uint32 { return i.TxId }

func (i *SyncGroupItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.uint8(uint8(i.Direction))
	w.id(i.GroupId)
	w.timestamp(i.PublishTimestamp)
	w.uint32(i.TxId)
	return w.bytes(), nil
}

func (i *SyncGroupItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.Direction = Direction(r.uint8())
	i.GroupId = r.id()
	i.PublishTimestamp = r.timestamp()
	i.TxId = r.uint32()
	return r.finish()
}

// SyncMessageRequest asks a peer for the list of messages inside one
// group that are newer than our stored watermark for it.
type SyncMessageRequest struct {
	GroupId      gxs.Id
	LastUpdated  time.Time
	CreatedSince time.Time
}

func (i *SyncMessageRequest) Type() ItemType        { return TypeSyncMessageRequest }
func (i *SyncMessageRequest) TransactionId() uint32 { return 0 }

func (i *SyncMessageRequest) MarshalBinary() ([]byte, error) {
	var w writer
	w.id(i.GroupId)
	w.timestamp(i.LastUpdated)
	w.timestamp(i.CreatedSince)
	return w.bytes(), nil
}

func (i *SyncMessageRequest) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.GroupId = r.id()
	i.LastUpdated = r.timestamp()
	i.CreatedSince = r.timestamp()
	return r.finish()
}

// SyncMessageItem carries one message id inside a message-list
// transaction.
type SyncMessageItem struct {
	Direction Direction
	GroupId   gxs.Id
	MessageId gxs.MessageId
	TxId      uint32
}

func (i *SyncMessageItem) Type() ItemType        { return TypeSyncMessageItem }
func (i *SyncMessageItem) TransactionId() uint32 { return i.TxId }

func (i *SyncMessageItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.uint8(uint8(i.Direction))
	w.id(i.GroupId)
	w.messageId(i.MessageId)
	w.uint32(i.TxId)
	return w.bytes(), nil
}

func (i *SyncMessageItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.Direction = Direction(r.uint8())
	i.GroupId = r.id()
	i.MessageId = r.messageId()
	i.TxId = r.uint32()
	return r.finish()
}

// SyncNotifyItem is the one-hop gossip ping telling a peer that new
// content was accepted and an off-cycle sync is worthwhile.
type SyncNotifyItem struct{}

func (i *SyncNotifyItem) Type() ItemType                { return TypeSyncNotify }
func (i *SyncNotifyItem) TransactionId() uint32         { return 0 }
func (i *SyncNotifyItem) MarshalBinary() ([]byte, error) { return nil, nil }
func (i *SyncNotifyItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	return r.finish()
}

// SyncGroupStatsItem requests or carries statistics about one group.
type SyncGroupStatsItem struct {
	Direction    Direction
	GroupId      gxs.Id
	MessageCount uint32
	LastPosted   time.Time
}

func (i *SyncGroupStatsItem) Type() ItemType        { return TypeSyncGroupStats }
func (i *SyncGroupStatsItem) TransactionId() uint32 { return 0 }

func (i *SyncGroupStatsItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.uint8(uint8(i.Direction))
	w.id(i.GroupId)
	w.uint32(i.MessageCount)
	w.timestamp(i.LastPosted)
	return w.bytes(), nil
}

func (i *SyncGroupStatsItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.Direction = Direction(r.uint8())
	i.GroupId = r.id()
	i.MessageCount = r.uint32()
	i.LastPosted = r.timestamp()
	return r.finish()
}

// TransferGroupItem carries one full signed group: its serialized
// metadata and the content service's opaque data blob.
type TransferGroupItem struct {
	GroupId gxs.Id
	Meta    []byte
	Data    []byte
	TxId    uint32
}

func (i *TransferGroupItem) Type() ItemType        { return TypeTransferGroup }
func (i *TransferGroupItem) TransactionId() uint32 { return i.TxId }

func (i *TransferGroupItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.id(i.GroupId)
	w.blob(i.Meta)
	w.blob(i.Data)
	w.uint32(i.TxId)
	return w.bytes(), nil
}

func (i *TransferGroupItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.GroupId = r.id()
	i.Meta = r.blob()
	i.Data = r.blob()
	i.TxId = r.uint32()
	return r.finish()
}

// TransferMessageItem carries one full signed message.
type TransferMessageItem struct {
	GroupId   gxs.Id
	MessageId gxs.MessageId
	Meta      []byte
	Data      []byte
	TxId      uint32
}

func (i *TransferMessageItem) Type() ItemType        { return TypeTransferMessage }
func (i *TransferMessageItem) TransactionId() uint32 { return i.TxId }

func (i *TransferMessageItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.id(i.GroupId)
	w.messageId(i.MessageId)
	w.blob(i.Meta)
	w.blob(i.Data)
	w.uint32(i.TxId)
	return w.bytes(), nil
}

func (i *TransferMessageItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.GroupId = r.id()
	i.MessageId = r.messageId()
	i.Meta = r.blob()
	i.Data = r.blob()
	i.TxId = r.uint32()
	return r.finish()
}

// TransactionItem is the control item driving the batched transfer
// handshake: START, START_ACKNOWLEDGE and END_SUCCESS/END_FAILURE, plus
// the batch type flags. A START carries the declared item count and the
// producer's update timestamp.
type TransactionItem struct {
	Flags           Flags
	ItemCount       uint32
	UpdateTimestamp time.Time
	TxId            uint32
}

func (i *TransactionItem) Type() ItemType        { return TypeTransaction }
func (i *TransactionItem) TransactionId() uint32 { return i.TxId }

func (i *TransactionItem) MarshalBinary() ([]byte, error) {
	var w writer
	w.uint16(uint16(i.Flags))
	w.uint32(i.ItemCount)
	w.timestamp(i.UpdateTimestamp)
	w.uint32(i.TxId)
	return w.bytes(), nil
}

func (i *TransactionItem) UnmarshalBinary(b []byte) error {
	r := reader{b: b}
	i.Flags = Flags(r.uint16())
	i.ItemCount = r.uint32()
	i.UpdateTimestamp = r.timestamp()
	i.TxId = r.uint32()
	return r.finish()
}
