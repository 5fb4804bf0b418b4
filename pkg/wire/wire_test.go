// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/wire"
)

func TestFraming(t *testing.T) {
	t.Parallel()

	items := []wire.Item{
		&wire.SyncGroupRequest{LastUpdated: time.Unix(1000, 0).UTC()},
		&wire.SyncGroupItem{
			Direction:        wire.Response,
			GroupId:          gxs.NewId([]byte{1, 2, 3}),
			PublishTimestamp: time.Unix(2000, 0).UTC(),
			TxId:             7,
		},
		&wire.SyncMessageRequest{
			GroupId:     gxs.NewId([]byte{4}),
			LastUpdated: time.Unix(3000, 0).UTC(),
		},
		&wire.SyncNotifyItem{},
		&wire.TransferGroupItem{
			GroupId: gxs.NewId([]byte{5}),
			Meta:    []byte("meta"),
			Data:    []byte("data"),
			TxId:    9,
		},
		&wire.TransactionItem{
			Flags:           wire.FlagStart | wire.FlagTypeGroups,
			ItemCount:       3,
			UpdateTimestamp: time.Unix(4000, 0).UTC(),
			TxId:            9,
		},
	}

	opts := []cmp.Option{
		cmp.Comparer(func(a, b gxs.Id) bool { return a.Equal(b) }),
		cmp.Comparer(func(a, b gxs.MessageId) bool { return a.Equal(b) }),
	}
	for _, item := range items {
		b, err := wire.Marshal(item)
		if err != nil {
			t.Fatal(err)
		}
		got, err := wire.Unmarshal(b)
		if err != nil {
			t.Fatalf("%s: %v", item.Type(), err)
		}
		if diff := cmp.Diff(item, got, opts...); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", item.Type(), diff)
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := wire.Unmarshal(nil); !errors.Is(err, wire.ErrBufferTooShort) {
		t.Fatalf("got %v, want ErrBufferTooShort", err)
	}
	if _, err := wire.Unmarshal([]byte{0xee}); !errors.Is(err, wire.ErrUnknownItemType) {
		t.Fatalf("got %v, want ErrUnknownItemType", err)
	}

	// a valid type byte with a truncated payload
	b, err := wire.Marshal(&wire.SyncGroupItem{GroupId: gxs.NewId([]byte{1}), TxId: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wire.Unmarshal(b[:len(b)-2]); err == nil {
		t.Fatal("truncated payload must not parse")
	}
	// and with trailing bytes
	if _, err := wire.Unmarshal(append(b, 0x00)); err == nil {
		t.Fatal("trailing bytes must not parse")
	}
}

func TestFlags(t *testing.T) {
	t.Parallel()

	f := wire.FlagStart | wire.FlagTypeMessageListRequest
	if !f.Has(wire.FlagStart) {
		t.Fatal("start flag lost")
	}
	if f.Has(wire.FlagEndSuccess) {
		t.Fatal("phantom flag")
	}
	if got := f.TypeFlags(); got != wire.FlagTypeMessageListRequest {
		t.Fatalf("got type flags %b", got)
	}
}
