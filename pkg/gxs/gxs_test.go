// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxs_test

import (
	"testing"

	"github.com/zapek/gxs/pkg/gxs"
)

func TestIdIsZero(t *testing.T) {
	t.Parallel()

	if !gxs.ZeroId.IsZero() {
		t.Fatal("zero id must be zero")
	}
	// an all-zero id means unset no matter how it was built
	if !gxs.NewId(make([]byte, gxs.IdSize)).IsZero() {
		t.Fatal("all-zero id must be zero")
	}
	if gxs.NewId([]byte{1}).IsZero() {
		t.Fatal("non-zero id must not be zero")
	}
}

func TestIdHexRoundTrip(t *testing.T) {
	t.Parallel()

	id := gxs.MustParseHexId("000102030405060708090a0b0c0d0e0f")
	if id.String() != "000102030405060708090a0b0c0d0e0f" {
		t.Fatalf("got %s", id)
	}
	if _, err := gxs.ParseHexId("0001"); err == nil {
		t.Fatal("short id must not parse")
	}
	if _, err := gxs.ParseHexId("zz0102030405060708090a0b0c0d0e0f"); err == nil {
		t.Fatal("non-hex id must not parse")
	}
}

func TestIdEqual(t *testing.T) {
	t.Parallel()

	a := gxs.NewId([]byte{1, 2, 3})
	b := gxs.NewId([]byte{1, 2, 3})
	c := gxs.NewId([]byte{3, 2, 1})
	if !a.Equal(b) {
		t.Fatal("equal ids must compare equal")
	}
	if a.Equal(c) {
		t.Fatal("different ids must not compare equal")
	}
}
