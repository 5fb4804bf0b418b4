// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// The metadata codecs below are explicit, hand-written field-order
// mappings. The byte layout doubles as the canonical form signatures
// are computed over, so it must stay deterministic.

var ErrBufferTooShort = errors.New("gxs: buffer too short")

type fieldWriter struct {
	buf bytes.Buffer
}

func (w *fieldWriter) id(v Id) {
	w.buf.Write(v.Bytes())
}

func (w *fieldWriter) messageId(v MessageId) {
	w.buf.Write(v.Bytes())
}

func (w *fieldWriter) uint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *fieldWriter) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *fieldWriter) bytes(v []byte) {
	if len(v) > math.MaxUint16 {
		v = v[:math.MaxUint16]
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(v)))
	w.buf.Write(b[:])
	w.buf.Write(v)
}

func (w *fieldWriter) string(v string) {
	w.bytes([]byte(v))
}

type fieldReader struct {
	b   []byte
	err error
}

func (r *fieldReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = ErrBufferTooShort
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) id() Id {
	b := r.take(IdSize)
	if b == nil {
		return ZeroId
	}
	return NewId(append([]byte(nil), b...))
}

func (r *fieldReader) messageId() MessageId {
	b := r.take(MessageIdSize)
	if b == nil {
		return ZeroMessageId
	}
	return NewMessageId(append([]byte(nil), b...))
}

func (r *fieldReader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *fieldReader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *fieldReader) bytes() []byte {
	b := r.take(2)
	if b == nil {
		return nil
	}
	n := int(binary.BigEndian.Uint16(b))
	if n == 0 {
		return nil
	}
	v := r.take(n)
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (r *fieldReader) string() string {
	return string(r.bytes())
}

func (r *fieldReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) != 0 {
		return fmt.Errorf("gxs: %d trailing bytes", len(r.b))
	}
	return nil
}
