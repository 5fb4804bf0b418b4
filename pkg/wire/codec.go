// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
)

type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

func (w *writer) uint8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *writer) uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) timestamp(t time.Time) {
	if t.IsZero() {
		w.uint32(0)
		return
	}
	w.uint32(uint32(t.Unix()))
}

func (w *writer) id(v gxs.Id) {
	w.buf.Write(v.Bytes())
}

func (w *writer) messageId(v gxs.MessageId) {
	w.buf.Write(v.Bytes())
}

func (w *writer) blob(v []byte) {
	w.uint32(uint32(len(v)))
	w.buf.Write(v)
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
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

func (r *reader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) timestamp() time.Time {
	s := r.uint32()
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(int64(s), 0).UTC()
}

func (r *reader) id() gxs.Id {
	b := r.take(gxs.IdSize)
	if b == nil {
		return gxs.ZeroId
	}
	return gxs.NewId(append([]byte(nil), b...))
}

func (r *reader) messageId() gxs.MessageId {
	b := r.take(gxs.MessageIdSize)
	if b == nil {
		return gxs.ZeroMessageId
	}
	return gxs.NewMessageId(append([]byte(nil), b...))
}

func (r *reader) blob() []byte {
	n := int(r.uint32())
	if n == 0 {
		return nil
	}
	v := r.take(n)
	if v == nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if len(r.b) != 0 {
		return fmt.Errorf("wire: %d trailing bytes", len(r.b))
	}
	return nil
}
