// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage provides the implementation contracts used across
// storage-aware components of the GXS node.
package storage

import (
	"errors"
	"io"
)

var ErrNotFound = errors.New("storage: not found")

// StateStorer defines methods required to get, set, delete values for
// different keys and close the underlying resources. The watermark
// bookkeeping of the sync engine goes through it.
type StateStorer interface {
	Get(key string, i interface{}) (err error)
	Put(key string, i interface{}) (err error)
	Delete(key string) (err error)
	Iterate(prefix string, iterFunc StateIterFunc) (err error)
	io.Closer
}

// StateIterFunc is used when iterating through StateStorer key/value
// pairs.
type StateIterFunc func(key, value []byte) (stop bool, err error)
