// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"time"

	"github.com/zapek/gxs/pkg/gxsverify"
)

// Pending exposes the delayed-verification queue.
func (s *Service[G, M]) Pending() *gxsverify.PendingQueue {
	return s.pending
}

// Updates exposes the watermark store.
func (s *Service[G, M]) Updates() *UpdateStore {
	return s.updates
}

// SetNow overrides the transaction manager's clock.
func (s *Service[G, M]) SetNow(now func() time.Time) {
	s.manager.now = now
}
