// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forum

import "github.com/zapek/gxs/pkg/gxssync"

func (s *Service) Engine() *gxssync.Service[*Forum, *Post] {
	return s.engine
}
