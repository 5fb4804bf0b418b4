// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxsverify

import "github.com/zapek/gxs/pkg/gxs"

// Flag is one signature obligation a content service can impose on the
// messages of its groups.
type Flag uint8

const (
	// RootAuthor requires an author signature on thread roots.
	RootAuthor Flag = 1 << iota
	// ChildAuthor requires an author signature on replies.
	ChildAuthor
	// RootPublish requires a publish-key signature on thread roots.
	RootPublish
	// ChildPublish requires a publish-key signature on replies.
	ChildPublish
)

// Has reports whether all of the given flags are set.
func (f Flag) Has(o Flag) bool {
	return f&o == o
}

// Requirements is the authentication policy of one content service,
// evaluated separately per group visibility class. It must be supplied
// by the owning content service and resolved once at startup.
type Requirements struct {
	Public     Flag
	Restricted Flag
	Private    Flag

	// OptionalAuthor permits anonymous messages even where an author
	// signature is otherwise required.
	OptionalAuthor bool
}

// For selects the flags applying to a group of the given visibility.
func (r *Requirements) For(d gxs.Diffusion) Flag {
	switch d {
	case gxs.DiffusionRestricted:
		return r.Restricted
	case gxs.DiffusionPrivate:
		return r.Private
	default:
		return r.Public
	}
}
