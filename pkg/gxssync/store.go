// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/storage"
)

// record is one stored group or message: its locally serialized
// metadata next to the content service's opaque data blob.
type record struct {
	Meta []byte `json:"meta"`
	Data []byte `json:"data"`
}

// PersistentStore keeps a content service's groups and messages in a
// state store, keyed under the service's prefix. It needs the service's
// type constructors because it hands back concrete values.
type PersistentStore[G Group, M Message] struct {
	store      storage.StateStorer
	prefix     string
	newGroup   func() G
	newMessage func() M
}

var _ Store[Group, Message] = (*PersistentStore[Group, Message])(nil)

func NewPersistentStore[G Group, M Message](st storage.StateStorer, prefix string, newGroup func() G, newMessage func() M) *PersistentStore[G, M] {
	return &PersistentStore[G, M]{
		store:      st,
		prefix:     prefix,
		newGroup:   newGroup,
		newMessage: newMessage,
	}
}

// Group implements Store.
func (s *PersistentStore[G, M]) Group(id gxs.Id) (G, bool, error) {
	var g G
	var rec record
	if err := s.store.Get(s.groupKey(id), &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return g, false, nil
		}
		return g, false, err
	}
	g, err := s.decodeGroup(rec)
	if err != nil {
		return g, false, err
	}
	return g, true, nil
}

// Groups implements Store. The result is ordered by publish time so
// iteration order does not depend on key layout.
func (s *PersistentStore[G, M]) Groups() ([]G, error) {
	return s.groups(func(G) bool { return true })
}

// GroupsUpdatedSince implements Store.
func (s *PersistentStore[G, M]) GroupsUpdatedSince(since time.Time) ([]G, error) {
	return s.groups(func(g G) bool {
		return g.GroupMeta().Published.After(since)
	})
}

func (s *PersistentStore[G, M]) groups(keep func(G) bool) ([]G, error) {
	var out []G
	err := s.store.Iterate(s.prefix+"_group_", func(_, value []byte) (bool, error) {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil {
			return true, err
		}
		g, err := s.decodeGroup(rec)
		if err != nil {
			return true, err
		}
		if keep(g) {
			out = append(out, g)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GroupMeta().Published.Before(out[j].GroupMeta().Published)
	})
	return out, nil
}

// SaveGroup implements Store.
func (s *PersistentStore[G, M]) SaveGroup(g G) error {
	meta, err := g.GroupMeta().MarshalLocalBinary()
	if err != nil {
		return err
	}
	data, err := g.MarshalData()
	if err != nil {
		return err
	}
	return s.store.Put(s.groupKey(g.GroupMeta().Id), record{Meta: meta, Data: data})
}

// Message implements Store.
func (s *PersistentStore[G, M]) Message(groupId gxs.Id, id gxs.MessageId) (M, bool, error) {
	var m M
	var rec record
	if err := s.store.Get(s.messageKey(groupId, id), &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return m, false, nil
		}
		return m, false, err
	}
	m, err := s.decodeMessage(rec)
	if err != nil {
		return m, false, err
	}
	return m, true, nil
}

// MessagesSince implements Store.
func (s *PersistentStore[G, M]) MessagesSince(groupId gxs.Id, since time.Time) ([]M, error) {
	var out []M
	err := s.store.Iterate(s.messagePrefix(groupId), func(_, value []byte) (bool, error) {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil {
			return true, err
		}
		m, err := s.decodeMessage(rec)
		if err != nil {
			return true, err
		}
		if m.MessageMeta().Published.After(since) {
			out = append(out, m)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MessageMeta().Published.Before(out[j].MessageMeta().Published)
	})
	return out, nil
}

// SaveMessage implements Store.
func (s *PersistentStore[G, M]) SaveMessage(m M) error {
	meta, err := m.MessageMeta().MarshalLocalBinary()
	if err != nil {
		return err
	}
	data, err := m.MarshalData()
	if err != nil {
		return err
	}
	key := s.messageKey(m.MessageMeta().GroupId, m.MessageMeta().Id)
	return s.store.Put(key, record{Meta: meta, Data: data})
}

// CountMessages implements Store.
func (s *PersistentStore[G, M]) CountMessages(groupId gxs.Id) (int, error) {
	n := 0
	err := s.store.Iterate(s.messagePrefix(groupId), func(_, _ []byte) (bool, error) {
		n++
		return false, nil
	})
	return n, err
}

func (s *PersistentStore[G, M]) decodeGroup(rec record) (G, error) {
	g := s.newGroup()
	if err := g.GroupMeta().UnmarshalLocalBinary(rec.Meta); err != nil {
		return g, fmt.Errorf("decode group metadata: %w", err)
	}
	if err := g.UnmarshalData(rec.Data); err != nil {
		return g, fmt.Errorf("decode group data: %w", err)
	}
	return g, nil
}

func (s *PersistentStore[G, M]) decodeMessage(rec record) (M, error) {
	m := s.newMessage()
	if err := m.MessageMeta().UnmarshalLocalBinary(rec.Meta); err != nil {
		return m, fmt.Errorf("decode message metadata: %w", err)
	}
	if err := m.UnmarshalData(rec.Data); err != nil {
		return m, fmt.Errorf("decode message data: %w", err)
	}
	return m, nil
}

func (s *PersistentStore[G, M]) groupKey(id gxs.Id) string {
	return fmt.Sprintf("%s_group_%s", s.prefix, id)
}

func (s *PersistentStore[G, M]) messagePrefix(groupId gxs.Id) string {
	return fmt.Sprintf("%s_message_%s_", s.prefix, groupId)
}

func (s *PersistentStore[G, M]) messageKey(groupId gxs.Id, id gxs.MessageId) string {
	return fmt.Sprintf("%s%s", s.messagePrefix(groupId), id)
}
