// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mock provides an in-memory content store for sync engine
// tests.
package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxssync"
)

var _ gxssync.Store[gxssync.Group, gxssync.Message] = (*Store[gxssync.Group, gxssync.Message])(nil)

// Store keeps groups and messages in maps.
type Store[G gxssync.Group, M gxssync.Message] struct {
	mtx      sync.Mutex
	groups   map[string]G
	messages map[string]map[string]M
}

func NewStore[G gxssync.Group, M gxssync.Message]() *Store[G, M] {
	return &Store[G, M]{
		groups:   make(map[string]G),
		messages: make(map[string]map[string]M),
	}
}

func (s *Store[G, M]) Group(id gxs.Id) (G, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	g, ok := s.groups[id.String()]
	return g, ok, nil
}

func (s *Store[G, M]) Groups() ([]G, error) {
	return s.groupsWhere(func(G) bool { return true })
}

func (s *Store[G, M]) GroupsUpdatedSince(since time.Time) ([]G, error) {
	return s.groupsWhere(func(g G) bool {
		return g.GroupMeta().Published.After(since)
	})
}

func (s *Store[G, M]) groupsWhere(keep func(G) bool) ([]G, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var out []G
	for _, g := range s.groups {
		if keep(g) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GroupMeta().Published.Before(out[j].GroupMeta().Published)
	})
	return out, nil
}

func (s *Store[G, M]) SaveGroup(g G) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.groups[g.GroupMeta().Id.String()] = g
	return nil
}

func (s *Store[G, M]) Message(groupId gxs.Id, id gxs.MessageId) (M, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var m M
	msgs, ok := s.messages[groupId.String()]
	if !ok {
		return m, false, nil
	}
	m, ok = msgs[id.String()]
	return m, ok, nil
}

func (s *Store[G, M]) MessagesSince(groupId gxs.Id, since time.Time) ([]M, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var out []M
	for _, m := range s.messages[groupId.String()] {
		if m.MessageMeta().Published.After(since) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MessageMeta().Published.Before(out[j].MessageMeta().Published)
	})
	return out, nil
}

func (s *Store[G, M]) SaveMessage(m M) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	groupKey := m.MessageMeta().GroupId.String()
	if s.messages[groupKey] == nil {
		s.messages[groupKey] = make(map[string]M)
	}
	s.messages[groupKey][m.MessageMeta().Id.String()] = m
	return nil
}

func (s *Store[G, M]) CountMessages(groupId gxs.Id) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.messages[groupId.String()]), nil
}
