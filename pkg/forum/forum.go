// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package forum is the forum content service: public discussion groups
// with threaded, author-signed posts, synchronized through the sync
// engine.
package forum

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxscrypto"
	"github.com/zapek/gxs/pkg/gxssync"
	"github.com/zapek/gxs/pkg/gxsverify"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/storage"
	"github.com/zapek/gxs/pkg/transport"
)

// ServiceType is the forum service's wire id.
const ServiceType uint16 = 0x0211

var (
	ErrForumNotFound  = errors.New("forum: not found")
	ErrAuthorRequired = errors.New("forum: posting requires an author identity")
)

// Forum is one discussion group.
type Forum struct {
	Meta        gxs.GroupMeta
	Description string
}

func (f *Forum) GroupMeta() *gxs.GroupMeta    { return &f.Meta }
func (f *Forum) MarshalData() ([]byte, error) { return []byte(f.Description), nil }
func (f *Forum) UnmarshalData(b []byte) error { f.Description = string(b); return nil }

// Post is one message in a forum thread.
type Post struct {
	Meta gxs.MessageMeta
	Body string
}

func (p *Post) MessageMeta() *gxs.MessageMeta { return &p.Meta }
func (p *Post) MarshalData() ([]byte, error)  { return []byte(p.Body), nil }
func (p *Post) UnmarshalData(b []byte) error  { p.Body = string(b); return nil }

// Service owns the forum store and drives it through the sync engine.
type Service struct {
	store  *gxssync.PersistentStore[*Forum, *Post]
	engine *gxssync.Service[*Forum, *Post]
	logger logging.Logger
}

// New constructs the forum service and hooks it into the transport.
func New(t transport.Service, stateStore storage.StateStorer, lookup identity.Lookup, logger logging.Logger, o gxssync.Options) *Service {
	s := &Service{
		logger: logger,
	}
	s.store = gxssync.NewPersistentStore[*Forum, *Post](stateStore, "forums",
		func() *Forum { return &Forum{} },
		func() *Post { return &Post{} },
	)
	s.engine = gxssync.New[*Forum, *Post](ServiceType, t, s.store, stateStore, s, lookup, logger, o)
	return s
}

func (s *Service) Start() {
	s.engine.Start()
}

func (s *Service) Close() error {
	return s.engine.Close()
}

func (s *Service) Metrics() []prometheus.Collector {
	return s.engine.Metrics()
}

// NewGroup implements gxssync.Provider.
func (s *Service) NewGroup() *Forum { return &Forum{} }

// NewMessage implements gxssync.Provider.
func (s *Service) NewMessage() *Post { return &Post{} }

// Requirements implements gxssync.Provider. Forum posts carry author
// signatures; posts in non-public forums are additionally signed with
// the forum's publish key.
func (s *Service) Requirements() *gxsverify.Requirements {
	return &gxsverify.Requirements{
		Public:     gxsverify.RootAuthor | gxsverify.ChildAuthor,
		Restricted: gxsverify.RootAuthor | gxsverify.ChildAuthor | gxsverify.RootPublish | gxsverify.ChildPublish,
		Private:    gxsverify.RootPublish | gxsverify.ChildPublish,
	}
}

// WantGroups implements gxssync.Provider. Every advertised forum is
// worth having; subscription stays a local choice.
func (s *Service) WantGroups(_ transport.Peer, ids []gxs.Id) []gxs.Id {
	return ids
}

// WantMessages implements gxssync.Provider.
func (s *Service) WantMessages(_ transport.Peer, _ *Forum, ids []gxs.MessageId) []gxs.MessageId {
	return ids
}

// PeerCanSee implements gxssync.Provider. Only public forums travel;
// restricted and private ones stay where their members put them.
func (s *Service) PeerCanSee(_ transport.Peer, f *Forum) bool {
	return f.Meta.Diffusion == gxs.DiffusionPublic
}

// OnGroupsSaved implements gxssync.Provider.
func (s *Service) OnGroupsSaved(forums []*Forum) {
	for _, f := range forums {
		s.logger.Infof("forum %s (%s) arrived", f.Meta.Name, f.Meta.Id)
	}
}

// OnMessagesSaved implements gxssync.Provider.
func (s *Service) OnMessagesSaved(posts []*Post) {
	for _, p := range posts {
		s.logger.Infof("post %s arrived in forum %s", p.Meta.Name, p.Meta.GroupId)
	}
}

// CreateForum makes a locally owned forum: fresh admin and publish
// keys, the id derived from the admin key, and the whole thing signed.
func (s *Service) CreateForum(ctx context.Context, name, description string) (*Forum, error) {
	adminKey, err := gxscrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("admin key: %w", err)
	}
	publishKey, err := gxscrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("publish key: %w", err)
	}

	f := &Forum{
		Meta: gxs.GroupMeta{
			Id:                gxscrypto.NewId(&adminKey.PublicKey),
			Name:              name,
			Diffusion:         gxs.DiffusionPublic,
			Published:         time.Now().Truncate(time.Second).UTC(),
			AdminPublicKey:    &adminKey.PublicKey,
			PublishPublicKey:  &publishKey.PublicKey,
			AdminPrivateKey:   adminKey,
			PublishPrivateKey: publishKey,
			Subscribed:        true,
		},
		Description: description,
	}
	sig, err := gxscrypto.Sign(f.Meta.SignaturePayload([]byte(description)), adminKey)
	if err != nil {
		return nil, fmt.Errorf("sign forum: %w", err)
	}
	f.Meta.AdminSignature = sig

	if err := s.store.SaveGroup(f); err != nil {
		return nil, fmt.Errorf("save forum: %w", err)
	}
	if err := s.engine.NotifyGroupsChanged(ctx); err != nil {
		return nil, err
	}
	s.logger.Infof("forum %s (%s) created", name, f.Meta.Id)
	return f, nil
}

// PostMessage posts to a forum. parent is zero for a new thread. The
// author key signs the post; posting anonymously is not a thing in
// forums.
func (s *Service) PostMessage(ctx context.Context, forumId gxs.Id, parent gxs.MessageId, name, body string, authorKey *rsa.PrivateKey) (*Post, error) {
	if authorKey == nil {
		return nil, ErrAuthorRequired
	}
	f, ok, err := s.store.Group(forumId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForumNotFound
	}

	p := &Post{
		Meta: gxs.MessageMeta{
			GroupId:   forumId,
			ParentId:  parent,
			Author:    gxscrypto.NewId(&authorKey.PublicKey),
			Name:      name,
			Published: time.Now().Truncate(time.Second).UTC(),
		},
		Body: body,
	}
	payload := p.Meta.SignaturePayload([]byte(body))
	if p.Meta.AuthorSignature, err = gxscrypto.Sign(payload, authorKey); err != nil {
		return nil, fmt.Errorf("sign post: %w", err)
	}
	if f.Meta.PublishPrivateKey != nil {
		if p.Meta.PublishSignature, err = gxscrypto.Sign(payload, f.Meta.PublishPrivateKey); err != nil {
			return nil, fmt.Errorf("publish-sign post: %w", err)
		}
	}
	p.Meta.Id = p.Meta.ComputeId([]byte(body))
	p.Meta.OriginalId = p.Meta.Id

	if err := s.store.SaveMessage(p); err != nil {
		return nil, fmt.Errorf("save post: %w", err)
	}

	// move the forum's post clock, which is what peers sync against
	now := time.Now().Truncate(time.Second).UTC()
	if !now.After(f.Meta.LastPosted) {
		now = f.Meta.LastPosted.Add(time.Second)
	}
	f.Meta.LastPosted = now
	if err := s.store.SaveGroup(f); err != nil {
		return nil, fmt.Errorf("save forum: %w", err)
	}

	s.engine.NotifyMessagesChanged(ctx)
	return p, nil
}

// Forum returns one forum by id.
func (s *Service) Forum(id gxs.Id) (*Forum, error) {
	f, ok, err := s.store.Group(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForumNotFound
	}
	return f, nil
}

// Forums lists all known forums, subscribed or not.
func (s *Service) Forums() ([]*Forum, error) {
	return s.store.Groups()
}

// Posts lists a forum's posts in publish order.
func (s *Service) Posts(forumId gxs.Id) ([]*Post, error) {
	return s.store.MessagesSince(forumId, time.Time{})
}

// SetSubscribed flips the local subscription. Only subscribed forums
// have their posts synced.
func (s *Service) SetSubscribed(id gxs.Id, subscribed bool) error {
	f, ok, err := s.store.Group(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForumNotFound
	}
	f.Meta.Subscribed = subscribed
	return s.store.SaveGroup(f)
}
