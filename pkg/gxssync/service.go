// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gxssync

import (
	"context"
	"crypto/rsa"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxsverify"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/logging"
	m "github.com/zapek/gxs/pkg/metrics"
	"github.com/zapek/gxs/pkg/storage"
	"github.com/zapek/gxs/pkg/transport"
	"github.com/zapek/gxs/pkg/wire"
)

const (
	// DefaultSyncPeriod is the steady-state interval between sync rounds
	// with one peer.
	DefaultSyncPeriod = time.Minute

	// a fresh link gets a jittered head start so reconnect storms do not
	// line every peer up on the same tick
	initialDelayBase   = 10 * time.Second
	initialDelayJitter = 5 * time.Second
)

// Options configures a sync service. Zero values select the defaults.
type Options struct {
	SyncPeriod         time.Duration
	TransactionTimeout time.Duration
	PendingBudget      time.Duration
	PendingPeriod      time.Duration
}

// Service drives content synchronization for one content service. It
// schedules periodic sync rounds per connected peer, runs the transfer
// transactions and feeds everything received through the verification
// pipeline before it is stored.
type Service[G Group, M Message] struct {
	serviceType uint16
	transport   transport.Service
	store       Store[G, M]
	updates     *UpdateStore
	provider    Provider[G, M]
	verifier    *gxsverify.Verifier
	pending     *gxsverify.PendingQueue
	manager     *manager
	logger      logging.Logger
	metrics     metrics
	syncPeriod  time.Duration

	mtx   sync.Mutex
	peers map[string]*peerLoop
	txIds map[string]*atomic.Uint32

	quit chan struct{}
	wg   sync.WaitGroup
}

type peerLoop struct {
	peer transport.Peer
	quit chan struct{}
	kick chan struct{}
}

// New constructs a sync service and registers it with the transport
// under the given service type.
func New[G Group, M Message](
	serviceType uint16,
	t transport.Service,
	store Store[G, M],
	stateStore storage.StateStorer,
	provider Provider[G, M],
	lookup identity.Lookup,
	logger logging.Logger,
	o Options,
) *Service[G, M] {
	if o.SyncPeriod <= 0 {
		o.SyncPeriod = DefaultSyncPeriod
	}

	s := &Service[G, M]{
		serviceType: serviceType,
		transport:   t,
		store:       store,
		updates:     NewUpdateStore(stateStore, serviceType),
		provider:    provider,
		verifier:    gxsverify.New(lookup, provider.Requirements(), logger),
		logger:      logger,
		metrics:     newMetrics(),
		syncPeriod:  o.SyncPeriod,
		peers:       make(map[string]*peerLoop),
		txIds:       make(map[string]*atomic.Uint32),
		quit:        make(chan struct{}),
	}
	s.pending = gxsverify.NewPendingQueue(t, s.verifier, logger, o.PendingBudget, o.PendingPeriod)
	s.manager = newManager(t, serviceType, o.TransactionTimeout, s.processCompleted, logger)
	t.Register(serviceType, s)
	return s
}

// Start begins retrying delayed verifications. The per-peer sync loops
// start on their own as peers connect.
func (s *Service[G, M]) Start() {
	s.pending.Start()
}

// Close stops every sync loop and the pending queue.
func (s *Service[G, M]) Close() error {
	close(s.quit)

	s.mtx.Lock()
	for _, l := range s.peers {
		close(l.quit)
	}
	s.peers = make(map[string]*peerLoop)
	s.mtx.Unlock()

	s.wg.Wait()
	return s.pending.Close()
}

func (s *Service[G, M]) Metrics() []prometheus.Collector {
	return append(m.PrometheusCollectorsFromFields(s.metrics), s.verifier.Metrics()...)
}

// Connected implements transport.Handler. Every fresh peer link gets
// its own sync loop.
func (s *Service[G, M]) Connected(peer transport.Peer) {
	s.mtx.Lock()
	if _, ok := s.peers[peer.String()]; ok {
		s.mtx.Unlock()
		return
	}
	l := &peerLoop{
		peer: peer,
		quit: make(chan struct{}),
		kick: make(chan struct{}, 1),
	}
	s.peers[peer.String()] = l
	s.mtx.Unlock()

	s.wg.Add(1)
	go s.syncLoop(l)
}

// Disconnected implements transport.Handler. The peer's transactions go
// with the link; a reconnect starts clean.
func (s *Service[G, M]) Disconnected(peer transport.Peer) {
	s.mtx.Lock()
	if l, ok := s.peers[peer.String()]; ok {
		close(l.quit)
		delete(s.peers, peer.String())
	}
	s.mtx.Unlock()

	s.manager.clearPeer(peer)
}

func (s *Service[G, M]) syncLoop(l *peerLoop) {
	defer s.wg.Done()

	delay := initialDelayBase + time.Duration(rand.Int63n(int64(initialDelayJitter)))
	initial := time.NewTimer(delay)
	defer initial.Stop()

	select {
	case <-initial.C:
	case <-l.kick:
	case <-l.quit:
		return
	case <-s.quit:
		return
	}

	ticker := time.NewTicker(s.syncPeriod)
	defer ticker.Stop()

	for {
		s.syncWith(context.Background(), l.peer)

		select {
		case <-ticker.C:
		case <-l.kick:
		case <-l.quit:
			return
		case <-s.quit:
			return
		}
	}
}

// syncWith runs one sync round: asks the peer for groups newer than the
// stored watermark, and for every subscribed group, for messages newer
// than its watermark.
func (s *Service[G, M]) syncWith(ctx context.Context, peer transport.Peer) {
	s.metrics.SyncRounds.Inc()

	last, err := s.updates.LastPeerUpdate(peer)
	if err != nil {
		s.logger.Errorf("sync with peer %s: read group watermark: %v", peer, err)
		return
	}
	err = s.transport.WriteItem(ctx, peer, s.serviceType, &wire.SyncGroupRequest{LastUpdated: last})
	if err != nil {
		s.logger.Debugf("sync with peer %s: group request: %v", peer, err)
		return
	}

	groups, err := s.store.Groups()
	if err != nil {
		s.logger.Errorf("sync with peer %s: list groups: %v", peer, err)
		return
	}
	for _, g := range groups {
		meta := g.GroupMeta()
		if !meta.Subscribed {
			continue
		}
		last, err := s.updates.LastPeerMessageUpdate(peer, meta.Id)
		if err != nil {
			s.logger.Errorf("sync with peer %s: read message watermark for group %s: %v", peer, meta.Id, err)
			continue
		}
		err = s.transport.WriteItem(ctx, peer, s.serviceType, &wire.SyncMessageRequest{
			GroupId:     meta.Id,
			LastUpdated: last,
		})
		if err != nil {
			s.logger.Debugf("sync with peer %s: message request for group %s: %v", peer, meta.Id, err)
		}
	}
}

// SyncNow runs one synchronous sync round with the peer, outside the
// scheduler. Rounds are idempotent, so racing the scheduler is fine.
func (s *Service[G, M]) SyncNow(ctx context.Context, peer transport.Peer) {
	s.syncWith(ctx, peer)
}

// HandleItem implements transport.Handler.
func (s *Service[G, M]) HandleItem(ctx context.Context, peer transport.Peer, item wire.Item) error {
	switch it := item.(type) {
	case *wire.SyncGroupRequest:
		return s.handleGroupSyncRequest(ctx, peer, it)
	case *wire.SyncMessageRequest:
		return s.handleMessageSyncRequest(ctx, peer, it)
	case *wire.SyncGroupStatsItem:
		return s.handleGroupStats(ctx, peer, it)
	case *wire.SyncNotifyItem:
		s.metrics.NotifiesReceived.Inc()
		s.kick(peer)
		return nil
	case *wire.TransactionItem:
		if err := s.manager.processControl(ctx, peer, it); err != nil {
			s.metrics.ProtocolErrors.Inc()
			return err
		}
		return nil
	case *wire.SyncGroupItem, *wire.SyncMessageItem, *wire.TransferGroupItem, *wire.TransferMessageItem:
		if err := s.manager.addItem(ctx, peer, item); err != nil {
			s.metrics.ProtocolErrors.Inc()
			return err
		}
		return nil
	default:
		s.metrics.ProtocolErrors.Inc()
		return fmt.Errorf("peer %s: unhandled item %s", peer, item.Type())
	}
}

// kick wakes the peer's sync loop for an off-cycle round.
func (s *Service[G, M]) kick(peer transport.Peer) {
	s.mtx.Lock()
	l, ok := s.peers[peer.String()]
	s.mtx.Unlock()
	if !ok {
		return
	}
	select {
	case l.kick <- struct{}{}:
	default:
	}
}

func (s *Service[G, M]) nextTxId(peer transport.Peer) uint32 {
	s.mtx.Lock()
	c, ok := s.txIds[peer.String()]
	if !ok {
		c = atomic.NewUint32(0)
		s.txIds[peer.String()] = c
	}
	s.mtx.Unlock()
	return c.Inc()
}

// handleGroupSyncRequest answers a peer's group sync probe. Only a
// watermark strictly older than the local content clock has anything to
// fetch; an equal one is current.
func (s *Service[G, M]) handleGroupSyncRequest(ctx context.Context, peer transport.Peer, req *wire.SyncGroupRequest) error {
	last, err := s.updates.LastServiceUpdate()
	if err != nil {
		return fmt.Errorf("read content clock: %w", err)
	}
	if !req.LastUpdated.Before(last) {
		return nil
	}

	groups, err := s.store.GroupsUpdatedSince(req.LastUpdated)
	if err != nil {
		return fmt.Errorf("list updated groups: %w", err)
	}

	txId := s.nextTxId(peer)
	var items []wire.Item
	for _, g := range groups {
		if !s.provider.PeerCanSee(peer, g) {
			continue
		}
		meta := g.GroupMeta()
		items = append(items, &wire.SyncGroupItem{
			Direction:        wire.Response,
			GroupId:          meta.Id,
			PublishTimestamp: meta.Published,
			TxId:             txId,
		})
	}
	if len(items) == 0 {
		return nil
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeGroupListResponse, last, items)
}

// handleMessageSyncRequest answers a peer's message sync probe for one
// group.
func (s *Service[G, M]) handleMessageSyncRequest(ctx context.Context, peer transport.Peer, req *wire.SyncMessageRequest) error {
	g, ok, err := s.store.Group(req.GroupId)
	if err != nil {
		return fmt.Errorf("load group %s: %w", req.GroupId, err)
	}
	if !ok || !g.GroupMeta().Subscribed || !s.provider.PeerCanSee(peer, g) {
		return nil
	}
	lastPosted := g.GroupMeta().LastPosted
	if !req.LastUpdated.Before(lastPosted) {
		return nil
	}

	msgs, err := s.store.MessagesSince(req.GroupId, req.LastUpdated)
	if err != nil {
		return fmt.Errorf("list messages of group %s: %w", req.GroupId, err)
	}

	txId := s.nextTxId(peer)
	var items []wire.Item
	for _, msg := range msgs {
		meta := msg.MessageMeta()
		if !req.CreatedSince.IsZero() && meta.Published.Before(req.CreatedSince) {
			continue
		}
		items = append(items, &wire.SyncMessageItem{
			Direction: wire.Response,
			GroupId:   req.GroupId,
			MessageId: meta.Id,
			TxId:      txId,
		})
	}
	if len(items) == 0 {
		return nil
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeMessageListResponse, lastPosted, items)
}

func (s *Service[G, M]) handleGroupStats(ctx context.Context, peer transport.Peer, req *wire.SyncGroupStatsItem) error {
	if req.Direction == wire.Response {
		s.logger.Debugf("group %s at peer %s: %d messages, last posted %s", req.GroupId, peer, req.MessageCount, req.LastPosted)
		return nil
	}

	g, ok, err := s.store.Group(req.GroupId)
	if err != nil {
		return fmt.Errorf("load group %s: %w", req.GroupId, err)
	}
	if !ok || !s.provider.PeerCanSee(peer, g) {
		return nil
	}
	count, err := s.store.CountMessages(req.GroupId)
	if err != nil {
		return fmt.Errorf("count messages of group %s: %w", req.GroupId, err)
	}
	return s.transport.WriteItem(ctx, peer, s.serviceType, &wire.SyncGroupStatsItem{
		Direction:    wire.Response,
		GroupId:      req.GroupId,
		MessageCount: uint32(count),
		LastPosted:   g.GroupMeta().LastPosted,
	})
}

// processCompleted dispatches a completed incoming transaction by its
// batch type.
func (s *Service[G, M]) processCompleted(ctx context.Context, peer transport.Peer, tx *transaction) {
	var err error
	switch tx.flags.TypeFlags() {
	case wire.FlagTypeGroupListResponse:
		err = s.requestGroups(ctx, peer, tx)
	case wire.FlagTypeGroupListRequest:
		err = s.sendGroups(ctx, peer, tx)
	case wire.FlagTypeGroups:
		err = s.processGroups(ctx, peer, tx)
	case wire.FlagTypeMessageListResponse:
		err = s.requestMessages(ctx, peer, tx)
	case wire.FlagTypeMessageListRequest:
		err = s.sendMessages(ctx, peer, tx)
	case wire.FlagTypeMessages:
		err = s.processMessages(ctx, peer, tx)
	default:
		s.metrics.ProtocolErrors.Inc()
		s.logger.Warningf("transaction %d from peer %s: unknown batch type %b", tx.id, peer, tx.flags)
		return
	}
	if err != nil {
		s.logger.Errorf("transaction %d from peer %s: %v", tx.id, peer, err)
	}
}

// requestGroups turns a group list advertisement into a fetch for the
// subset we do not have yet and still want. With nothing left to fetch
// the peer's watermark moves straight to the advertised clock.
func (s *Service[G, M]) requestGroups(ctx context.Context, peer transport.Peer, tx *transaction) error {
	var candidates []gxs.Id
	for _, item := range tx.items {
		adv, ok := item.(*wire.SyncGroupItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		stored, ok, err := s.store.Group(adv.GroupId)
		if err != nil {
			return fmt.Errorf("load group %s: %w", adv.GroupId, err)
		}
		if ok && !stored.GroupMeta().Published.Before(adv.PublishTimestamp) {
			continue
		}
		candidates = append(candidates, adv.GroupId)
	}

	wanted := candidates
	if len(candidates) > 0 {
		wanted = s.provider.WantGroups(peer, candidates)
	}
	if len(wanted) == 0 {
		return s.updates.SetLastPeerUpdate(peer, tx.updateTimestamp)
	}

	txId := s.nextTxId(peer)
	items := make([]wire.Item, 0, len(wanted))
	for _, id := range wanted {
		items = append(items, &wire.SyncGroupItem{
			Direction: wire.Request,
			GroupId:   id,
			TxId:      txId,
		})
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeGroupListRequest, time.Time{}, items)
}

// sendGroups answers a peer's fetch with the full signed groups.
func (s *Service[G, M]) sendGroups(ctx context.Context, peer transport.Peer, tx *transaction) error {
	last, err := s.updates.LastServiceUpdate()
	if err != nil {
		return fmt.Errorf("read content clock: %w", err)
	}

	txId := s.nextTxId(peer)
	var items []wire.Item
	for _, item := range tx.items {
		req, ok := item.(*wire.SyncGroupItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		g, ok, err := s.store.Group(req.GroupId)
		if err != nil {
			return fmt.Errorf("load group %s: %w", req.GroupId, err)
		}
		if !ok || !s.provider.PeerCanSee(peer, g) {
			continue
		}
		meta, err := g.GroupMeta().MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal group %s: %w", req.GroupId, err)
		}
		data, err := g.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal group %s data: %w", req.GroupId, err)
		}
		items = append(items, &wire.TransferGroupItem{
			GroupId: req.GroupId,
			Meta:    meta,
			Data:    data,
			TxId:    txId,
		})
		s.metrics.GroupsSent.Inc()
	}
	if len(items) == 0 {
		return nil
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeGroups, last, items)
}

// processGroups runs received groups through verification and stores
// the survivors. The peer's watermark then advances to the sender's
// clock value carried by the transaction; local time never enters it.
func (s *Service[G, M]) processGroups(ctx context.Context, peer transport.Peer, tx *transaction) error {
	var saved []G
	for _, item := range tx.items {
		tr, ok := item.(*wire.TransferGroupItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		s.metrics.GroupsReceived.Inc()

		g := s.provider.NewGroup()
		meta := g.GroupMeta()
		if err := meta.UnmarshalBinary(tr.Meta); err != nil {
			s.metrics.ProtocolErrors.Inc()
			s.logger.Warningf("group from peer %s: bad metadata: %v", peer, err)
			continue
		}
		if err := g.UnmarshalData(tr.Data); err != nil {
			s.metrics.ProtocolErrors.Inc()
			s.logger.Warningf("group %s from peer %s: bad data: %v", meta.Id, peer, err)
			continue
		}

		stored, haveStored, err := s.store.Group(meta.Id)
		if err != nil {
			return fmt.Errorf("load group %s: %w", meta.Id, err)
		}
		if haveStored && !meta.Published.After(stored.GroupMeta().Published) {
			// redelivery of what we already have
			continue
		}
		var storedAdmin *rsa.PublicKey
		if haveStored {
			storedAdmin = stored.GroupMeta().AdminPublicKey
		}

		switch s.verifier.Group(peer, meta, tr.Data, storedAdmin) {
		case gxsverify.OK:
			if err := s.saveGroup(g, stored, haveStored); err != nil {
				return err
			}
			saved = append(saved, g)
		case gxsverify.Delayed:
			s.queueGroup(peer, g, tr.Data)
		}
	}

	if len(saved) > 0 {
		s.afterGroupsSaved(ctx, peer, saved)
	}
	return s.updates.SetLastPeerUpdate(peer, tx.updateTimestamp)
}

// saveGroup stores a verified group, carrying over local-only state
// from the version it replaces.
func (s *Service[G, M]) saveGroup(g G, stored G, haveStored bool) error {
	meta := g.GroupMeta()
	meta.External = true
	if haveStored {
		prev := stored.GroupMeta()
		meta.Subscribed = prev.Subscribed
		meta.LastPosted = prev.LastPosted
		meta.AdminPrivateKey = prev.AdminPrivateKey
		meta.PublishPrivateKey = prev.PublishPrivateKey
	} else {
		// we only fetch groups we asked for
		meta.Subscribed = true
	}
	if err := s.store.SaveGroup(g); err != nil {
		return fmt.Errorf("save group %s: %w", meta.Id, err)
	}
	s.metrics.GroupsSaved.Inc()
	return nil
}

// queueGroup parks a group with an unknown author key in the pending
// queue. A later retry against whatever peer is around then either
// stores or discards it.
func (s *Service[G, M]) queueGroup(peer transport.Peer, g G, data []byte) {
	meta := g.GroupMeta()
	s.logger.Debugf("group %s from peer %s: author %s unknown, queued", meta.Id, peer, meta.Author)

	s.pending.Add("group|"+meta.Id.String(), func(p transport.Peer) gxsverify.Result {
		stored, haveStored, err := s.store.Group(meta.Id)
		if err != nil {
			s.logger.Errorf("pending group %s: %v", meta.Id, err)
			return gxsverify.Delayed
		}
		var storedAdmin *rsa.PublicKey
		if haveStored {
			storedAdmin = stored.GroupMeta().AdminPublicKey
		}
		res := s.verifier.Group(p, meta, data, storedAdmin)
		if res == gxsverify.OK {
			if err := s.saveGroup(g, stored, haveStored); err != nil {
				s.logger.Errorf("pending group %s: %v", meta.Id, err)
				return gxsverify.Delayed
			}
			s.afterGroupsSaved(context.Background(), p, []G{g})
		}
		return res
	})
}

// afterGroupsSaved runs the accept side effects: the service callback,
// the local content clock bump and the one-hop gossip to everyone but
// the sender.
func (s *Service[G, M]) afterGroupsSaved(ctx context.Context, from transport.Peer, saved []G) {
	s.provider.OnGroupsSaved(saved)
	if _, err := s.updates.SetLastServiceUpdateNow(); err != nil {
		s.logger.Errorf("bump content clock: %v", err)
	}
	s.notifyPeers(ctx, from)
}

// requestMessages turns a message list advertisement into a fetch.
func (s *Service[G, M]) requestMessages(ctx context.Context, peer transport.Peer, tx *transaction) error {
	candidates := make(map[string][]gxs.MessageId)
	groups := make(map[string]G)
	var groupIds []gxs.Id

	for _, item := range tx.items {
		adv, ok := item.(*wire.SyncMessageItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		g, haveGroup, err := s.store.Group(adv.GroupId)
		if err != nil {
			return fmt.Errorf("load group %s: %w", adv.GroupId, err)
		}
		if !haveGroup {
			continue
		}
		_, haveMsg, err := s.store.Message(adv.GroupId, adv.MessageId)
		if err != nil {
			return fmt.Errorf("load message %s: %w", adv.MessageId, err)
		}
		if haveMsg {
			continue
		}
		key := adv.GroupId.String()
		if _, ok := groups[key]; !ok {
			groups[key] = g
			groupIds = append(groupIds, adv.GroupId)
		}
		candidates[key] = append(candidates[key], adv.MessageId)
	}

	txId := s.nextTxId(peer)
	var items []wire.Item
	for _, groupId := range groupIds {
		key := groupId.String()
		for _, id := range s.provider.WantMessages(peer, groups[key], candidates[key]) {
			items = append(items, &wire.SyncMessageItem{
				Direction: wire.Request,
				GroupId:   groupId,
				MessageId: id,
				TxId:      txId,
			})
		}
	}
	if len(items) == 0 {
		// current up to the peer's advertised clock for these groups
		for _, groupId := range groupIds {
			if err := s.updates.SetLastPeerMessageUpdate(peer, groupId, tx.updateTimestamp); err != nil {
				return err
			}
		}
		return nil
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeMessageListRequest, time.Time{}, items)
}

// sendMessages answers a peer's fetch with the full signed messages.
func (s *Service[G, M]) sendMessages(ctx context.Context, peer transport.Peer, tx *transaction) error {
	txId := s.nextTxId(peer)
	var items []wire.Item
	var updateTimestamp time.Time

	for _, item := range tx.items {
		req, ok := item.(*wire.SyncMessageItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		g, haveGroup, err := s.store.Group(req.GroupId)
		if err != nil {
			return fmt.Errorf("load group %s: %w", req.GroupId, err)
		}
		if !haveGroup || !s.provider.PeerCanSee(peer, g) {
			continue
		}
		msg, haveMsg, err := s.store.Message(req.GroupId, req.MessageId)
		if err != nil {
			return fmt.Errorf("load message %s: %w", req.MessageId, err)
		}
		if !haveMsg {
			continue
		}
		meta, err := msg.MessageMeta().MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal message %s: %w", req.MessageId, err)
		}
		data, err := msg.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal message %s data: %w", req.MessageId, err)
		}
		items = append(items, &wire.TransferMessageItem{
			GroupId:   req.GroupId,
			MessageId: req.MessageId,
			Meta:      meta,
			Data:      data,
			TxId:      txId,
		})
		s.metrics.MessagesSent.Inc()
		if g.GroupMeta().LastPosted.After(updateTimestamp) {
			updateTimestamp = g.GroupMeta().LastPosted
		}
	}
	if len(items) == 0 {
		return nil
	}
	return s.manager.startOutgoing(ctx, peer, txId, wire.FlagTypeMessages, updateTimestamp, items)
}

// processMessages runs received messages through verification and
// stores the survivors.
func (s *Service[G, M]) processMessages(ctx context.Context, peer transport.Peer, tx *transaction) error {
	var saved []M
	groupIds := make(map[string]gxs.Id)

	for _, item := range tx.items {
		tr, ok := item.(*wire.TransferMessageItem)
		if !ok {
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		s.metrics.MessagesReceived.Inc()

		msg := s.provider.NewMessage()
		meta := msg.MessageMeta()
		if err := meta.UnmarshalBinary(tr.Meta); err != nil {
			s.metrics.ProtocolErrors.Inc()
			s.logger.Warningf("message from peer %s: bad metadata: %v", peer, err)
			continue
		}
		if err := msg.UnmarshalData(tr.Data); err != nil {
			s.metrics.ProtocolErrors.Inc()
			s.logger.Warningf("message %s from peer %s: bad data: %v", meta.Id, peer, err)
			continue
		}
		groupIds[meta.GroupId.String()] = meta.GroupId

		g, haveGroup, err := s.store.Group(meta.GroupId)
		if err != nil {
			return fmt.Errorf("load group %s: %w", meta.GroupId, err)
		}
		if !haveGroup {
			// a message for a group we never accepted
			s.metrics.ProtocolErrors.Inc()
			continue
		}
		_, haveMsg, err := s.store.Message(meta.GroupId, meta.Id)
		if err != nil {
			return fmt.Errorf("load message %s: %w", meta.Id, err)
		}
		if haveMsg {
			continue
		}

		switch s.verifier.Message(peer, meta, tr.Data, g.GroupMeta()) {
		case gxsverify.OK:
			if err := s.saveMessage(g, msg); err != nil {
				return err
			}
			saved = append(saved, msg)
		case gxsverify.Delayed:
			s.queueMessage(peer, g, msg, tr.Data)
		}
	}

	if len(saved) > 0 {
		s.provider.OnMessagesSaved(saved)
		s.notifyPeers(ctx, peer)
	}
	for _, groupId := range groupIds {
		if err := s.updates.SetLastPeerMessageUpdate(peer, groupId, tx.updateTimestamp); err != nil {
			return err
		}
	}
	return nil
}

// saveMessage stores a verified message and moves the group's post
// clock, which is what downstream peers sync against.
func (s *Service[G, M]) saveMessage(g G, msg M) error {
	meta := msg.MessageMeta()
	if err := s.store.SaveMessage(msg); err != nil {
		return fmt.Errorf("save message %s: %w", meta.Id, err)
	}
	s.metrics.MessagesSaved.Inc()

	groupMeta := g.GroupMeta()
	now := time.Now().Truncate(time.Second).UTC()
	if !now.After(groupMeta.LastPosted) {
		now = groupMeta.LastPosted.Add(time.Second)
	}
	groupMeta.LastPosted = now
	if err := s.store.SaveGroup(g); err != nil {
		return fmt.Errorf("save group %s: %w", groupMeta.Id, err)
	}
	return nil
}

func (s *Service[G, M]) queueMessage(peer transport.Peer, g G, msg M, data []byte) {
	meta := msg.MessageMeta()
	s.logger.Debugf("message %s from peer %s: author %s unknown, queued", meta.Id, peer, meta.Author)

	s.pending.Add("message|"+meta.GroupId.String()+"|"+meta.Id.String(), func(p transport.Peer) gxsverify.Result {
		res := s.verifier.Message(p, meta, data, g.GroupMeta())
		if res == gxsverify.OK {
			if err := s.saveMessage(g, msg); err != nil {
				s.logger.Errorf("pending message %s: %v", meta.Id, err)
				return gxsverify.Delayed
			}
			s.provider.OnMessagesSaved([]M{msg})
			s.notifyPeers(context.Background(), p)
		}
		return res
	})
}

// notifyPeers gossips a new-content ping to every connected peer except
// the one the content came from. One hop only; receivers sync, they do
// not forward the ping.
func (s *Service[G, M]) notifyPeers(ctx context.Context, except transport.Peer) {
	for _, p := range s.transport.Peers() {
		if p.Equal(except) {
			continue
		}
		if err := s.transport.WriteItem(ctx, p, s.serviceType, &wire.SyncNotifyItem{}); err != nil {
			s.logger.Debugf("notify peer %s: %v", p, err)
			continue
		}
		s.metrics.NotifiesSent.Inc()
	}
}

// NotifyGroupsChanged bumps the local content clock after a locally
// created or updated group and gossips to every peer.
func (s *Service[G, M]) NotifyGroupsChanged(ctx context.Context) error {
	if _, err := s.updates.SetLastServiceUpdateNow(); err != nil {
		return err
	}
	s.notifyPeers(ctx, transport.Peer{})
	return nil
}

// NotifyMessagesChanged gossips to every peer after a locally posted
// message. The group's post clock is the caller's business.
func (s *Service[G, M]) NotifyMessagesChanged(ctx context.Context) {
	s.notifyPeers(ctx, transport.Peer{})
}
