// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tcp implements the peer transport over plain TCP. Each link
// starts with a peer id handshake, after which both directions carry
// length-prefixed frames of (service type, item bytes). Link security
// is the deployment's business; the node is meant to run over trusted
// or tunneled links.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport"
	"github.com/zapek/gxs/pkg/wire"
)

const (
	// maxFrameSize bounds a single protocol item on the wire.
	maxFrameSize = 16 << 20
	// maxPeerIdSize bounds the handshake's id field.
	maxPeerIdSize = 64

	handshakeTimeout = 10 * time.Second
)

var (
	ErrFrameTooLarge = errors.New("tcp: frame exceeds size limit")
	ErrSelfDial      = errors.New("tcp: dialed own peer id")
	ErrClosed        = errors.New("tcp: transport closed")
)

var _ transport.Service = (*Service)(nil)

// Service is the TCP transport. It owns the listener, the outbound
// dials and the per-peer read loops, and fans inbound items out to the
// registered content services.
type Service struct {
	self    gxs.PeerId
	logger  logging.Logger
	metrics metrics

	mtx      sync.Mutex
	handlers map[uint16]transport.Handler
	peers    map[string]*link
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

// link is one established peer connection. Writes are serialized on
// wmtx so frames never interleave.
type link struct {
	peer transport.Peer
	conn net.Conn
	wmtx sync.Mutex
}

func New(self gxs.PeerId, logger logging.Logger) *Service {
	return &Service{
		self:     self,
		logger:   logger,
		metrics:  newMetrics(),
		handlers: make(map[uint16]transport.Handler),
		peers:    make(map[string]*link),
	}
}

// Listen starts accepting inbound links on addr.
func (s *Service) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		ln.Close()
		return ErrClosed
	}
	s.listener = ln
	s.mtx.Unlock()

	s.logger.Infof("tcp: listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, nil before Listen.
func (s *Service) Addr() net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Service) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Errorf("tcp: accept: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.setupLink(conn); err != nil {
				s.logger.Debugf("tcp: inbound link from %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// Connect dials addr and establishes a peer link.
func (s *Service) Connect(ctx context.Context, addr string) (transport.Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return transport.Peer{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	peer, err := s.handshake(conn)
	if err != nil {
		conn.Close()
		return transport.Peer{}, err
	}
	if err := s.addLink(peer, conn); err != nil {
		conn.Close()
		return transport.Peer{}, err
	}
	return peer, nil
}

func (s *Service) setupLink(conn net.Conn) error {
	peer, err := s.handshake(conn)
	if err != nil {
		conn.Close()
		return err
	}
	if err := s.addLink(peer, conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// handshake exchanges peer ids. Both sides write first, then read, so
// neither direction deadlocks.
func (s *Service) handshake(conn net.Conn) (transport.Peer, error) {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return transport.Peer{}, err
	}
	defer conn.SetDeadline(time.Time{})

	if err := writeHandshake(conn, s.self); err != nil {
		return transport.Peer{}, fmt.Errorf("handshake write: %w", err)
	}
	id, err := readHandshake(conn)
	if err != nil {
		return transport.Peer{}, fmt.Errorf("handshake read: %w", err)
	}
	if id.Equal(s.self) {
		return transport.Peer{}, ErrSelfDial
	}
	return transport.Peer{Id: id}, nil
}

func writeHandshake(w io.Writer, id gxs.PeerId) error {
	b := id.Bytes()
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readHandshake(r io.Reader) (gxs.PeerId, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return gxs.PeerId{}, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if n == 0 || n > maxPeerIdSize {
		return gxs.PeerId{}, fmt.Errorf("peer id length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return gxs.PeerId{}, err
	}
	return gxs.NewPeerId(b), nil
}

func (s *Service) addLink(peer transport.Peer, conn net.Conn) error {
	l := &link{peer: peer, conn: conn}

	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return ErrClosed
	}
	// a reconnect replaces the old link
	if old, ok := s.peers[peer.Id.String()]; ok {
		old.conn.Close()
	}
	s.peers[peer.Id.String()] = l
	handlers := s.snapshotHandlersLocked()
	s.mtx.Unlock()

	s.metrics.PeersConnected.Inc()
	s.logger.Infof("tcp: peer %s connected from %s", peer, conn.RemoteAddr())

	for _, h := range handlers {
		h.Connected(peer)
	}

	s.wg.Add(1)
	go s.readLoop(l)
	return nil
}

func (s *Service) readLoop(l *link) {
	defer s.wg.Done()
	defer s.dropLink(l)

	ctx := context.Background()
	for {
		serviceType, payload, err := readFrame(l.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debugf("tcp: read from peer %s: %v", l.peer, err)
			}
			return
		}
		s.metrics.FramesRead.Inc()

		item, err := wire.Unmarshal(payload)
		if err != nil {
			s.metrics.DecodeErrors.Inc()
			s.logger.Warningf("tcp: bad frame from peer %s: %v", l.peer, err)
			continue
		}

		s.mtx.Lock()
		h, ok := s.handlers[serviceType]
		s.mtx.Unlock()
		if !ok {
			s.logger.Debugf("tcp: peer %s wrote to unknown service %04x", l.peer, serviceType)
			continue
		}
		if err := h.HandleItem(ctx, l.peer, item); err != nil {
			s.logger.Debugf("tcp: handle item from peer %s: %v", l.peer, err)
		}
	}
}

func (s *Service) dropLink(l *link) {
	l.conn.Close()

	s.mtx.Lock()
	current, ok := s.peers[l.peer.Id.String()]
	if ok && current == l {
		delete(s.peers, l.peer.Id.String())
	}
	handlers := s.snapshotHandlersLocked()
	closed := s.closed
	s.mtx.Unlock()

	// a replaced link must not report its successor's peer as gone
	if !ok || current != l {
		return
	}

	s.metrics.PeersDisconnected.Inc()
	if !closed {
		s.logger.Infof("tcp: peer %s disconnected", l.peer)
	}
	for _, h := range handlers {
		h.Disconnected(l.peer)
	}
}

func (s *Service) snapshotHandlersLocked() []transport.Handler {
	hs := make([]transport.Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	return hs
}

func (s *Service) Register(serviceType uint16, h transport.Handler) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.handlers[serviceType] = h
}

func (s *Service) WriteItem(ctx context.Context, peer transport.Peer, serviceType uint16, item wire.Item) error {
	s.mtx.Lock()
	l, ok := s.peers[peer.Id.String()]
	s.mtx.Unlock()
	if !ok {
		return transport.ErrPeerNotFound
	}

	payload, err := wire.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if len(payload) > maxFrameSize {
		return ErrFrameTooLarge
	}

	l.wmtx.Lock()
	defer l.wmtx.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := l.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer l.conn.SetWriteDeadline(time.Time{})
	}
	if err := writeFrame(l.conn, serviceType, payload); err != nil {
		l.conn.Close()
		return fmt.Errorf("write to peer %s: %w", peer, err)
	}
	s.metrics.FramesWritten.Inc()
	return nil
}

func (s *Service) RandomPeer() (transport.Peer, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if len(s.peers) == 0 {
		return transport.Peer{}, false
	}
	n := rand.Intn(len(s.peers))
	for _, l := range s.peers {
		if n == 0 {
			return l.peer, true
		}
		n--
	}
	return transport.Peer{}, false
}

func (s *Service) Peers() []transport.Peer {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]transport.Peer, 0, len(s.peers))
	for _, l := range s.peers {
		out = append(out, l.peer)
	}
	return out
}

// Close tears down the listener and every peer link and waits for the
// read loops to drain.
func (s *Service) Close() error {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	links := make([]*link, 0, len(s.peers))
	for _, l := range s.peers {
		links = append(links, l)
	}
	s.mtx.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, l := range links {
		l.conn.Close()
	}
	s.wg.Wait()
	return nil
}

// frame layout: 4-byte big-endian payload length, 2-byte service type,
// payload.
func writeFrame(w io.Writer, serviceType uint16, payload []byte) error {
	var hdr [6]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.BigEndian.PutUint16(hdr[4:], serviceType)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (uint16, []byte, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:4])
	if n > maxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	serviceType := binary.BigEndian.Uint16(hdr[4:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return serviceType, payload, nil
}
