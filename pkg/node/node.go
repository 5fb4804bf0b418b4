// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node wires the full GXS node together: state store, identity
// cache, TCP transport, the forum service and the optional debug API.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	rootgxs "github.com/zapek/gxs"
	"github.com/zapek/gxs/pkg/debugapi"
	"github.com/zapek/gxs/pkg/forum"
	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/gxssync"
	"github.com/zapek/gxs/pkg/identity"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/metrics"
	"github.com/zapek/gxs/pkg/statestore/leveldb"
	"github.com/zapek/gxs/pkg/storage"
	"github.com/zapek/gxs/pkg/transport/tcp"
)

// Options configure the node at construction time.
type Options struct {
	// DataDir holds the persistent state. Empty means in-memory,
	// nothing survives a restart.
	DataDir string
	// ListenAddr is the peer transport's listen address. Empty means
	// outbound-only.
	ListenAddr string
	// DebugAPIAddr serves the debug HTTP API. Empty disables it.
	DebugAPIAddr string
	// Bootnodes are peer addresses dialed at startup.
	Bootnodes []string
	// SyncPeriod overrides the per-peer sync interval.
	SyncPeriod time.Duration
	// IdentityCacheSize bounds the author key cache.
	IdentityCacheSize int
}

const defaultIdentityCacheSize = 10000

// Node is a running GXS node.
type Node struct {
	logger     logging.Logger
	stateStore storage.StateStorer
	transport  *tcp.Service
	forums     *forum.Service
	apiServer  *http.Server
}

// New constructs and starts a node. The returned node is already
// listening and syncing; Shutdown tears it down.
func New(ctx context.Context, peerId gxs.PeerId, logger logging.Logger, o *Options) (*Node, error) {
	n := &Node{logger: logger}

	var err error
	if o.DataDir == "" {
		logger.Warning("no data directory, the node state is in-memory only")
		n.stateStore, err = leveldb.NewInMemoryStateStore(logger)
	} else {
		n.stateStore, err = leveldb.NewStateStore(filepath.Join(o.DataDir, "statestore"), logger)
	}
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	cacheSize := o.IdentityCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultIdentityCacheSize
	}
	cache, err := identity.NewCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("identity cache: %w", err)
	}

	n.transport = tcp.New(peerId, logger)
	n.forums = forum.New(n.transport, n.stateStore, cache, logger, gxssync.Options{
		SyncPeriod: o.SyncPeriod,
	})
	n.forums.Start()

	if o.ListenAddr != "" {
		if err := n.transport.Listen(o.ListenAddr); err != nil {
			return nil, err
		}
	}

	if o.DebugAPIAddr != "" {
		if err := n.startDebugAPI(o.DebugAPIAddr); err != nil {
			return nil, err
		}
	}

	for _, addr := range o.Bootnodes {
		addr := addr
		go func() {
			peer, err := n.transport.Connect(ctx, addr)
			if err != nil {
				logger.Errorf("connect to bootnode %s: %v", addr, err)
				return
			}
			logger.Infof("connected to bootnode %s (%s)", addr, peer)
		}()
	}

	return n, nil
}

// Forums exposes the forum service, for the command layer.
func (n *Node) Forums() *forum.Service {
	return n.forums
}

func (n *Node) startDebugAPI(addr string) error {
	registry := newMetricsRegistry()
	api := debugapi.New(n.transport, n.forums, n.logger, registry)
	api.MustRegisterMetrics(n.transport.Metrics()...)
	api.MustRegisterMetrics(n.forums.Metrics()...)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("debug api listener: %w", err)
	}

	server := &http.Server{
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           api,
	}
	go func() {
		n.logger.Infof("debug api listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Errorf("debug api server: %v", err)
		}
	}()
	n.apiServer = server
	return nil
}

func newMetricsRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: metrics.Namespace,
		}),
		collectors.NewGoCollector(),
		prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "info",
			Help:      "GXS node information.",
			ConstLabels: prometheus.Labels{
				"version": rootgxs.Version,
			},
		}),
	)
	return r
}

// Shutdown stops the node: debug API first, then the content service,
// the transport and finally the state store.
func (n *Node) Shutdown() error {
	var mErr error

	if n.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var eg errgroup.Group
		eg.Go(func() error {
			if err := n.apiServer.Shutdown(ctx); err != nil {
				return fmt.Errorf("debug api: %w", err)
			}
			return nil
		})
		if err := eg.Wait(); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}

	if err := n.forums.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("forum service: %w", err))
	}
	if err := n.transport.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("transport: %w", err))
	}
	if err := n.stateStore.Close(); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("state store: %w", err))
	}

	return mErr
}
