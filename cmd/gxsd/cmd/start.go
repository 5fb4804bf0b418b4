// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	rootgxs "github.com/zapek/gxs"
	"github.com/zapek/gxs/pkg/gxs"
	"github.com/zapek/gxs/pkg/node"
)

const peerIdFileName = "peerid"

func (c *command) initStartCmd() {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a GXS node",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) > 0 {
				return cmd.Help()
			}

			logger, err := newLogger(cmd, c.config.GetString(optionNameVerbosity))
			if err != nil {
				return fmt.Errorf("new logger: %w", err)
			}

			logger.Infof("version: %v", rootgxs.Version)

			dataDir := c.config.GetString(optionNameDataDir)
			peerId, err := loadOrCreatePeerId(dataDir)
			if err != nil {
				return fmt.Errorf("peer identity: %w", err)
			}
			logger.Infof("peer id: %s", peerId)

			debugAPIAddr := ""
			if c.config.GetBool(optionNameDebugAPIEnable) {
				debugAPIAddr = c.config.GetString(optionNameDebugAPIAddr)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			n, err := node.New(ctx, peerId, logger, &node.Options{
				DataDir:           dataDir,
				ListenAddr:        c.config.GetString(optionNameP2PAddr),
				DebugAPIAddr:      debugAPIAddr,
				Bootnodes:         c.config.GetStringSlice(optionNameBootnodes),
				SyncPeriod:        c.config.GetDuration(optionNameSyncPeriod),
				IdentityCacheSize: c.config.GetInt(optionNameIdentityCacheSize),
			})
			if err != nil {
				return err
			}

			// wait for termination or interrupt signals
			interruptChannel := make(chan os.Signal, 1)
			signal.Notify(interruptChannel, syscall.SIGINT, syscall.SIGTERM)

			sig := <-interruptChannel
			logger.Debugf("received signal: %v", sig)
			logger.Info("shutting down")

			return n.Shutdown()
		},
	}

	c.setAllFlags(cmd)
	c.root.AddCommand(cmd)
}

// loadOrCreatePeerId keeps the node's peer identity stable across
// restarts. Without a data directory the identity is ephemeral.
func loadOrCreatePeerId(dataDir string) (gxs.PeerId, error) {
	if dataDir == "" {
		return randomPeerId()
	}

	path := filepath.Join(dataDir, peerIdFileName)
	b, err := os.ReadFile(path)
	if err == nil {
		id, err := hex.DecodeString(strings.TrimSpace(string(b)))
		if err != nil {
			return gxs.PeerId{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return gxs.NewPeerId(id), nil
	}
	if !os.IsNotExist(err) {
		return gxs.PeerId{}, err
	}

	id, err := randomPeerId()
	if err != nil {
		return gxs.PeerId{}, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return gxs.PeerId{}, err
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return gxs.PeerId{}, err
	}
	return id, nil
}

func randomPeerId() (gxs.PeerId, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return gxs.PeerId{}, err
	}
	return gxs.NewPeerId(b), nil
}
