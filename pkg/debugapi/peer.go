// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

type peersResponse struct {
	Peers []string `json:"peers"`
}

func (s *Service) peersHandler(w http.ResponseWriter, _ *http.Request) {
	peers := s.transport.Peers()
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.String())
	}
	s.respond(w, http.StatusOK, peersResponse{Peers: out})
}

type connectResponse struct {
	Peer string `json:"peer"`
}

func (s *Service) peerConnectHandler(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	peer, err := s.transport.Connect(r.Context(), addr)
	if err != nil {
		s.logger.Debugf("debug api: connect %s: %v", addr, err)
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respond(w, http.StatusOK, connectResponse{Peer: peer.String()})
}
