// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debugapi exposes the debug API used to inspect and poke a
// running node: health, metrics, pprof, the peer list and the forum
// store.
package debugapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zapek/gxs/pkg/forum"
	"github.com/zapek/gxs/pkg/logging"
	"github.com/zapek/gxs/pkg/transport/tcp"
)

// Service implements http.Handler to be used in an HTTP server.
type Service struct {
	transport       *tcp.Service
	forums          *forum.Service
	logger          logging.Logger
	metricsRegistry *prometheus.Registry

	handler http.Handler
}

func New(t *tcp.Service, forums *forum.Service, logger logging.Logger, metricsRegistry *prometheus.Registry) *Service {
	s := &Service{
		transport:       t,
		forums:          forums,
		logger:          logger,
		metricsRegistry: metricsRegistry,
	}
	s.handler = s.newRouter()
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// MustRegisterMetrics panics on duplicate collector registration,
// which is a programming error.
func (s *Service) MustRegisterMetrics(cs ...prometheus.Collector) {
	s.metricsRegistry.MustRegister(cs...)
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Service) statusHandler(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Service) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugf("debug api: write response: %v", err)
	}
}

type errorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, errorResponse{Message: message, Code: code})
}
