// Copyright 2023 The GXS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debugapi

import (
	"expvar"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Service) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.respondError(w, http.StatusNotFound, "not found")
	})

	router.Path("/metrics").Handler(promhttp.InstrumentMetricHandler(
		s.metricsRegistry,
		promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{}),
	))

	router.Handle("/debug/pprof", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := r.URL
		u.Path += "/"
		http.Redirect(w, r, u.String(), http.StatusPermanentRedirect)
	}))
	router.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	router.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	router.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	router.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	router.PathPrefix("/debug/pprof/").Handler(http.HandlerFunc(pprof.Index))

	router.Handle("/debug/vars", expvar.Handler())

	router.HandleFunc("/health", s.statusHandler)
	router.HandleFunc("/readiness", s.statusHandler)

	router.Handle("/peers", methodHandler{
		http.MethodGet: http.HandlerFunc(s.peersHandler),
	})
	router.Handle("/connect/{address}", methodHandler{
		http.MethodPost: http.HandlerFunc(s.peerConnectHandler),
	})

	router.Handle("/forums", methodHandler{
		http.MethodGet:  http.HandlerFunc(s.forumsHandler),
		http.MethodPost: http.HandlerFunc(s.forumCreateHandler),
	})
	router.Handle("/forums/{id}", methodHandler{
		http.MethodGet: http.HandlerFunc(s.forumHandler),
	})
	router.Handle("/forums/{id}/posts", methodHandler{
		http.MethodGet: http.HandlerFunc(s.postsHandler),
	})
	router.Handle("/forums/{id}/subscription", methodHandler{
		http.MethodPut: http.HandlerFunc(s.subscriptionHandler),
	})

	return router
}

// methodHandler dispatches on the request method and answers 405 with
// an Allow header otherwise.
type methodHandler map[string]http.Handler

func (h methodHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if handler, ok := h[r.Method]; ok {
		handler.ServeHTTP(w, r)
		return
	}
	for method := range h {
		w.Header().Add("Allow", method)
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
