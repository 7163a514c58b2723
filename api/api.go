// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the accounting state over a read-only HTTP API.
// Mutations enter through the embedding host, not HTTP.
package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/tidalprotocol/tidal/api/operators"
	"github.com/tidalprotocol/tidal/api/pods"
	"github.com/tidalprotocol/tidal/api/stakers"
	"github.com/tidalprotocol/tidal/api/withdrawals"
	"github.com/tidalprotocol/tidal/core"
	"github.com/tidalprotocol/tidal/metrics"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins string
	PprofOn        bool
	EnableMetrics  bool
}

// New returns the assembled api handler.
func New(engine *core.Core, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	pods.New(engine).
		Mount(router, "/pods")
	operators.New(engine).
		Mount(router, "/operators")
	stakers.New(engine).
		Mount(router, "/stakers")
	withdrawals.New(engine).
		Mount(router, "/withdrawals")

	if opts.EnableMetrics {
		router.Path("/metrics").Handler(metrics.HTTPHandler())
	}

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)
	return handler.ServeHTTP
}
