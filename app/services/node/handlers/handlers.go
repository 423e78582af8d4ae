// Package handlers manages the debug endpoints for the node.
package handlers

import (
	"expvar"
	"net/http"
	"net/http/pprof"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ardanlabs/powchain/app/services/node/handlers/debug/checkgrp"
	"github.com/ardanlabs/powchain/app/services/node/handlers/debug/eventgrp"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/events"
)

// DebugConfig contains all the mandatory systems required by the debug
// handlers.
type DebugConfig struct {
	Build    string
	Log      *zap.SugaredLogger
	State    *state.State
	Evts     *events.Events
	Gatherer prometheus.Gatherer
}

// DebugStandardLibraryMux registers all the debug routes from the standard library
// into a new mux bypassing the use of the DefaultServerMux. Using the
// DefaultServerMux would be a security risk since a dependency could inject a
// handler into our service without us knowing it.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers all the debug standard library routes and then custom
// debug application routes for the service. Requests the router doesn't
// know fall through to the standard library mux.
func DebugMux(cfg DebugConfig) http.Handler {
	std := DebugStandardLibraryMux()

	mux := httptreemux.NewContextMux()
	mux.NotFoundHandler = std.ServeHTTP

	// Register debug check endpoints.
	cgh := checkgrp.Handlers{
		Build: cfg.Build,
		Log:   cfg.Log,
		State: cfg.State,
	}
	mux.GET("/debug/readiness", cgh.Readiness)
	mux.GET("/debug/liveness", cgh.Liveness)

	// Register the event stream.
	egh := eventgrp.Handlers{
		Log:  cfg.Log,
		WS:   websocket.Upgrader{},
		Evts: cfg.Evts,
	}
	mux.GET("/debug/events", egh.Events)

	// Register the prometheus collectors.
	mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	return mux
}
