// Package checkgrp maintains the group of handlers for health checking.
package checkgrp

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"

	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"go.uber.org/zap"
)

// Handlers manages the set of check enpoints.
type Handlers struct {
	Build string
	Log   *zap.SugaredLogger
	State *state.State
}

// Readiness reports the chain tip and mempool size. The node is ready once
// a genesis block exists.
func (h Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	latest := h.State.RetrieveLatestBlock()

	data := struct {
		Status  string `json:"status"`
		Height  uint64 `json:"height"`
		Hash    string `json:"hash"`
		Mempool int    `json:"mempool"`
	}{
		Status:  "ok",
		Height:  latest.Height,
		Hash:    latest.Hash(),
		Mempool: h.State.QueryMempoolLength(),
	}

	statusCode := http.StatusOK
	if latest.Hash() == "" {
		data.Status = "no genesis"
		statusCode = http.StatusServiceUnavailable
	}

	if err := response(w, statusCode, data); err != nil {
		h.Log.Errorw("readiness", "ERROR", err)
	}

	h.Log.Infow("readiness", "statusCode", statusCode, "method", r.Method, "path", r.URL.Path, "remoteaddr", r.RemoteAddr)
}

// Liveness returns simple status info if the service is alive.
func (h Handlers) Liveness(w http.ResponseWriter, r *http.Request) {
	host, err := os.Hostname()
	if err != nil {
		host = "unavailable"
	}

	data := struct {
		Status string `json:"status,omitempty"`
		Build  string `json:"build,omitempty"`
		Host   string `json:"host,omitempty"`
		Miner  string `json:"miner,omitempty"`
	}{
		Status: "up",
		Build:  h.Build,
		Host:   host,
		Miner:  hex.EncodeToString(h.State.RetrieveMinerPKH()),
	}

	statusCode := http.StatusOK
	if err := response(w, statusCode, data); err != nil {
		h.Log.Errorw("liveness", "ERROR", err)
	}

	h.Log.Infow("liveness", "statusCode", statusCode, "method", r.Method, "path", r.URL.Path, "remoteaddr", r.RemoteAddr)
}

func response(w http.ResponseWriter, statusCode int, data any) error {

	// Convert the response value to JSON.
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// Set the content type and headers once we know marshaling has succeeded.
	w.Header().Set("Content-Type", "application/json")

	// Write the status code to the response.
	w.WriteHeader(statusCode)

	// Send the result back to the client.
	if _, err := w.Write(jsonData); err != nil {
		return err
	}

	return nil
}
