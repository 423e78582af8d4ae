// Package eventgrp streams node events to websocket clients.
package eventgrp

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ardanlabs/powchain/foundation/events"
)

// Handlers manages the set of event endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	WS   websocket.Upgrader
	Evts *events.Events
}

// Events upgrades the connection and writes node events as JSON text
// messages until the client goes away or the node shuts down. The kinds
// query parameter narrows the stream, as in ?kinds=block_mined,peer_block.
func (h Handlers) Events(w http.ResponseWriter, r *http.Request) {
	kinds, err := events.ParseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Errorw("events", "ERROR", err)
		return
	}
	defer c.Close()

	id := uuid.NewString()
	ch := h.Evts.Subscribe(id, kinds...)
	defer h.Evts.Unsubscribe(id)

	h.Log.Infow("events", "status", "client connected", "traceid", id, "remoteaddr", r.RemoteAddr, "kinds", kinds)
	defer h.Log.Infow("events", "status", "client disconnected", "traceid", id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return
			}

			if err := c.WriteJSON(evt); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}
