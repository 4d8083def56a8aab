package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerevents"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

const wsSendBuffer = 64

// WSHandler streams bus events to websocket clients as {kind, event}
// messages. Clients may filter with ?kinds=tx_queue,leaves_store and
// follow one submission with ?id=<uuid>.
type WSHandler struct {
	ctx    context.Context
	bus    *relayerevents.Bus
	logger hclog.Logger

	upgrader websocket.Upgrader
}

func NewWSHandler(ctx context.Context, bus *relayerevents.Bus, logger hclog.Logger) *WSHandler {
	return &WSHandler{
		ctx:    ctx,
		bus:    bus,
		logger: logger.Named("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)

		return
	}

	defer conn.Close()

	var kinds map[relayerevents.Kind]bool

	if kindsParam := r.URL.Query().Get("kinds"); kindsParam != "" {
		kinds = map[relayerevents.Kind]bool{}

		for _, kind := range strings.Split(kindsParam, ",") {
			kinds[relayerevents.Kind(strings.TrimSpace(kind))] = true
		}
	}

	idFilter := r.URL.Query().Get("id")

	eventCh := make(chan relayerevents.Event, wsSendBuffer)
	sub := h.bus.Subscribe(eventCh)

	defer sub.Unsubscribe()

	// drain the client side so pings and close frames are processed
	clientGone := make(chan struct{})

	go func() {
		defer close(clientGone)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-clientGone:
			return
		case err := <-sub.Err():
			h.logger.Debug("bus subscription error", "err", err)

			return
		case ev := <-eventCh:
			if kinds != nil && !kinds[ev.Kind] {
				continue
			}

			if idFilter != "" {
				if id, _ := ev.Event["id"].(string); id != idFilter {
					continue
				}
			}

			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", "err", err)

				return
			}
		}
	}
}
