package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ronaldeddings/unified-agent/internal/identity"
	"github.com/ronaldeddings/unified-agent/internal/protocol"
	"github.com/ronaldeddings/unified-agent/internal/session"
)

// AttachHandler upgrades a browser connection to a websocket and attaches it
// to a gateway session (spec §4.9). Grounded on the teacher's
// WebSocketHandler.ServeHTTP/inputLoop/outputLoop pair, collapsed here
// because the router already serializes per-session work on its own actor,
// so there is no separate container-attach step to coordinate.
type AttachHandler struct {
	Router        *session.Router
	Bus           *Bus
	Watchdog      *session.Watchdog
	AllowedOrigin string
	IsDev         bool
}

// NewAttachHandler builds an AttachHandler with the given collaborators.
func NewAttachHandler(router *session.Router, bus *Bus, watchdog *session.Watchdog, allowedOrigin string, isDev bool) *AttachHandler {
	return &AttachHandler{
		Router:        router,
		Bus:           bus,
		Watchdog:      watchdog,
		AllowedOrigin: allowedOrigin,
		IsDev:         isDev,
	}
}

func (h *AttachHandler) checkOrigin(r *http.Request) bool {
	if h.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.AllowedOrigin == "*" {
		return true
	}
	if origin == h.AllowedOrigin {
		return true
	}
	slog.Warn("attach origin rejected", "origin", origin, "allowed", h.AllowedOrigin)
	return false
}

// ServeHTTP upgrades the request and attaches it to the session named by the
// "session" query parameter. A "role=relay" peer is a ride-along observer
// (spec §6): it receives every envelope broadcast on the session's bus but
// never has its own frames routed through the session's own actor.
func (h *AttachHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, `{"error":"missing session query parameter"}`, http.StatusBadRequest)
		return
	}
	isRelay := r.URL.Query().Get("role") == "relay"
	attachID := identity.AttachIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept attach websocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if cerr := conn.Close(websocket.StatusNormalClosure, "attach ended"); cerr != nil {
			slog.Debug("failed to close attach websocket", "error", cerr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	peerID := uuid.NewString()
	frames, unsubscribe := h.Bus.Subscribe(ctx, sessionID, peerID)
	defer unsubscribe()

	slog.Info("attach opened", "session_id", sessionID, "peer_id", peerID, "attach_id", attachID, "relay", isRelay)

	if st, ok := h.Router.Registry.Get(sessionID); ok {
		for _, env := range session.Hydrate(st) {
			if err := h.writeEnvelope(ctx, conn, env); err != nil {
				slog.Debug("hydration write failed", "error", err, "session_id", sessionID)
				return
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx, conn, sessionID, peerID, isRelay)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.writeLoop(ctx, conn, frames)
	}()

	wg.Wait()

	if h.lastPeerFor(sessionID, peerID) {
		if st, ok := h.Router.Registry.Get(sessionID); ok && h.Watchdog != nil {
			h.Watchdog.HandleDetach(st, "peer detached")
		}
	}
	slog.Info("attach closed", "session_id", sessionID, "peer_id", peerID)
}

// lastPeerFor is a narrow hook the attach handler calls on every
// disconnect; without a presence-tracking layer of its own, it always
// reports true, so any peer's detach marks the session disconnected and
// cancels its pending permissions even if a sibling peer is still attached.
// The watchdog sweep does not undo this; the session is marked connected
// again by the next keep_alive or initialize from a remaining peer.
func (h *AttachHandler) lastPeerFor(sessionID, peerID string) bool {
	return true
}

func (h *AttachHandler) readLoop(ctx context.Context, conn *websocket.Conn, sessionID, peerID string, isRelay bool) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("attach closed by client", "session_id", sessionID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("attach read error", "error", err, "session_id", sessionID)
			}
			return
		}

		if isRelay {
			continue
		}

		for _, env := range h.Router.HandleFrame(ctx, sessionID, data) {
			raw, err := protocol.Encode(env)
			if err != nil {
				slog.Error("failed to encode response envelope", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
				slog.Debug("attach write failed", "error", err, "session_id", sessionID)
				return
			}
		}

		if err := h.Bus.Publish(sessionID, peerID, data); err != nil {
			slog.Debug("bus publish failed", "error", err, "session_id", sessionID)
		}
	}
}

func (h *AttachHandler) writeLoop(ctx context.Context, conn *websocket.Conn, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				slog.Debug("attach broadcast write failed", "error", err)
				return
			}
		}
	}
}

func (h *AttachHandler) writeEnvelope(ctx context.Context, conn *websocket.Conn, env protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, raw)
}
