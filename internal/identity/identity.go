// Package identity issues the opaque attach token that disambiguates which
// HTTP client "owns" a given websocket reconnect when multiple browser tabs
// race to attach to the same session (spec §4.9). The token identifies a
// peer; it never orders peers relative to each other.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	AttachCookieName = "unified_agent_attach_id"
	attachCookieAge  = 30 * 24 * time.Hour
)

type contextKey int

const attachIDKey contextKey = iota

// AttachIDFromContext extracts the attach token from the request context.
func AttachIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(attachIDKey).(string); ok {
		return v
	}
	return ""
}

func generateAttachID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate attach id: %w", err)
	}
	return "peer_" + hex.EncodeToString(buf), nil
}

func getOrCreateAttachID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AttachCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	id, err := generateAttachID()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AttachCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(attachCookieAge.Seconds()),
		Expires:  time.Now().Add(attachCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id, nil
}

// Middleware stamps every request with an attach token: one per browser,
// not persisted anywhere beyond the cookie itself (no backing user store —
// the gateway has no account model, per spec.md).
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attachID, err := getOrCreateAttachID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish attach identity"}`, http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), attachIDKey, attachID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
