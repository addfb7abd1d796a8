package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
	"github.com/ronaldeddings/unified-agent/internal/protocol"
	"github.com/ronaldeddings/unified-agent/internal/session"
)

// HTTPHandler serves the gateway's non-websocket surfaces: health, the
// provider/model catalog, usage, and env profile management (spec §6).
// JSON/Error follow the teacher's api.Handler idiom.
type HTTPHandler struct {
	Registry    *session.Registry
	Adapters    *adapter.Factory
	Profiles    *EnvProfiles
	MetricsHTTP http.Handler
	StartedAt   time.Time
}

// NewHTTPHandler builds an HTTPHandler with the given collaborators.
func NewHTTPHandler(registry *session.Registry, adapters *adapter.Factory, profiles *EnvProfiles, metricsHTTP http.Handler) *HTTPHandler {
	return &HTTPHandler{
		Registry:    registry,
		Adapters:    adapters,
		Profiles:    profiles,
		MetricsHTTP: metricsHTTP,
		StartedAt:   time.Now(),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes mounts every handler this type exposes onto r.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/models", h.Models)
	r.Get("/usage", h.Usage)
	if h.MetricsHTTP != nil {
		r.Handle("/metrics", h.MetricsHTTP)
	}

	r.Route("/env", func(r chi.Router) {
		r.Get("/profiles", h.ListProfiles)
		r.Put("/profiles/{name}", h.PutProfile)
		r.Delete("/profiles/{name}", h.DeleteProfile)
		r.Post("/session/{sessionId}/profile/{name}", h.ApplyProfile)
	})
}

// Health reports liveness and a coarse view of live sessions.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"sessions": len(h.Registry.All()),
		"uptime":   time.Since(h.StartedAt).String(),
	})
}

// Models returns the known providers, each mapped to an empty model list;
// no model catalog is reported.
func (h *HTTPHandler) Models(w http.ResponseWriter, r *http.Request) {
	providers := []protocol.Provider{protocol.ProviderClaude, protocol.ProviderCodex, protocol.ProviderGemini, protocol.ProviderMock}
	out := make(map[string][]string, len(providers))
	for _, p := range providers {
		a, err := h.Adapters.New(p)
		if err != nil {
			continue
		}
		out[string(p)] = []string{} // model catalog is provider-negotiated; gateway only routes
		_ = a
	}
	JSON(w, http.StatusOK, map[string]interface{}{"providers": out})
}

// Usage reports, per session, provider, pending control requests, and
// pending permissions — the data the spec's usage surface names in §6.
func (h *HTTPHandler) Usage(w http.ResponseWriter, r *http.Request) {
	sessions := h.Registry.All()
	out := make([]map[string]interface{}, 0, len(sessions))
	for _, st := range sessions {
		var provider protocol.Provider
		var connected bool
		st.Read(func(f session.Fields) {
			provider = f.Provider
			connected = f.Connected
		})
		out = append(out, map[string]interface{}{
			"sessionId":         st.SessionID,
			"provider":          string(provider),
			"connected":         connected,
			"pendingRequests":   st.Correlator.PendingRequestCount(),
			"pendingPermissions": st.Correlator.PendingPermissionCount(),
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// ListProfiles returns every saved env profile.
func (h *HTTPHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Profiles.List()
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	JSON(w, http.StatusOK, profiles)
}

// PutProfile creates or replaces a named env profile. The body is either a
// string-to-string map or {"variables": {...}} wrapping one.
func (h *HTTPHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var vars map[string]string
	if err := json.Unmarshal(body, &vars); err != nil {
		var wrapped struct {
			Variables map[string]string `json:"variables"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil || wrapped.Variables == nil {
			Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
		vars = wrapped.Variables
	}
	if err := h.Profiles.Put(name, vars); err != nil {
		Error(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"name": name, "variables": vars})
}

// DeleteProfile removes a named env profile.
func (h *HTTPHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.Profiles.Delete(name); err != nil {
		Error(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"deleted": name})
}

// ApplyProfile merges a saved profile's variables into a live session's
// environment, the same way an update_environment_variables envelope would.
func (h *HTTPHandler) ApplyProfile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	name := chi.URLParam(r, "name")

	vars, ok, err := h.Profiles.Get(name)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if !ok {
		Error(w, http.StatusNotFound, "profile not found")
		return
	}

	st, ok := h.Registry.Get(sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	st.Submit(func() {
		st.Mutate(func(f *session.Fields) {
			if f.EnvVars == nil {
				f.EnvVars = make(map[string]string)
			}
			for k, v := range vars {
				f.EnvVars[k] = v
			}
		})
	})

	JSON(w, http.StatusOK, map[string]interface{}{"applied": len(vars)})
}
