package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
	"github.com/ronaldeddings/unified-agent/internal/eventlog"
	"github.com/ronaldeddings/unified-agent/internal/policy"
	"github.com/ronaldeddings/unified-agent/internal/protocol"
	"github.com/ronaldeddings/unified-agent/internal/statestore"
)

// Router is the central state machine (spec §4.3-§4.5): it validates,
// policy-checks, and dispatches every incoming envelope for every session,
// one session at a time, via that session's own actor goroutine.
type Router struct {
	Registry *Registry

	Adapters          *adapter.Factory
	Limiter           *policy.RateLimiter
	BrainURLs         *policy.BrainURLPolicy
	PayloadCapBytes   int
	CanUseToolDefault string // "allow" | "deny" — spec §9 Open Question 2

	Events *eventlog.Sink
	States *statestore.Store

	Metrics Metrics
}

// NewRouter wires a Router with sane defaults for any nil collaborator.
func NewRouter(registry *Registry, adapters *adapter.Factory) *Router {
	return &Router{
		Registry:          registry,
		Adapters:          adapters,
		Limiter:           policy.NewRateLimiter(policy.DefaultRateLimit, policy.DefaultRateWindow),
		BrainURLs:         policy.NewBrainURLPolicy(false, nil),
		PayloadCapBytes:   policy.DefaultPayloadCapBytes,
		CanUseToolDefault: "deny",
		Metrics:           noopMetrics{},
	}
}

func (rt *Router) metrics() Metrics {
	if rt.Metrics == nil {
		return noopMetrics{}
	}
	return rt.Metrics
}

// HandleFrame is the transport's single entry point: one raw client frame
// in, zero or more envelopes to send back out.
func (rt *Router) HandleFrame(ctx context.Context, sessionID string, raw []byte) []protocol.Envelope {
	if err := policy.CheckPayloadSize(raw, rt.PayloadCapBytes); err != nil {
		return []protocol.Envelope{protocol.NewErrorEnvelope(protocol.CodeOf(err), err.Error())}
	}

	env, err := protocol.Decode(raw)
	if err != nil {
		if protocol.IsUnsupportedType(err) {
			return nil
		}
		return []protocol.Envelope{protocol.NewErrorEnvelope(protocol.CodeInvalidEnvelope, err.Error())}
	}

	switch e := env.(type) {
	case *protocol.ControlRequestEnvelope:
		if e.Request.Subtype == protocol.SubtypeInitialize {
			return rt.handleInitialize(ctx, sessionID, e)
		}
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeNotInitialized, "session is not initialized")}
		}
		var out []protocol.Envelope
		st.Submit(func() { out = rt.dispatchControlRequest(ctx, st, e) })
		return out

	case *protocol.ControlCancelRequestEnvelope:
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return nil
		}
		var out []protocol.Envelope
		st.Submit(func() { out = rt.handleCancel(st, e) })
		return out

	case *protocol.UserEnvelope:
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return []protocol.Envelope{protocol.NewErrorEnvelope(protocol.CodeNotInitialized, "session is not initialized")}
		}
		var out []protocol.Envelope
		st.Submit(func() { out = rt.handleUser(ctx, st, e) })
		return out

	case *protocol.KeepAliveEnvelope:
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return nil
		}
		st.Submit(func() {
			st.Mutate(func(f *Fields) {
				f.LastSeenEpoch = time.Now().Unix()
				f.Connected = true
				f.relaunchScheduled = false
			})
		})
		return nil

	case *protocol.UpdateEnvVarsEnvelope:
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return nil
		}
		var out []protocol.Envelope
		st.Submit(func() { out = rt.handleUpdateEnvVars(st, e) })
		return out

	case *protocol.ControlResponseEnvelope, *protocol.AssistantEnvelope, *protocol.SystemEnvelope,
		*protocol.TransportStateEnvelope, *protocol.PermissionCancelledEnvelope, *protocol.ErrorEnvelope:
		st, ok := rt.Registry.Get(sessionID)
		if !ok {
			return nil
		}
		st.Submit(func() {
			st.Replay.Append(env)
			st.Mutate(func(f *Fields) { f.LastSeenEpoch = time.Now().Unix() })
		})
		return nil

	default:
		return nil
	}
}

// initializeExtras are the initialize-only fields ControlRequestBody has no
// dedicated struct field for; they ride along in Extra.
type initializeExtras struct {
	Cwd            string                  `json:"cwd,omitempty"`
	Project        string                  `json:"project,omitempty"`
	BrainURL       string                  `json:"brainUrl,omitempty"`
	EnvVars        map[string]string       `json:"envVars,omitempty"`
	PermissionMode protocol.PermissionMode `json:"permissionMode,omitempty"`
}

func decodeInitializeExtras(raw json.RawMessage) initializeExtras {
	var extras initializeExtras
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &extras)
	}
	return extras
}

func (rt *Router) handleInitialize(ctx context.Context, sessionID string, e *protocol.ControlRequestEnvelope) []protocol.Envelope {
	req := e.Request
	extras := decodeInitializeExtras(req.Extra)

	if extras.BrainURL != "" && rt.BrainURLs != nil {
		if err := rt.BrainURLs.Validate(extras.BrainURL); err != nil {
			rt.metrics().IncPolicyDenial(string(req.Provider), "brain_url")
			return []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeOf(err), err.Error())}
		}
	}

	if !rt.Limiter.Allow(sessionID) {
		rt.metrics().IncPolicyDenial(string(req.Provider), "rate_limited")
		return []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeRateLimited, "rate limit exceeded")}
	}

	st, created := rt.Registry.GetOrCreate(sessionID, sessionID)

	var out []protocol.Envelope
	st.Submit(func() {
		existingProvider := st.snapshot().Provider
		if created || st.Adapter == nil || existingProvider != req.Provider {
			a, err := rt.Adapters.New(req.Provider)
			if err != nil {
				out = []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeInvalidArgument, err.Error())}
				return
			}
			st.Adapter = a
		} else {
			rt.metrics().IncReconnectAttempt(string(req.Provider))
		}

		st.Mutate(func(f *Fields) {
			f.Provider = req.Provider
			if req.Model != "" {
				model := req.Model
				f.Model = &model
			}
			if extras.Cwd != "" {
				f.Cwd = extras.Cwd
			}
			if extras.Project != "" {
				f.Project = extras.Project
			}
			if extras.BrainURL != "" {
				url := extras.BrainURL
				f.BrainURL = &url
			}
			if extras.PermissionMode.IsValid() {
				f.PermissionMode = extras.PermissionMode
			} else if f.PermissionMode == "" {
				f.PermissionMode = protocol.PermissionDefault
			}
			if f.EnvVars == nil {
				f.EnvVars = make(map[string]string)
			}
			for k, v := range extras.EnvVars {
				f.EnvVars[k] = v
			}
			if req.MaxThinkingTokens != nil {
				f.MaxThinkingTokens = req.MaxThinkingTokens
			}
		})

		actx := rt.adapterContext(st)
		res, err := st.Adapter.Initialize(ctx, actx)
		if err != nil {
			out = []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeOf(err), err.Error())}
			return
		}

		st.Mutate(func(f *Fields) {
			if res != nil && res.ProviderSessionID != nil {
				f.ProviderSessionID = res.ProviderSessionID
			}
			if f.MetaSessionID == nil {
				id := uuid.NewString()
				f.MetaSessionID = &id
			}
			f.Connected = true
			f.LastSeenEpoch = time.Now().Unix()
			f.relaunchScheduled = false
		})

		fields := st.snapshot()
		subtypes := st.Adapter.SupportedControlSubtypes()
		capStrings := make([]string, 0, len(subtypes))
		for _, s := range subtypes {
			capStrings = append(capStrings, string(s))
		}
		modelStr := derefOr(fields.Model, "")

		transition := protocol.NewTransportState(sessionID, "cli_connected", fields.Provider, modelStr, capStrings)
		payload := map[string]interface{}{
			"provider":     string(fields.Provider),
			"model":        modelStr,
			"capabilities": capStrings,
		}
		if fields.ProviderSessionID != nil {
			payload["providerSessionId"] = *fields.ProviderSessionID
		}
		success := protocol.NewSuccessResponse(e.RequestID, payload)

		st.Replay.Append(transition)
		st.Replay.Append(success)
		rt.recordEvent(ctx, st, eventlog.KindTransportTransition, string(req.Subtype), e.RequestID)
		rt.saveState(ctx)

		out = []protocol.Envelope{transition, success}
	})
	return out
}

func (rt *Router) dispatchControlRequest(ctx context.Context, st *State, e *protocol.ControlRequestEnvelope) []protocol.Envelope {
	req := e.Request
	fields := st.snapshot()
	provider := string(fields.Provider)

	if !rt.Limiter.Allow(st.SessionID) {
		rt.metrics().IncPolicyDenial(provider, "rate_limited")
		return []protocol.Envelope{protocol.NewErrorResponse(e.RequestID, protocol.CodeRateLimited, "rate limit exceeded")}
	}

	if !adapter.Supports(st.Adapter, req.Subtype) {
		rt.metrics().IncUnsupportedSubtype(provider, string(req.Subtype))
		warn := protocol.NewSystemWarning(st.SessionID, map[string]interface{}{
			"compatibility": "emulated-or-unsupported",
			"subtype":       string(req.Subtype),
		})
		errResp := protocol.NewErrorResponse(e.RequestID, protocol.CodeUnknownSubtype,
			fmt.Sprintf("subtype %q is not supported by provider %q", req.Subtype, provider))
		st.Replay.Append(warn)
		st.Replay.Append(errResp)
		rt.saveState(ctx)
		return []protocol.Envelope{warn, errResp}
	}

	st.Correlator.StartRequest(e.RequestID, req.Subtype)
	rt.recordEvent(ctx, st, eventlog.KindControlRequest, string(req.Subtype), e.RequestID)
	started := time.Now()
	rt.metrics().IncRequest(provider, string(req.Subtype))

	var resp *protocol.ControlResponseEnvelope
	if req.Subtype == protocol.SubtypeCanUseTool {
		resp = rt.handleCanUseTool(st, e)
	} else {
		payload, implemented, err := adapter.Dispatch(ctx, st.Adapter, rt.adapterContext(st), req)
		switch {
		case err != nil:
			resp = protocol.NewErrorResponse(e.RequestID, protocol.CodeOf(err), err.Error())
		case !implemented:
			// The subtype passed the capability check but the adapter has no
			// method for it (spec §4.4 item 4's mcp_*/rewind_files/
			// hook_callback "unimplemented" case, generalized to every
			// optional subtype so a capability-declaration mismatch never
			// surfaces as a success with a null payload).
			resp = protocol.NewSuccessResponse(e.RequestID, map[string]interface{}{"supported": false})
		default:
			rt.applySetterResult(st, req)
			resp = protocol.NewSuccessResponse(e.RequestID, payload)
		}
	}

	st.Correlator.ResolveRequest(e.RequestID)
	rt.metrics().ObserveControlLatency(provider, string(req.Subtype), time.Since(started))

	st.Replay.Append(resp)
	rt.recordEvent(ctx, st, eventlog.KindControlResponse, string(req.Subtype), e.RequestID)
	rt.saveState(ctx)

	return []protocol.Envelope{resp}
}

func (rt *Router) handleCanUseTool(st *State, e *protocol.ControlRequestEnvelope) *protocol.ControlResponseEnvelope {
	req := e.Request
	st.Correlator.AddPermission(st.SessionID, e.RequestID, req.ToolName, req.ToolUseID, req)

	behavior := rt.CanUseToolDefault
	if behavior != "allow" && behavior != "deny" {
		behavior = "deny"
	}

	decision := policy.CanUseToolDecision{Behavior: behavior}
	if behavior == "allow" {
		decision.UpdatedInput = req.UpdatedInput
		if len(decision.UpdatedInput) == 0 {
			decision.UpdatedInput = req.Input
		}
	}

	if err := policy.ValidateCanUseToolDecision(decision); err != nil {
		st.Correlator.ResolvePermission(e.RequestID)
		return protocol.NewErrorResponse(e.RequestID, protocol.CodeOf(err), err.Error())
	}

	st.Correlator.ResolvePermission(e.RequestID)

	payload := map[string]interface{}{"behavior": decision.Behavior}
	if len(decision.UpdatedInput) > 0 {
		payload["updatedInput"] = json.RawMessage(decision.UpdatedInput)
	}
	return protocol.NewSuccessResponse(e.RequestID, payload)
}

func (rt *Router) handleCancel(st *State, e *protocol.ControlCancelRequestEnvelope) []protocol.Envelope {
	st.Correlator.ResolveRequest(e.RequestID)
	perm, wasPermission := st.Correlator.ResolvePermission(e.RequestID)

	var out []protocol.Envelope
	if wasPermission {
		cancelled := protocol.NewPermissionCancelled(st.SessionID, perm.RequestID, "cancelled by client")
		st.Replay.Append(cancelled)
		out = append(out, cancelled)
	}
	out = append(out, protocol.NewSuccessResponse(e.RequestID, map[string]interface{}{"cancelled": true}))
	return out
}

func (rt *Router) handleUpdateEnvVars(st *State, e *protocol.UpdateEnvVarsEnvelope) []protocol.Envelope {
	st.Mutate(func(f *Fields) {
		if f.EnvVars == nil {
			f.EnvVars = make(map[string]string)
		}
		for k, v := range e.Variables {
			f.EnvVars[k] = v
		}
	})
	status := protocol.NewSystemStatus(st.SessionID, map[string]interface{}{"envVarsUpdated": len(e.Variables)})
	st.Replay.Append(status)
	return []protocol.Envelope{status}
}

func (rt *Router) handleUser(ctx context.Context, st *State, e *protocol.UserEnvelope) []protocol.Envelope {
	if st.Adapter == nil {
		return []protocol.Envelope{protocol.NewErrorEnvelope(protocol.CodeNotInitialized, "session is not initialized")}
	}

	actx := rt.adapterContext(st)
	res, err := st.Adapter.AskUser(ctx, actx, e.Message.Content)
	if err != nil {
		errEnv := protocol.NewErrorEnvelope(protocol.CodeOf(err), err.Error())
		st.Replay.Append(errEnv)
		rt.recordEvent(ctx, st, eventlog.KindError, "", "")
		return []protocol.Envelope{errEnv}
	}

	if res.ProviderSessionID != nil {
		st.Mutate(func(f *Fields) { f.ProviderSessionID = res.ProviderSessionID })
	}

	assistant := protocol.NewAssistantMessage(st.SessionID, res.Text)
	st.Replay.Append(e)
	st.Replay.Append(assistant)
	rt.recordEvent(ctx, st, eventlog.KindUserTurn, "", "")
	rt.recordEvent(ctx, st, eventlog.KindAssistantReply, "", "")
	rt.saveState(ctx)

	return []protocol.Envelope{assistant}
}

func (rt *Router) adapterContext(st *State) adapter.Context {
	f := st.snapshot()
	return adapter.Context{
		MetaSessionID:     derefOr(f.MetaSessionID, ""),
		GatewaySessionID:  st.GatewaySessionID,
		ProviderSessionID: f.ProviderSessionID,
		Project:           f.Project,
		Cwd:               f.Cwd,
		Provider:          f.Provider,
		Model:             f.Model,
		BrainURL:          f.BrainURL,
		PermissionMode:    f.PermissionMode,
		MaxThinkingTokens: f.MaxThinkingTokens,
	}
}

// applySetterResult stores the outcome of a successful set_model,
// set_permission_mode, or set_max_thinking_tokens dispatch onto the
// session's Fields, so the next adapterContext build (and therefore the
// next adapter call, and hydration/persistence) observes it. Spec §4.4:
// "default" clears the stored model, null clears the stored thinking-token
// cap, and permission mode is "applied on the next adapter call" (spec §3)
// only if it is actually stored here first.
func (rt *Router) applySetterResult(st *State, req protocol.ControlRequestBody) {
	switch req.Subtype {
	case protocol.SubtypeSetModel:
		st.Mutate(func(f *Fields) {
			if req.Model == "" || req.Model == "default" {
				f.Model = nil
				return
			}
			model := req.Model
			f.Model = &model
		})
	case protocol.SubtypeSetPermissionMode:
		if !req.Mode.IsValid() {
			return
		}
		st.Mutate(func(f *Fields) {
			f.PermissionMode = req.Mode
		})
	case protocol.SubtypeSetMaxThinkingTokens:
		st.Mutate(func(f *Fields) {
			f.MaxThinkingTokens = req.MaxThinkingTokens
		})
	}
}

func (rt *Router) recordEvent(ctx context.Context, st *State, kind eventlog.Kind, subtype, requestID string) {
	if rt.Events == nil {
		return
	}
	f := st.snapshot()
	if f.MetaSessionID == nil {
		return
	}
	_ = rt.Events.Record(ctx, eventlog.Event{
		MetaSessionID:  *f.MetaSessionID,
		CreatedAtEpoch: time.Now().Unix(),
		Kind:           kind,
		Provider:       string(f.Provider),
		RequestID:      requestID,
		Subtype:        subtype,
	})
}

func (rt *Router) saveState(ctx context.Context) {
	if rt.States == nil {
		return
	}
	_ = rt.States.Save(rt.Registry.Snapshot())
}
