package acp

import (
	"bytes"
	"context"
	"encoding/json"
)

// allowAlways is the option kind (and fallback option id) auto-approval picks.
const allowAlways = "allow_always"

// PermissionPolicy decides how to answer a session/request_permission from
// an agent. Decide runs on the reader goroutine and must return promptly.
type PermissionPolicy interface {
	Decide(workspaceID string, req PermissionRequest) PermissionOutcome
}

// PermissionPolicyFunc adapts a function to PermissionPolicy.
type PermissionPolicyFunc func(workspaceID string, req PermissionRequest) PermissionOutcome

// Decide calls f(workspaceID, req).
func (f PermissionPolicyFunc) Decide(workspaceID string, req PermissionRequest) PermissionOutcome {
	return f(workspaceID, req)
}

// AutoApprove grants every permission request by selecting the option id
// "allow_always", whatever options the agent offered. It trusts the managed
// agent unconditionally and is the default.
var AutoApprove PermissionPolicy = PermissionPolicyFunc(func(string, PermissionRequest) PermissionOutcome {
	return PermissionOutcome{Outcome: OutcomeSelected, OptionID: allowAlways}
})

// AllowAlwaysOption grants every permission request with the offered option
// whose kind is "allow_always". Agents that offer no such option get the
// literal id "allow_always".
var AllowAlwaysOption PermissionPolicy = PermissionPolicyFunc(func(_ string, req PermissionRequest) PermissionOutcome {
	for _, opt := range req.Options {
		if opt.Kind == allowAlways && opt.OptionID != "" {
			return PermissionOutcome{Outcome: OutcomeSelected, OptionID: opt.OptionID}
		}
	}
	return PermissionOutcome{Outcome: OutcomeSelected, OptionID: allowAlways}
})

// DenyAll answers every permission request as cancelled.
var DenyAll PermissionPolicy = PermissionPolicyFunc(func(string, PermissionRequest) PermissionOutcome {
	return PermissionOutcome{Outcome: OutcomeCancelled}
})

// route handles a message the agent initiated.
func (c *Connection) route(msg *Message) {
	switch msg.Method {
	case MethodSessionUpdate:
		c.handleSessionUpdate(msg)
	case MethodRequestPermission:
		c.handleRequestPermission(msg)
	default:
		c.log.Warn("unrecognized agent method", "method", msg.Method, "hasID", msg.HasID())
	}
}

func (c *Connection) handleSessionUpdate(msg *Message) {
	if isAbsent(msg.Params) {
		c.log.Debug("session update without params ignored")
		return
	}
	event := parseSessionUpdate(c.workspace, msg.Params)
	c.log.Debug("session update", "sessionID", event.SessionID, "updateType", event.UpdateType)
	c.sink.Emit(event)
}

// parseSessionUpdate extracts the event fields, falling back to defaults for
// anything missing or mistyped.
func parseSessionUpdate(workspace string, params json.RawMessage) SessionUpdateEvent {
	event := SessionUpdateEvent{
		WorkspaceID: workspace,
		UpdateType:  "unknown",
		Payload:     json.RawMessage("null"),
	}

	var p sessionUpdateParams
	if len(params) > 0 {
		// Partial decodes still fill the fields that did parse.
		_ = json.Unmarshal(params, &p)
	}
	event.SessionID = p.SessionID
	if !isAbsent(p.Update) {
		event.Payload = p.Update

		var u struct {
			SessionUpdate *string `json:"sessionUpdate"`
		}
		if err := json.Unmarshal(p.Update, &u); err == nil && u.SessionUpdate != nil {
			event.UpdateType = *u.SessionUpdate
		}
	}
	return event
}

// isAbsent reports whether a raw field was omitted or null.
func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (c *Connection) handleRequestPermission(msg *Message) {
	if !msg.HasID() {
		c.log.Warn("permission request without id ignored")
		return
	}

	var req PermissionRequest
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &req); err != nil {
			c.log.Warn("failed to parse permission request, deciding on defaults", "error", err)
		}
	}

	decision := c.policy.Decide(c.workspace, req)
	line, err := EncodeResult(msg.ID, PermissionResult{Outcome: decision})
	if err != nil {
		c.log.Error("failed to encode permission response", "error", err)
		return
	}

	if err := c.enqueue(context.Background(), line); err != nil {
		c.log.Debug("permission response not sent", "error", err)
		return
	}
	c.log.Info("answered permission request", "sessionID", req.SessionID, "outcome", decision.Outcome, "optionID", decision.OptionID)
}
