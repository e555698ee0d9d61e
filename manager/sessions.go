package manager

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/arandu-app/arandu-core/acp"
	"github.com/arandu-app/arandu-core/config"
)

// Typed wrappers around the session methods. Each fails with ErrNotConnected
// when the workspace has no connection, and otherwise with whatever the
// connection reports.

// NewSession asks the workspace's agent for a new session rooted at cwd.
func (r *Registry) NewSession(ctx context.Context, workspace, cwd string) (acp.SessionInfo, error) {
	var info acp.SessionInfo
	err := r.WithConnection(workspace, func(c *acp.Connection) error {
		params := acp.NewSessionParams{Cwd: cwd, MCPServers: toACPServers(r.config.GetMCPServers())}
		return c.Call(ctx, acp.MethodSessionNew, params, &info)
	})
	if err != nil {
		return acp.SessionInfo{}, err
	}
	r.log.Info("session created", "workspaceID", workspace, "sessionID", info.SessionID)
	return info, nil
}

// ListSessions returns the agent's sessions for cwd. Agents may answer with
// {"sessions":[...]} or a bare array; anything unparseable yields no sessions.
func (r *Registry) ListSessions(ctx context.Context, workspace, cwd string) ([]acp.SessionSummary, error) {
	var raw json.RawMessage
	err := r.WithConnection(workspace, func(c *acp.Connection) error {
		var err error
		raw, err = c.SendRequest(ctx, acp.MethodSessionList, acp.ListSessionsParams{Cwd: cwd})
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeSessionList(raw), nil
}

func decodeSessionList(raw json.RawMessage) []acp.SessionSummary {
	var wrapped struct {
		Sessions json.RawMessage `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Sessions != nil {
		raw = wrapped.Sessions
	}

	var sessions []acp.SessionSummary
	if err := json.Unmarshal(raw, &sessions); err != nil || sessions == nil {
		return []acp.SessionSummary{}
	}
	return sessions
}

// LoadSession resumes sessionID. Agents that omit the id in their answer get
// the requested one filled in.
func (r *Registry) LoadSession(ctx context.Context, workspace, sessionID, cwd string) (acp.SessionInfo, error) {
	var info acp.SessionInfo
	err := r.WithConnection(workspace, func(c *acp.Connection) error {
		params := acp.LoadSessionParams{
			SessionID:  sessionID,
			Cwd:        cwd,
			MCPServers: toACPServers(r.config.GetMCPServers()),
		}
		return c.Call(ctx, acp.MethodSessionLoad, params, &info)
	})
	if err != nil {
		return acp.SessionInfo{}, err
	}
	if info.SessionID == "" {
		info.SessionID = sessionID
	}
	return info, nil
}

// SendPrompt sends a text prompt and waits until the agent finishes the turn.
// Streaming output arrives on the event sink meanwhile.
func (r *Registry) SendPrompt(ctx context.Context, workspace, sessionID, text string) (acp.PromptResult, error) {
	var result acp.PromptResult
	err := r.WithConnection(workspace, func(c *acp.Connection) error {
		params := acp.PromptParams{
			SessionID: sessionID,
			Prompt:    []acp.PromptContent{{Type: "text", Text: text}},
		}
		return c.Call(ctx, acp.MethodSessionPrompt, params, &result)
	})
	return result, err
}

// SetMode switches the session to modeID.
func (r *Registry) SetMode(ctx context.Context, workspace, sessionID, modeID string) error {
	return r.WithConnection(workspace, func(c *acp.Connection) error {
		return c.Call(ctx, acp.MethodSessionSetMode, acp.SetSessionModeParams{SessionID: sessionID, ModeID: modeID}, nil)
	})
}

// Cancel asks the agent to stop the session's current turn. No response is
// awaited.
func (r *Registry) Cancel(ctx context.Context, workspace, sessionID string) error {
	return r.WithConnection(workspace, func(c *acp.Connection) error {
		return c.SendNotification(ctx, acp.MethodSessionCancel, acp.CancelParams{SessionID: sessionID})
	})
}

// toACPServers converts configured MCP servers to their wire form. The result
// is never nil so it encodes as [].
func toACPServers(servers []config.MCPServer) []acp.MCPServer {
	out := make([]acp.MCPServer, 0, len(servers))
	for _, s := range servers {
		args := s.Args
		if args == nil {
			args = []string{}
		}

		keys := make([]string, 0, len(s.Env))
		for k := range s.Env {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		env := make([]acp.EnvVariable, 0, len(keys))
		for _, k := range keys {
			env = append(env, acp.EnvVariable{Name: k, Value: s.Env[k]})
		}

		out = append(out, acp.MCPServer{Name: s.Name, Command: s.Command, Args: args, Env: env})
	}
	return out
}
