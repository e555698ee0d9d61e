package acp

import "encoding/json"

// Method names
const (
	MethodInitialize        = "initialize"
	MethodInitialized       = "initialized"
	MethodSessionNew        = "session/new"
	MethodSessionList       = "session/list"
	MethodSessionLoad       = "session/load"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionSetMode    = "session/set_mode"
	MethodSessionCancel     = "session/cancel"
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
)

// InitializeParams for the initialize method
type InitializeParams struct {
	ProtocolVersion    int            `json:"protocolVersion"`
	ClientCapabilities map[string]any `json:"clientCapabilities"`
}

// InitializeResult for the initialize response. Only the fields the client
// inspects are typed; the rest is kept raw.
type InitializeResult struct {
	ProtocolVersion   int             `json:"protocolVersion"`
	AgentCapabilities json.RawMessage `json:"agentCapabilities,omitempty"`
	AuthMethods       json.RawMessage `json:"authMethods,omitempty"`
}

// EnvVariable is one environment entry passed to an MCP server
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MCPServer describes an MCP server the agent should attach to a session
type MCPServer struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`
	Args    []string      `json:"args"`
	Env     []EnvVariable `json:"env"`
}

// NewSessionParams for session/new
type NewSessionParams struct {
	Cwd        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// LoadSessionParams for session/load
type LoadSessionParams struct {
	SessionID  string      `json:"sessionId"`
	Cwd        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
}

// ListSessionsParams for session/list
type ListSessionsParams struct {
	Cwd string `json:"cwd"`
}

// PromptContent is one block of a prompt
type PromptContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptParams for session/prompt
type PromptParams struct {
	SessionID string          `json:"sessionId"`
	Prompt    []PromptContent `json:"prompt"`
}

// PromptResult for the session/prompt response
type PromptResult struct {
	StopReason string `json:"stopReason,omitempty"`
}

// SetSessionModeParams for session/set_mode
type SetSessionModeParams struct {
	SessionID string `json:"sessionId"`
	ModeID    string `json:"modeId"`
}

// CancelParams for the session/cancel notification
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// SessionInfo describes a session returned by session/new and session/load
type SessionInfo struct {
	SessionID string            `json:"sessionId"`
	Modes     *SessionModeState `json:"modes,omitempty"`
}

// SessionModeState lists the modes a session supports
type SessionModeState struct {
	AvailableModes []SessionMode `json:"availableModes"`
	CurrentModeID  string        `json:"currentModeId,omitempty"`
}

// SessionMode is one selectable agent mode
type SessionMode struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionSummary is one entry of a session/list result
type SessionSummary struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd,omitempty"`
	Title     string `json:"title,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// SessionUpdateEvent is relayed to the event sink for every session/update
// notification.
type SessionUpdateEvent struct {
	WorkspaceID string          `json:"workspaceId"`
	SessionID   string          `json:"sessionId"`
	UpdateType  string          `json:"updateType"`
	Payload     json.RawMessage `json:"payload"`
}

// sessionUpdateParams is the inbound shape of session/update params
type sessionUpdateParams struct {
	SessionID string          `json:"sessionId"`
	Update    json.RawMessage `json:"update"`
}

// PermissionOption is one choice offered by session/request_permission
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// PermissionRequest is the inbound shape of session/request_permission params
type PermissionRequest struct {
	SessionID string             `json:"sessionId"`
	ToolCall  json.RawMessage    `json:"toolCall,omitempty"`
	Options   []PermissionOption `json:"options,omitempty"`
}

// Permission outcomes
const (
	OutcomeSelected  = "selected"
	OutcomeCancelled = "cancelled"
)

// PermissionOutcome is the decision sent back for a permission request
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// PermissionResult is the result member of a permission response
type PermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}
