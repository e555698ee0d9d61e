package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arandu-app/arandu-core/acp"
)

// ErrMalformedInitialize is returned when the agent's initialize result is
// not a JSON object.
var ErrMalformedInitialize = errors.New("malformed initialize result")

// handshake sends initialize, waits for the result, then sends initialized.
func (r *Registry) handshake(ctx context.Context, conn *acp.Connection) (acp.InitializeResult, error) {
	params := acp.InitializeParams{
		ProtocolVersion:    r.config.GetProtocolVersion(),
		ClientCapabilities: r.config.GetClientCapabilities(),
	}

	raw, err := conn.SendRequest(ctx, acp.MethodInitialize, params)
	if err != nil {
		return acp.InitializeResult{}, fmt.Errorf("initialize: %w", err)
	}

	info, err := parseInitializeResult(raw)
	if err != nil {
		return acp.InitializeResult{}, err
	}

	if err := conn.SendNotification(ctx, acp.MethodInitialized, nil); err != nil {
		return acp.InitializeResult{}, fmt.Errorf("initialized: %w", err)
	}
	return info, nil
}

func parseInitializeResult(raw json.RawMessage) (acp.InitializeResult, error) {
	var info acp.InitializeResult
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return info, fmt.Errorf("%w: %s", ErrMalformedInitialize, trimmed)
	}
	if err := json.Unmarshal(trimmed, &info); err != nil {
		return info, fmt.Errorf("%w: %v", ErrMalformedInitialize, err)
	}
	return info, nil
}
