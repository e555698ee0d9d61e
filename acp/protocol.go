package acp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// JSON-RPC 2.0 envelope types, framed as one JSON object per line

const jsonrpcVersion = "2.0"

// maxLoggedLine bounds how much of an inbound line ends up in logs and errors.
const maxLoggedLine = 200

// Request is an outgoing JSON-RPC request
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outgoing JSON-RPC notification (no id, no response)
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an outgoing JSON-RPC response to a request the agent sent us.
// ID is echoed back exactly as received.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Message is the decoded shape of any inbound line. Which members are present
// decides whether it is a response, a request, or a notification.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// HasID reports whether the message carries a non-null id.
func (m *Message) HasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IsResponse reports whether the message is a response: an id plus a result
// or an error member. An explicit "result": null still counts.
func (m *Message) IsResponse() bool {
	return m.HasID() && (m.Result != nil || m.Error != nil)
}

// NumericID returns the id as an unsigned integer, the only id shape this
// client ever assigns.
func (m *Message) NumericID() (uint64, bool) {
	if !m.HasID() {
		return 0, false
	}
	id, err := strconv.ParseUint(string(m.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DecodeLine parses one inbound line. Lines that are not a JSON object are
// reported as *MalformedLineError.
func DecodeLine(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &MalformedLineError{Line: truncate(line), Err: err}
	}
	return &msg, nil
}

// EncodeRequest serializes a request as a single line (without the newline).
func EncodeRequest(id uint64, method string, params any) ([]byte, error) {
	data, err := json.Marshal(Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	return data, nil
}

// EncodeNotification serializes a notification as a single line.
func EncodeNotification(method string, params any) ([]byte, error) {
	data, err := json.Marshal(Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s notification: %w", method, err)
	}
	return data, nil
}

// EncodeResult serializes a successful response to an agent-initiated request.
func EncodeResult(id json.RawMessage, result any) ([]byte, error) {
	data, err := json.Marshal(Response{JSONRPC: jsonrpcVersion, ID: id, Result: result})
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

func truncate(line []byte) string {
	if len(line) <= maxLoggedLine {
		return string(line)
	}
	return string(line[:maxLoggedLine]) + "..."
}
