package acp

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeLine_Classification(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantResponse bool
		wantMethod   string
		wantID       uint64
		wantNumeric  bool
	}{
		{"result response", `{"jsonrpc":"2.0","id":3,"result":{"ok":true}}`, true, "", 3, true},
		{"null result response", `{"jsonrpc":"2.0","id":4,"result":null}`, true, "", 4, true},
		{"error response", `{"jsonrpc":"2.0","id":5,"error":{"code":-1,"message":"x"}}`, true, "", 5, true},
		{"agent request", `{"jsonrpc":"2.0","id":7,"method":"session/request_permission"}`, false, "session/request_permission", 7, true},
		{"notification", `{"jsonrpc":"2.0","method":"session/update","params":{}}`, false, "session/update", 0, false},
		{"null id is no id", `{"jsonrpc":"2.0","id":null,"result":{}}`, false, "", 0, false},
		{"string id", `{"jsonrpc":"2.0","id":"abc","result":{}}`, true, "", 0, false},
		{"no members", `{"jsonrpc":"2.0"}`, false, "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeLine([]byte(tt.line))
			if err != nil {
				t.Fatalf("DecodeLine: %v", err)
			}
			if got := msg.IsResponse(); got != tt.wantResponse {
				t.Errorf("IsResponse() = %v, want %v", got, tt.wantResponse)
			}
			if msg.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", msg.Method, tt.wantMethod)
			}
			id, ok := msg.NumericID()
			if ok != tt.wantNumeric || id != tt.wantID {
				t.Errorf("NumericID() = (%d, %v), want (%d, %v)", id, ok, tt.wantID, tt.wantNumeric)
			}
		})
	}
}

func TestDecodeLine_Malformed(t *testing.T) {
	long := strings.Repeat("x", 500)
	for _, line := range []string{`{"jsonrpc":"2.0","id":`, `hello from agent`, `[1,2,3]`, long} {
		_, err := DecodeLine([]byte(line))
		var malformed *MalformedLineError
		if !errors.As(err, &malformed) {
			t.Errorf("DecodeLine(%.20q) error = %v, want *MalformedLineError", line, err)
			continue
		}
		if len(malformed.Line) > maxLoggedLine+3 {
			t.Errorf("logged line not truncated: %d bytes", len(malformed.Line))
		}
	}
}

func TestEncode_Lines(t *testing.T) {
	tests := []struct {
		name string
		fn   func() ([]byte, error)
		want string
	}{
		{
			"request with params",
			func() ([]byte, error) {
				return EncodeRequest(1, MethodInitialize, InitializeParams{ProtocolVersion: 1, ClientCapabilities: map[string]any{}})
			},
			`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":1,"clientCapabilities":{}}}`,
		},
		{
			"request without params",
			func() ([]byte, error) { return EncodeRequest(2, "session/list", nil) },
			`{"jsonrpc":"2.0","id":2,"method":"session/list"}`,
		},
		{
			"notification without params",
			func() ([]byte, error) { return EncodeNotification(MethodInitialized, nil) },
			`{"jsonrpc":"2.0","method":"initialized"}`,
		},
		{
			"cancel notification",
			func() ([]byte, error) { return EncodeNotification(MethodSessionCancel, CancelParams{SessionID: "s1"}) },
			`{"jsonrpc":"2.0","method":"session/cancel","params":{"sessionId":"s1"}}`,
		},
		{
			"prompt request",
			func() ([]byte, error) {
				return EncodeRequest(9, MethodSessionPrompt, PromptParams{SessionID: "s1", Prompt: []PromptContent{{Type: "text", Text: "hi"}}})
			},
			`{"jsonrpc":"2.0","id":9,"method":"session/prompt","params":{"sessionId":"s1","prompt":[{"type":"text","text":"hi"}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestEncode_UnsupportedParams(t *testing.T) {
	if _, err := EncodeRequest(1, "bad", make(chan int)); err == nil {
		t.Error("expected error for unencodable params")
	}
}
