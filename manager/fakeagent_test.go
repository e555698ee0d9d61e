package manager

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/arandu-app/arandu-core/logger"
)

// fakeAgentEnv makes the test binary act as an agent instead of running
// tests. Its value selects the behavior.
const fakeAgentEnv = "ARANDU_FAKE_AGENT"

// Fake agent behaviors
const (
	agentDefault      = "default"
	agentBadInit      = "bad-init"
	agentInitError    = "init-error"
	agentExitOnInit   = "exit-on-init"
	agentSilentInit   = "silent-init"
	agentBareList     = "bare-list"
	agentPermissionID = "perm-1"
)

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeAgentEnv); mode != "" {
		runFakeAgent(os.Stdin, os.Stdout, mode)
		os.Exit(0)
	}

	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}

type agentMessage struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// runFakeAgent speaks just enough of the protocol for the registry tests.
func runFakeAgent(in io.Reader, out io.Writer, mode string) {
	w := bufio.NewWriter(out)
	send := func(v any) {
		data, _ := json.Marshal(v)
		w.Write(data)
		w.WriteByte('\n')
		w.Flush()
	}
	respond := func(id json.RawMessage, result any) {
		send(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	}
	update := func(sessionID string, upd map[string]any) {
		send(map[string]any{
			"jsonrpc": "2.0",
			"method":  "session/update",
			"params":  map[string]any{"sessionId": sessionID, "update": upd},
		})
	}

	// Diagnostics on stdout must not break the client.
	fmt.Fprintln(w, "fake agent starting")
	w.Flush()

	sessions := 0
	var pendingPrompt json.RawMessage
	var promptSession string

	r := bufio.NewReader(in)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}

		var msg agentMessage
		if json.Unmarshal([]byte(line), &msg) != nil {
			continue
		}

		var params struct {
			Cwd       string `json:"cwd"`
			SessionID string `json:"sessionId"`
			ModeID    string `json:"modeId"`
			Prompt    []struct {
				Text string `json:"text"`
			} `json:"prompt"`
		}
		_ = json.Unmarshal(msg.Params, &params)

		switch msg.Method {
		case "initialize":
			switch mode {
			case agentBadInit:
				respond(msg.ID, "not an object")
			case agentInitError:
				send(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "error": map[string]any{"code": -32000, "message": "auth required"}})
			case agentExitOnInit:
				os.Exit(3)
			case agentSilentInit:
			default:
				respond(msg.ID, map[string]any{"protocolVersion": 1, "agentCapabilities": map[string]any{"loadSession": true}})
			}
		case "session/new":
			sessions++
			respond(msg.ID, map[string]any{
				"sessionId": fmt.Sprintf("sess-%d", sessions),
				"modes": map[string]any{
					"availableModes": []map[string]any{{"id": "agent", "name": "Agent"}, {"id": "plan", "name": "Plan"}},
					"currentModeId":  "agent",
				},
			})
		case "session/list":
			list := []map[string]any{{"sessionId": "sess-1", "cwd": params.Cwd, "title": "First"}}
			if mode == agentBareList {
				respond(msg.ID, list)
			} else {
				respond(msg.ID, map[string]any{"sessions": list})
			}
		case "session/load":
			respond(msg.ID, map[string]any{"modes": map[string]any{"availableModes": []any{}, "currentModeId": "plan"}})
		case "session/prompt":
			text := ""
			if len(params.Prompt) > 0 {
				text = params.Prompt[0].Text
			}
			update(params.SessionID, map[string]any{
				"sessionUpdate": "agent_message_chunk",
				"content":       map[string]any{"type": "text", "text": "echo: " + text},
			})
			// Ask for permission and finish the turn once answered.
			pendingPrompt, promptSession = msg.ID, params.SessionID
			send(map[string]any{
				"jsonrpc": "2.0",
				"id":      agentPermissionID,
				"method":  "session/request_permission",
				"params": map[string]any{
					"sessionId": params.SessionID,
					"options": []map[string]any{
						{"optionId": "yes-always", "name": "Always", "kind": "allow_always"},
						{"optionId": "no", "name": "No", "kind": "reject_once"},
					},
				},
			})
		case "session/set_mode":
			respond(msg.ID, nil)
		case "session/cancel":
			update(params.SessionID, map[string]any{"sessionUpdate": "cancel_ack"})
		case "test/exit":
			os.Exit(0)
		case "":
			if string(msg.ID) == `"`+agentPermissionID+`"` && pendingPrompt != nil {
				var result struct {
					Outcome json.RawMessage `json:"outcome"`
				}
				_ = json.Unmarshal(msg.Result, &result)
				update(promptSession, map[string]any{"sessionUpdate": "permission_outcome", "outcome": result.Outcome})
				respond(pendingPrompt, map[string]any{"stopReason": "end_turn"})
				pendingPrompt = nil
			}
		}
		// initialized and unknown methods get no answer.
	}
}
