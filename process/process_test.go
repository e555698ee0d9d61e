package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpawnConfig_String(t *testing.T) {
	tests := []struct {
		cfg  SpawnConfig
		want string
	}{
		{SpawnConfig{Binary: "copilot"}, "copilot"},
		{SpawnConfig{Binary: "copilot", Args: []string{"--acp", "--stdio"}}, "copilot --acp --stdio"},
	}
	for _, tt := range tests {
		if got := tt.cfg.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestStart_EmptyBinary(t *testing.T) {
	if _, err := Start(SpawnConfig{}, testLogger()); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(SpawnConfig{Binary: "definitely-not-an-agent-binary-xyz"}, testLogger())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("error = %v, want wrapped exec.ErrNotFound", err)
	}
}

func TestProcess_EchoRoundTrip(t *testing.T) {
	p, err := Start(SpawnConfig{Binary: "cat", Dir: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Kill()

	if p.Pid() <= 0 {
		t.Errorf("Pid() = %d, want > 0", p.Pid())
	}

	if _, err := io.WriteString(p.Stdin(), "hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	lineCh := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(p.Stdout()).ReadString('\n')
		lineCh <- line
	}()

	select {
	case line := <-lineCh:
		if strings.TrimSpace(line) != "hello" {
			t.Errorf("read %q, want %q", line, "hello")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestProcess_KillIsIdempotent(t *testing.T) {
	p, err := Start(SpawnConfig{Binary: "sleep", Args: []string{"60"}}, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := p.Kill(); err != nil {
		t.Fatalf("first Kill: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("second Kill: %v", err)
	}

	select {
	case <-p.Done():
	default:
		t.Fatal("Done should be closed after Kill")
	}
	if p.ExitErr() == nil {
		t.Error("ExitErr should report the kill signal")
	}
}

func TestProcess_NaturalExitClosesStdout(t *testing.T) {
	p, err := Start(SpawnConfig{Binary: "sh", Args: []string{"-c", "echo ready"}}, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Kill()

	// The line written just before exit must still be readable.
	data, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if strings.TrimSpace(string(data)) != "ready" {
		t.Errorf("stdout = %q, want %q", data, "ready")
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	if p.ExitErr() != nil {
		t.Errorf("ExitErr = %v, want nil", p.ExitErr())
	}
}

func TestProcess_Env(t *testing.T) {
	p, err := Start(SpawnConfig{
		Binary: "sh",
		Args:   []string{"-c", "echo $ARANDU_TEST_VAR"},
		Env:    []string{"ARANDU_TEST_VAR=from-config"},
	}, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Kill()

	data, _ := io.ReadAll(p.Stdout())
	if strings.TrimSpace(string(data)) != "from-config" {
		t.Errorf("stdout = %q, want %q", data, "from-config")
	}
}
