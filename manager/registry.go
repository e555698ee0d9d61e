package manager

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/arandu-app/arandu-core/acp"
	"github.com/arandu-app/arandu-core/config"
	"github.com/arandu-app/arandu-core/logger"
	"github.com/arandu-app/arandu-core/process"
)

// Compile-time interface satisfaction check.
var _ RegistryConfig = (*config.Config)(nil)

// ErrNotConnected is returned for operations on a workspace without a live
// connection.
var ErrNotConnected = errors.New("workspace not connected")

// RegistryConfig defines the configuration interface required by Registry.
//
// *config.Config satisfies this interface implicitly.
type RegistryConfig interface {
	GetRequestTimeout() time.Duration
	GetQueueCapacity() int
	GetProtocolVersion() int
	GetClientCapabilities() map[string]any
	GetMCPServers() []config.MCPServer
	GetDebug() bool
	SpawnConfig(cwd string) process.SpawnConfig
}

// Dialer starts an agent and attaches a connection to it.
// This allows tests to observe or replace process creation.
type Dialer func(spawn process.SpawnConfig, opts acp.Options) (*acp.Connection, error)

// entry is one live workspace.
type entry struct {
	conn  *acp.Connection
	agent acp.InitializeResult
}

// Registry maps workspaces to their live agent connections. At most one
// connection exists per workspace; it is only visible once its handshake
// has completed.
type Registry struct {
	config RegistryConfig
	sink   acp.EventSink
	dialer Dialer
	policy acp.PermissionPolicy
	log    *slog.Logger

	connecting singleflight.Group
	conns      map[string]*entry
	// Teardown counters. A connect whose handshake straddles a Disconnect or
	// DisconnectAll sees them change and discards its connection.
	generations map[string]uint64
	epoch       uint64
	mu          sync.RWMutex // Protects conns, generations, epoch, dialer and policy
}

// New creates a registry. A nil cfg uses config.Default(); a nil sink
// discards session updates. If cfg enables debug, debug logging is turned on.
func New(cfg RegistryConfig, sink acp.EventSink) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if sink == nil {
		sink = acp.Discard
	}
	if cfg.GetDebug() {
		logger.SetDebug(true)
	}
	return &Registry{
		config:      cfg,
		sink:        sink,
		dialer:      acp.Spawn,
		policy:      acp.AutoApprove,
		log:         logger.WithComponent("registry"),
		conns:       make(map[string]*entry),
		generations: make(map[string]uint64),
	}
}

// SetDialer sets a custom dialer (for testing).
func (r *Registry) SetDialer(d Dialer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialer = d
}

// SetPermissionPolicy sets how connections made after this call answer
// permission requests.
func (r *Registry) SetPermissionPolicy(p acp.PermissionPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = p
}

// Connect ensures workspace has a live, handshaken connection. It is a no-op
// if one already exists; concurrent calls for the same workspace share one
// spawn and one handshake.
func (r *Registry) Connect(ctx context.Context, workspace string, spawn process.SpawnConfig) error {
	if r.IsConnected(workspace) {
		return nil
	}

	_, err, shared := r.connecting.Do(workspace, func() (any, error) {
		if r.IsConnected(workspace) {
			return nil, nil
		}
		return nil, r.connect(ctx, workspace, spawn)
	})
	if shared {
		r.log.Debug("joined in-flight connect", "workspaceID", workspace)
	}
	return err
}

// ConnectDir connects workspace using the configured agent profile rooted
// at cwd.
func (r *Registry) ConnectDir(ctx context.Context, workspace, cwd string) error {
	return r.Connect(ctx, workspace, r.config.SpawnConfig(cwd))
}

func (r *Registry) connect(ctx context.Context, workspace string, spawn process.SpawnConfig) error {
	log := r.log.With("workspaceID", workspace)
	startTime := time.Now()

	r.mu.RLock()
	dial, policy := r.dialer, r.policy
	generation, epoch := r.generations[workspace], r.epoch
	r.mu.RUnlock()

	conn, err := dial(spawn, acp.Options{
		WorkspaceID:    workspace,
		RequestTimeout: r.config.GetRequestTimeout(),
		QueueCapacity:  r.config.GetQueueCapacity(),
		Sink:           r.sink,
		Policy:         policy,
		OnExit:         r.handleExit,
	})
	if err != nil {
		log.Error("failed to spawn agent", "command", spawn.String(), "error", err)
		var spawnErr *acp.SpawnError
		if errors.As(err, &spawnErr) {
			return err
		}
		return &acp.SpawnError{Binary: spawn.Binary, Err: err}
	}

	agent, err := r.handshake(ctx, conn)
	if err != nil {
		log.Error("handshake failed", "error", err)
		conn.Shutdown()
		return &acp.HandshakeError{Workspace: workspace, Err: err}
	}

	r.mu.Lock()
	if r.generations[workspace] != generation || r.epoch != epoch {
		r.mu.Unlock()
		log.Info("workspace disconnected during handshake, discarding connection")
		conn.Shutdown()
		return &acp.HandshakeError{Workspace: workspace, Err: acp.ErrConnectionClosed}
	}
	r.conns[workspace] = &entry{conn: conn, agent: agent}
	r.mu.Unlock()

	// The agent may have exited between the handshake and the insert, in
	// which case handleExit could not see the entry yet.
	select {
	case <-conn.Done():
		r.removeIfCurrent(workspace, conn)
		return &acp.HandshakeError{Workspace: workspace, Err: acp.ErrConnectionClosed}
	default:
	}

	log.Info("workspace connected", "connID", conn.ConnID(), "protocolVersion", agent.ProtocolVersion, "elapsed", time.Since(startTime))
	return nil
}

// handleExit runs when an agent closes its output on its own.
func (r *Registry) handleExit(conn *acp.Connection) {
	r.log.Warn("agent exited, removing workspace", "workspaceID", conn.WorkspaceID(), "connID", conn.ConnID())
	conn.Shutdown()
	r.removeIfCurrent(conn.WorkspaceID(), conn)
}

// removeIfCurrent deletes workspace only if it still maps to conn, so a
// stale exit never removes a newer connection.
func (r *Registry) removeIfCurrent(workspace string, conn *acp.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[workspace]; ok && e.conn == conn {
		delete(r.conns, workspace)
	}
}

// Disconnect removes and shuts down the workspace's connection, if any. A
// connect still in its handshake for workspace fails instead of registering.
func (r *Registry) Disconnect(workspace string) {
	r.mu.Lock()
	e, ok := r.conns[workspace]
	delete(r.conns, workspace)
	r.generations[workspace]++
	r.mu.Unlock()

	if !ok {
		return
	}
	e.conn.Shutdown()
	r.log.Info("workspace disconnected", "workspaceID", workspace)
}

// WithConnection runs op against the workspace's live connection. The
// registry lock is not held while op runs, so operations on the same
// workspace proceed concurrently. If the workspace is disconnected while op
// runs, op's calls fail with acp.ErrChannelClosed (not yet sent) or
// acp.ErrConnectionClosed (awaiting a response) rather than ErrNotConnected.
func (r *Registry) WithConnection(workspace string, op func(*acp.Connection) error) error {
	r.mu.RLock()
	e, ok := r.conns[workspace]
	r.mu.RUnlock()

	if !ok {
		return ErrNotConnected
	}
	return op(e.conn)
}

// DisconnectAll shuts down every connection concurrently. Outstanding
// requests fail immediately and connects still in their handshake fail
// instead of registering. Meant for host shutdown.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	drained := r.conns
	r.conns = make(map[string]*entry)
	r.epoch++
	r.mu.Unlock()

	var g errgroup.Group
	for workspace, e := range drained {
		g.Go(func() error {
			e.conn.Shutdown()
			r.log.Info("workspace torn down", "workspaceID", workspace)
			return nil
		})
	}
	_ = g.Wait()

	if len(drained) > 0 {
		r.log.Info("disconnected all workspaces", "count", len(drained))
	}
}

// IsConnected reports whether workspace has a live connection.
func (r *Registry) IsConnected(workspace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[workspace]
	return ok
}

// Workspaces returns the connected workspaces, sorted.
func (r *Registry) Workspaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	workspaces := make([]string, 0, len(r.conns))
	for ws := range r.conns {
		workspaces = append(workspaces, ws)
	}
	slices.Sort(workspaces)
	return workspaces
}

// AgentInfo returns what the workspace's agent reported during initialize.
func (r *Registry) AgentInfo(workspace string) (acp.InitializeResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[workspace]
	if !ok {
		return acp.InitializeResult{}, false
	}
	return e.agent, true
}
