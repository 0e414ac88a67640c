// Package operator — server.go
//
// Unix domain socket server for ranswarm operator overrides.
//
// Protocol: newline-delimited JSON over a Unix domain socket.
// Socket path: configurable (config.OperatorConfig.SocketPath).
// Permissions: 0600, owned by the agent's running user.
//
// Commands (JSON request -> JSON response):
//
//	{"cmd":"status"}
//	  -> Agent-level snapshot: agent id, queue depth, current epsilon,
//	     Q-table entry count, cache entry count and memory pressure,
//	     Raft role/term (if Raft is wired).
//	  -> Response: {"ok":true,"status":{...}}
//
//	{"cmd":"cooldown_list"}
//	  -> Every RAN parameter currently within its safety cooldown window,
//	     with remaining time.
//	  -> Response: {"ok":true,"cooldowns":[{"parameter":"...","remaining_seconds":120},...]}
//
//	{"cmd":"cooldown_clear","parameter":"lbActivationThreshold"}
//	  -> Clears the cooldown on one parameter, allowing an immediate change.
//	  -> Response: {"ok":true,"parameter":"lbActivationThreshold"}
//
//	{"cmd":"cooldown_clear_all"}
//	  -> Clears every active cooldown.
//	  -> Response: {"ok":true}
//
// Security:
//   - Socket is created with 0600 permissions.
//   - Each connection is handled in a separate goroutine.
//   - Max concurrent connections: 4 (operator use only, not high-throughput).
//   - Max request size: 4096 bytes (prevents memory exhaustion).
//   - Connection timeout: 10s read, 10s write.
//   - Every command is logged.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/ranswarm/internal/safety"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// AgentStatus is the read-only view of agent state the operator server
// exposes over the "status" command. Implemented by a thin adapter over
// agent.Agent in cmd/ranswarm.
type AgentStatus interface {
	AgentID() string
	QueueDepth() int
	Epsilon() float32
	QTableEntries() int
	CacheEntries() int
	CacheMemoryPressure() float32
	RaftRole() string // "" if Raft is not wired
	RaftTerm() uint64
}

// StatusSnapshot is the JSON shape of a "status" response.
type StatusSnapshot struct {
	AgentID              string  `json:"agent_id"`
	QueueDepth           int     `json:"queue_depth"`
	Epsilon              float32 `json:"epsilon"`
	QTableEntries        int     `json:"q_table_entries"`
	CacheEntries          int    `json:"cache_entries"`
	CacheMemoryPressure  float32 `json:"cache_memory_pressure"`
	RaftRole             string  `json:"raft_role,omitempty"`
	RaftTerm             uint64  `json:"raft_term,omitempty"`
}

// CooldownSnapshot is the JSON shape of one entry in a "cooldown_list"
// response.
type CooldownSnapshot struct {
	Parameter        string  `json:"parameter"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// Request is the JSON structure for operator commands.
type Request struct {
	Cmd       string `json:"cmd"` // status | cooldown_list | cooldown_clear | cooldown_clear_all
	Parameter string `json:"parameter,omitempty"`
}

// Response is the JSON structure for operator command responses.
type Response struct {
	OK         bool               `json:"ok"`
	Error      string             `json:"error,omitempty"`
	Status     *StatusSnapshot    `json:"status,omitempty"`
	Parameter  string             `json:"parameter,omitempty"`
	Cooldowns  []CooldownSnapshot `json:"cooldowns,omitempty"`
}

// Server is the operator Unix domain socket server.
type Server struct {
	socketPath string
	status     AgentStatus
	safety     *safety.Validator
	log        *zap.Logger
	sem        chan struct{} // Semaphore: max concurrent connections.
}

// NewServer creates an operator Server.
func NewServer(socketPath string, status AgentStatus, validator *safety.Validator, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		status:     status,
		safety:     validator,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe starts the operator socket server. Removes any stale
// socket file before binding. Blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("operator: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("operator: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("operator: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("operator: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("operator socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // Clean shutdown.
			default:
				s.log.Error("operator: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("operator: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn handles a single operator connection: reads one JSON
// request, executes the command, writes one JSON response.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("operator: read error", zap.Error(err))
		return
	}

	var req Request
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.writeResponse(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	s.log.Info("operator: command received", zap.String("cmd", req.Cmd))
	switch req.Cmd {
	case "status":
		return s.cmdStatus()
	case "cooldown_list":
		return s.cmdCooldownList()
	case "cooldown_clear":
		return s.cmdCooldownClear(req)
	case "cooldown_clear_all":
		return s.cmdCooldownClearAll()
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func (s *Server) cmdStatus() Response {
	if s.status == nil {
		return Response{OK: false, Error: "agent status not wired"}
	}
	return Response{OK: true, Status: &StatusSnapshot{
		AgentID:             s.status.AgentID(),
		QueueDepth:          s.status.QueueDepth(),
		Epsilon:             s.status.Epsilon(),
		QTableEntries:       s.status.QTableEntries(),
		CacheEntries:        s.status.CacheEntries(),
		CacheMemoryPressure: s.status.CacheMemoryPressure(),
		RaftRole:            s.status.RaftRole(),
		RaftTerm:            s.status.RaftTerm(),
	}}
}

func (s *Server) cmdCooldownList() Response {
	if s.safety == nil {
		return Response{OK: false, Error: "safety validator not wired"}
	}
	statuses := s.safety.ListCooldowns()
	out := make([]CooldownSnapshot, len(statuses))
	for i, st := range statuses {
		out[i] = CooldownSnapshot{Parameter: st.Parameter, RemainingSeconds: st.Remaining.Seconds()}
	}
	return Response{OK: true, Cooldowns: out}
}

func (s *Server) cmdCooldownClear(req Request) Response {
	if s.safety == nil {
		return Response{OK: false, Error: "safety validator not wired"}
	}
	if req.Parameter == "" {
		return Response{OK: false, Error: "parameter required for cooldown_clear"}
	}
	s.safety.ClearCooldown(req.Parameter)
	s.log.Info("operator: cooldown cleared", zap.String("parameter", req.Parameter))
	return Response{OK: true, Parameter: req.Parameter}
}

func (s *Server) cmdCooldownClearAll() Response {
	if s.safety == nil {
		return Response{OK: false, Error: "safety validator not wired"}
	}
	s.safety.ClearAllCooldowns()
	s.log.Info("operator: all cooldowns cleared")
	return Response{OK: true}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
