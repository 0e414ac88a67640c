package raftrpc

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/octoreflex/ranswarm/internal/raft"
)

// Server exposes a raft.Node's RPC handlers over gRPC.
type Server struct {
	grpcServer *grpc.Server
	log        *zap.Logger
}

// NewServer wires handler's RequestVote/AppendEntries/InstallSnapshot
// methods into a grpc.Server under the JSON codec.
func NewServer(handler Handler, log *zap.Logger) *Server {
	gs := grpc.NewServer()
	gs.RegisterService(&serviceDesc, handler)
	return &Server{grpcServer: gs, log: log}
}

// ListenAndServe blocks serving RPCs on addr until the listener or server
// is stopped.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("raftrpc: listen %s: %w", addr, err)
	}
	s.log.Info("raft gRPC transport listening", zap.String("addr", addr))
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server, waiting for in-flight RPCs to finish.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

var _ raft.Transport = (*Transport)(nil)
