package raftrpc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/octoreflex/ranswarm/internal/raft"
)

// Transport implements raft.Transport over gRPC, dialing and caching one
// connection per peer address.
type Transport struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
	log   *zap.Logger
}

// NewTransport returns a Transport with no open connections; peers are
// dialed lazily on first use.
func NewTransport(log *zap.Logger) *Transport {
	return &Transport{conns: make(map[string]*grpc.ClientConn), log: log}
}

func (t *Transport) connFor(addr string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cc, ok := t.conns[addr]; ok {
		return cc, nil
	}
	cc, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)))
	if err != nil {
		return nil, fmt.Errorf("raftrpc: dial %s: %w", addr, err)
	}
	t.conns[addr] = cc
	return cc, nil
}

func (t *Transport) RequestVote(ctx context.Context, peerAddr string, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	cc, err := t.connFor(peerAddr)
	if err != nil {
		return nil, err
	}
	resp := new(raft.RequestVoteResponse)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/RequestVote", req, resp); err != nil {
		return nil, fmt.Errorf("raftrpc: RequestVote to %s: %w", peerAddr, err)
	}
	return resp, nil
}

func (t *Transport) AppendEntries(ctx context.Context, peerAddr string, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	cc, err := t.connFor(peerAddr)
	if err != nil {
		return nil, err
	}
	resp := new(raft.AppendEntriesResponse)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/AppendEntries", req, resp); err != nil {
		return nil, fmt.Errorf("raftrpc: AppendEntries to %s: %w", peerAddr, err)
	}
	return resp, nil
}

func (t *Transport) InstallSnapshot(ctx context.Context, peerAddr string, req *raft.InstallSnapshotRequest) (*raft.InstallSnapshotResponse, error) {
	cc, err := t.connFor(peerAddr)
	if err != nil {
		return nil, err
	}
	resp := new(raft.InstallSnapshotResponse)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/InstallSnapshot", req, resp); err != nil {
		return nil, fmt.Errorf("raftrpc: InstallSnapshot to %s: %w", peerAddr, err)
	}
	return resp, nil
}

// Close tears down every cached connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for addr, cc := range t.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("raftrpc: close %s: %w", addr, err)
		}
	}
	t.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
