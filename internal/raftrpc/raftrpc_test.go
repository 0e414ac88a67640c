package raftrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/ranswarm/internal/raft"
)

// fakeHandler is an in-test Handler that echoes back a response derived
// from the request, so the test can assert the RPC actually round-tripped
// over the real gRPC+JSON-codec wire rather than calling through in
// process.
type fakeHandler struct{}

func (fakeHandler) HandleRequestVote(req *raft.RequestVoteRequest) *raft.RequestVoteResponse {
	return &raft.RequestVoteResponse{Term: req.Term + 1, VoteGranted: true}
}

func (fakeHandler) HandleAppendEntries(req *raft.AppendEntriesRequest) *raft.AppendEntriesResponse {
	return &raft.AppendEntriesResponse{Term: req.Term, Success: len(req.Entries) == 0}
}

func (fakeHandler) HandleInstallSnapshot(req *raft.InstallSnapshotRequest) *raft.InstallSnapshotResponse {
	return &raft.InstallSnapshotResponse{Term: req.Term}
}

func startTestServer(t *testing.T) string {
	t.Helper()
	srv := NewServer(fakeHandler{}, zap.NewNop())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.grpcServer.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestRequestVoteRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	client := NewTransport(zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.RequestVote(ctx, addr, &raft.RequestVoteRequest{Term: 3, CandidateID: "node-a"})
	if err != nil {
		t.Fatalf("RequestVote: %v", err)
	}
	if resp.Term != 4 || !resp.VoteGranted {
		t.Fatalf("resp = %+v, want Term=4 VoteGranted=true", resp)
	}
}

func TestAppendEntriesRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	client := NewTransport(zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.AppendEntries(ctx, addr, &raft.AppendEntriesRequest{Term: 7, LeaderID: "node-b"})
	if err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	if resp.Term != 7 || !resp.Success {
		t.Fatalf("resp = %+v, want Term=7 Success=true", resp)
	}
}

func TestInstallSnapshotRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	client := NewTransport(zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.InstallSnapshot(ctx, addr, &raft.InstallSnapshotRequest{Term: 9})
	if err != nil {
		t.Fatalf("InstallSnapshot: %v", err)
	}
	if resp.Term != 9 {
		t.Fatalf("resp.Term = %d, want 9", resp.Term)
	}
}

func TestConnectionReuse(t *testing.T) {
	addr := startTestServer(t)
	client := NewTransport(zap.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.RequestVote(ctx, addr, &raft.RequestVoteRequest{Term: 1}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	client.mu.Lock()
	n := len(client.conns)
	client.mu.Unlock()
	if n != 1 {
		t.Fatalf("conns after first call = %d, want 1", n)
	}

	if _, err := client.RequestVote(ctx, addr, &raft.RequestVoteRequest{Term: 2}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	client.mu.Lock()
	n = len(client.conns)
	client.mu.Unlock()
	if n != 1 {
		t.Fatalf("conns after second call = %d, want 1 (connection should be reused)", n)
	}
}
