package raftrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/octoreflex/ranswarm/internal/raft"
)

// ServiceName is the gRPC service path peers dial.
const ServiceName = "ranswarm.raft.RaftTransport"

// Handler is the subset of raft.Node's RPC-handling surface this service
// dispatches to. raft.Node satisfies it directly.
type Handler interface {
	HandleRequestVote(req *raft.RequestVoteRequest) *raft.RequestVoteResponse
	HandleAppendEntries(req *raft.AppendEntriesRequest) *raft.AppendEntriesResponse
	HandleInstallSnapshot(req *raft.InstallSnapshotRequest) *raft.InstallSnapshotResponse
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(raft.RequestVoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleRequestVote(req), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RequestVote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).HandleRequestVote(req.(*raft.RequestVoteRequest)), nil
	}
	return interceptor(ctx, req, info, handler)
}

func appendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(raft.AppendEntriesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleAppendEntries(req), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/AppendEntries"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).HandleAppendEntries(req.(*raft.AppendEntriesRequest)), nil
	}
	return interceptor(ctx, req, info, handler)
}

func installSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(raft.InstallSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).HandleInstallSnapshot(req), nil
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/InstallSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Handler).HandleInstallSnapshot(req.(*raft.InstallSnapshotRequest)), nil
	}
	return interceptor(ctx, req, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "InstallSnapshot", Handler: installSnapshotHandler},
	},
	Metadata: "internal/raftrpc/service.go",
}
