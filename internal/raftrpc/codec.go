// Package raftrpc is the gRPC transport for internal/raft's RequestVote,
// AppendEntries, and InstallSnapshot RPCs.
//
// There is no protoc-generated service here: no generated gossip/raft
// stubs exist in this tree, and hand-writing .pb.go files would just be
// a fake dependency wearing a real one's name. Instead this package
// registers a JSON
// encoding.Codec with grpc-go's pluggable codec mechanism and builds a
// grpc.ServiceDesc by hand, so the wire format is JSON but the transport,
// connection management, and RPC semantics (deadlines, status codes,
// keepalive) are all real grpc.
package raftrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json in place of the default protobuf codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}
