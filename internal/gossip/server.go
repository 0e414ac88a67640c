// Package gossip — server.go
//
// TCP server for the ranswarm gossip layer: newline-delimited JSON
// envelopes signed with internal/crypto/signing and verified against a
// configured peer public-key set (internal/raftrpc's Raft transport, by
// contrast, uses insecure gRPC credentials and no envelope signing). No
// gRPC/protobuf here
// (no generated gossip service stubs exist in this tree and none are
// hand-regenerated) — a plain signed-JSON-over-TCP protocol, matching
// internal/operator's admin socket in shape, carries the same guarantees
// the domain needs: freshness, authenticity, peer trust.
//
// Envelope verification, in order:
//  1. Reject if the sender node_id is not in the trusted peer set.
//  2. Reject if the embedded signing.SignedMessage is older than
//     signing.MaxAge.
//  3. Reject if the Ed25519 signature fails verification.
//
// Steps 2 and 3 are both performed by signing.Verify. No replay check is
// made.
//
// Accepted envelopes are forwarded to the injected QuorumAccumulator so
// that repeated independent reports of the same routing-index update can
// reach quorum.
package gossip

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/crypto/signing"
)

const (
	maxGossipConns  = 32
	maxEnvelopeSize = 64 * 1024
	gossipConnIdle  = 30 * time.Second
)

// QuorumAccumulator is the interface the server uses to forward accepted
// routing-index reports to the quorum evaluator.
type QuorumAccumulator interface {
	// Record records an accepted observation from a node.
	Record(routingKey string, nodeID string, confidence float64)
}

// RoutingReport is the payload of a gossip envelope: one node's report
// that a routing-index (or parameter-change) update applies, with its
// confidence in that report.
type RoutingReport struct {
	RoutingKey string  `json:"routing_key"`
	Confidence float64 `json:"confidence"`
}

// wireEnvelope is the JSON shape written to the wire. Payload carries the
// marshaled RoutingReport; the remaining fields mirror signing.SignedMessage
// so the receiver can reconstruct it for Verify.
type wireEnvelope struct {
	Payload   []byte `json:"payload"`
	Signature []byte `json:"signature"`
	TimeUnix  int64  `json:"time_unix_ms"`
	Nonce     []byte `json:"nonce"`
	SignerID  string `json:"signer_id"`
}

// Server implements the gossip TCP listener.
type Server struct {
	nodeID       string
	trustedPeers map[string]ed25519.PublicKey // hex agent id -> verifying key
	quorum       QuorumAccumulator
	log          *zap.Logger
	sem          chan struct{}
}

// NewServer creates a gossip server. trustedPeers maps each peer's
// hex-encoded agent id (identity.AgentID.String()) to its Ed25519
// verifying key.
func NewServer(nodeID string, trustedPeers map[string]ed25519.PublicKey, quorum QuorumAccumulator, log *zap.Logger) *Server {
	return &Server{
		nodeID:       nodeID,
		trustedPeers: trustedPeers,
		quorum:       quorum,
		log:          log,
		sem:          make(chan struct{}, maxGossipConns),
	}
}

// ListenAndServe starts the gossip TCP listener on addr. Blocks until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip: listen %s: %w", addr, err)
	}
	defer lis.Close()

	s.log.Info("gossip server listening", zap.String("addr", addr), zap.String("node_id", s.nodeID))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("gossip: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("gossip: max connections reached, rejecting")
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

// handleConn reads newline-delimited envelopes from one peer connection
// until it closes or goes idle.
func (s *Server) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxEnvelopeSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(gossipConnIdle))
		if !scanner.Scan() {
			return
		}

		var w wireEnvelope
		if err := json.Unmarshal(scanner.Bytes(), &w); err != nil {
			s.log.Warn("gossip: malformed envelope", zap.Error(err))
			continue
		}
		s.handleEnvelope(w)
	}
}

func (s *Server) handleEnvelope(w wireEnvelope) {
	sm, signerID, err := decodeWireEnvelope(w)
	if err != nil {
		s.log.Warn("gossip: envelope decode failed", zap.Error(err))
		return
	}

	pub, trusted := s.trustedPeers[signerID.String()]
	if !trusted {
		s.log.Warn("gossip: envelope rejected, unknown peer", zap.String("node_id", signerID.String()))
		return
	}

	if err := signing.Verify(sm, pub); err != nil {
		s.log.Warn("gossip: envelope rejected", zap.String("node_id", signerID.String()), zap.Error(err))
		return
	}

	var report RoutingReport
	if err := json.Unmarshal(sm.Payload, &report); err != nil {
		s.log.Warn("gossip: envelope payload decode failed", zap.Error(err))
		return
	}

	s.quorum.Record(report.RoutingKey, signerID.String(), report.Confidence)
	s.log.Debug("gossip: envelope accepted",
		zap.String("node_id", signerID.String()),
		zap.String("routing_key", report.RoutingKey),
		zap.Float64("confidence", report.Confidence))
}

// decodeWireEnvelope reconstructs a signing.SignedMessage from its wire
// JSON shape.
func decodeWireEnvelope(w wireEnvelope) (*signing.SignedMessage, identity.AgentID, error) {
	id, err := identity.ParseAgentID(w.SignerID)
	if err != nil {
		return nil, identity.AgentID{}, fmt.Errorf("gossip: %w", err)
	}
	if len(w.Signature) != ed25519.SignatureSize {
		return nil, identity.AgentID{}, fmt.Errorf("gossip: signature must be %d bytes, got %d", ed25519.SignatureSize, len(w.Signature))
	}

	sm := &signing.SignedMessage{
		Payload:   w.Payload,
		Time:      time.UnixMilli(w.TimeUnix),
		SignerID:  id,
		Algorithm: signing.AlgorithmEd25519,
	}
	copy(sm.Signature[:], w.Signature)
	if len(w.Nonce) > 0 {
		copy(sm.Nonce[:], w.Nonce)
	}
	return sm, id, nil
}

// encodeWireEnvelope serializes a signed RoutingReport to its JSON wire
// shape, used by both the server's peer-dial client and the federation
// manager.
func encodeWireEnvelope(sm *signing.SignedMessage) []byte {
	w := wireEnvelope{
		Payload:   sm.Payload,
		Signature: sm.Signature[:],
		TimeUnix:  sm.Time.UnixMilli(),
		Nonce:     sm.Nonce[:],
		SignerID:  sm.SignerID.String(),
	}
	data, _ := json.Marshal(w)
	return append(data, '\n')
}

// SendReport signs and sends one RoutingReport to a peer's gossip
// listener, dialing fresh each call (gossip traffic is low-frequency;
// connection pooling is not worth the complexity).
func SendReport(ctx context.Context, addr string, id *identity.Identity, report RoutingReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("gossip: marshal report: %w", err)
	}
	sm, err := signing.Sign(id, payload)
	if err != nil {
		return fmt.Errorf("gossip: sign report: %w", err)
	}
	return sendWireEnvelope(ctx, addr, encodeWireEnvelope(sm))
}

// sendWireEnvelope dials addr and writes a pre-encoded envelope, shared by
// SendReport and the federated Q-table share loop.
func sendWireEnvelope(ctx context.Context, addr string, wire []byte) error {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gossip: dial %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(wire); err != nil {
		return fmt.Errorf("gossip: write envelope: %w", err)
	}
	return nil
}
