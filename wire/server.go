package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/vigil/id"
)

// Sink consumes reports arriving over the wire. The runtime implements
// it; each method maps one frame type onto the failure-detection
// pipeline.
type Sink interface {
	// HandleHeartbeat records a node heartbeat.
	HandleHeartbeat(ctx context.Context, nodeID id.NodeID) error

	// HandleWorkerExit records a worker process exit.
	// cause is "crashed", "killed", or "intentional".
	HandleWorkerExit(ctx context.Context, workerID id.WorkerID, cause string) error

	// HandleCrashReport records a worker's internal fault.
	HandleCrashReport(ctx context.Context, workerID id.WorkerID, message string) error

	// HandleVersion checks a connecting driver's version against the
	// cluster's.
	HandleVersion(ctx context.Context, jobID id.JobID, version string) error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCodec sets the frame codec.
func WithCodec(c Codec) ServerOption {
	return func(s *Server) { s.codec = c }
}

// WithServerLogger sets the structured logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server accepts WebSocket connections from node agents and drivers and
// feeds decoded frames into the sink. Each connection gets its own read
// loop; every accepted report is acked, and malformed frames get an
// error frame without dropping the connection.
type Server struct {
	sink   Sink
	codec  Codec
	logger *slog.Logger
}

// NewServer creates a wire server over the given sink.
func NewServer(sink Sink, opts ...ServerOption) *Server {
	s := &Server{
		sink:   sink,
		codec:  &MsgpackCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request to a WebSocket and runs the frame loop
// until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The connection is hijacked; serve it here so the request context
	// stays alive for the duration of the frame loop.
	s.serveConn(r.Context(), conn)
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	s.logger.Debug("wire connection opened", slog.String("remote", conn.RemoteAddr().String()))

	for {
		data, err := wsutil.ReadClientBinary(conn)
		if err != nil {
			s.logger.Debug("wire connection closed", slog.String("remote", conn.RemoteAddr().String()))
			return
		}

		frame, decErr := s.codec.Decode(data)
		if decErr != nil {
			s.writeFrame(conn, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error()))
			continue
		}

		s.writeFrame(conn, s.dispatch(ctx, frame))
	}
}

// dispatch routes one decoded frame to the sink and returns the reply.
func (s *Server) dispatch(ctx context.Context, frame *Frame) *Frame {
	switch frame.Type {
	case FramePing:
		return &Frame{
			ID:        GenerateFrameID(),
			Type:      FramePong,
			CorrelID:  frame.ID,
			Timestamp: frame.Timestamp,
		}

	case FrameHeartbeat:
		var report HeartbeatReport
		if err := json.Unmarshal(frame.Data, &report); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid heartbeat payload")
		}
		nodeID, err := id.ParseNodeID(report.NodeID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid node id")
		}
		if err := s.sink.HandleHeartbeat(ctx, nodeID); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeConflict, err.Error())
		}
		return NewAckFrame(frame.ID)

	case FrameWorkerExit:
		var report WorkerExitReport
		if err := json.Unmarshal(frame.Data, &report); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid worker exit payload")
		}
		workerID, err := id.ParseWorkerID(report.WorkerID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid worker id")
		}
		if err := s.sink.HandleWorkerExit(ctx, workerID, report.Cause); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeConflict, err.Error())
		}
		return NewAckFrame(frame.ID)

	case FrameCrashReport:
		var report CrashReport
		if err := json.Unmarshal(frame.Data, &report); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid crash payload")
		}
		workerID, err := id.ParseWorkerID(report.WorkerID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid worker id")
		}
		if err := s.sink.HandleCrashReport(ctx, workerID, report.Message); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeConflict, err.Error())
		}
		return NewAckFrame(frame.ID)

	case FrameVersion:
		var ann VersionAnnounce
		if err := json.Unmarshal(frame.Data, &ann); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid version payload")
		}
		jobID, err := id.ParseJobID(ann.JobID)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job id")
		}
		if err := s.sink.HandleVersion(ctx, jobID, ann.Version); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeConflict, err.Error())
		}
		return NewAckFrame(frame.ID)

	default:
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

func (s *Server) writeFrame(conn net.Conn, frame *Frame) {
	data, err := s.codec.Encode(frame)
	if err != nil {
		s.logger.Warn("encode frame", slog.String("error", err.Error()))
		return
	}
	if err := wsutil.WriteServerBinary(conn, data); err != nil {
		s.logger.Warn("write frame", slog.String("error", err.Error()))
	}
}
