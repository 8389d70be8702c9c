// Package wire implements the Vigil wire protocol — a message-based
// protocol carrying liveness and failure reports between node agents
// and the runtime. Frames are transported over WebSocket and encoded
// as MessagePack (primary) or JSON.
package wire

import (
	"encoding/json"
	"time"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameHeartbeat   FrameType = "heartbeat"
	FrameWorkerExit  FrameType = "worker_exit"
	FrameCrashReport FrameType = "crash_report"
	FrameVersion     FrameType = "version"
	FrameAck         FrameType = "ack"
	FrameErr         FrameType = "error"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
)

// Frame is the wire message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// CorrelID links an ack or error to its originating frame.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the type-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an ack or error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest = 400
	ErrCodeNotFound   = 404
	ErrCodeConflict   = 409
	ErrCodeInternal   = 500
)

// ── Payloads ────────────────────────────────────────

// HeartbeatReport announces a node is alive.
type HeartbeatReport struct {
	NodeID string `json:"node_id" msgpack:"node_id"`
}

// WorkerExitReport announces a worker process exited.
type WorkerExitReport struct {
	WorkerID string `json:"worker_id" msgpack:"worker_id"`

	// Cause is "crashed", "killed", or "intentional".
	Cause string `json:"cause" msgpack:"cause"`
}

// CrashReport carries a worker's internal fault before the process dies.
type CrashReport struct {
	WorkerID string `json:"worker_id" msgpack:"worker_id"`
	Message  string `json:"message" msgpack:"message"`
}

// VersionAnnounce is sent by a connecting driver so the runtime can
// detect version skew against the cluster.
type VersionAnnounce struct {
	JobID   string `json:"job_id" msgpack:"job_id"`
	Version string `json:"version" msgpack:"version"`
}

// NewFrame creates a frame of the given type with a marshaled payload.
func NewFrame(t FrameType, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      t,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewAckFrame creates an ack for a received frame.
func NewAckFrame(correlID string) *Frame {
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameAck,
		CorrelID:  correlID,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorFrame creates an error response to a frame.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// GenerateFrameID returns a new unique frame ID.
// Uses a simple timestamp approach for performance.
func GenerateFrameID() string {
	return time.Now().UTC().Format("20060102150405.000000000")
}
