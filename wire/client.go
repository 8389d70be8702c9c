package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/id"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientCodec sets the frame codec.
func WithClientCodec(c Codec) ClientOption {
	return func(cl *Client) { cl.codec = c }
}

// WithClientLogger sets the structured logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client is the node-agent side of the wire protocol. Reports are
// synchronous: each send waits for the server's ack or error frame on
// the same connection. A closed client rejects every call with
// vigil.ErrManagerUnavailable so blocked callers surface the lost
// connection instead of hanging.
type Client struct {
	url    string
	codec  Codec
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed atomic.Bool
}

// Dial connects to a wire server.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		codec:  &MsgpackCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("vigil/wire: dial: %w", err)
	}
	c.conn = conn

	return c, nil
}

// Close closes the connection. Subsequent calls on the client fail with
// vigil.ErrManagerUnavailable.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Heartbeat reports the node alive.
func (c *Client) Heartbeat(ctx context.Context, nodeID id.NodeID) error {
	return c.report(ctx, FrameHeartbeat, HeartbeatReport{NodeID: nodeID.String()})
}

// ReportWorkerExit reports a worker process exit.
func (c *Client) ReportWorkerExit(ctx context.Context, workerID id.WorkerID, cause string) error {
	return c.report(ctx, FrameWorkerExit, WorkerExitReport{
		WorkerID: workerID.String(),
		Cause:    cause,
	})
}

// ReportCrash reports a worker's internal fault.
func (c *Client) ReportCrash(ctx context.Context, workerID id.WorkerID, message string) error {
	return c.report(ctx, FrameCrashReport, CrashReport{
		WorkerID: workerID.String(),
		Message:  message,
	})
}

// AnnounceVersion reports the driver's runtime version for skew
// detection.
func (c *Client) AnnounceVersion(ctx context.Context, jobID id.JobID, version string) error {
	return c.report(ctx, FrameVersion, VersionAnnounce{
		JobID:   jobID.String(),
		Version: version,
	})
}

// Ping round-trips a ping frame.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return vigil.ErrManagerUnavailable
	}

	frame := &Frame{ID: GenerateFrameID(), Type: FramePing}
	reply, err := c.roundTrip(ctx, frame)
	if err != nil {
		return err
	}
	if reply.Type != FramePong {
		return fmt.Errorf("vigil/wire: unexpected reply type %q", reply.Type)
	}
	return nil
}

// report sends one frame and consumes the ack.
func (c *Client) report(ctx context.Context, t FrameType, payload any) error {
	if c.closed.Load() {
		return vigil.ErrManagerUnavailable
	}

	frame, err := NewFrame(t, payload)
	if err != nil {
		return fmt.Errorf("vigil/wire: marshal %s: %w", t, err)
	}

	reply, err := c.roundTrip(ctx, frame)
	if err != nil {
		return err
	}
	if reply.Type == FrameErr && reply.Error != nil {
		return fmt.Errorf("vigil/wire: %s rejected: %s", t, reply.Error.Message)
	}
	return nil
}

// roundTrip writes a frame and reads the correlated reply. Sends are
// serialized on one connection; a read failure after close maps to
// vigil.ErrManagerUnavailable.
func (c *Client) roundTrip(_ context.Context, frame *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.codec.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("vigil/wire: encode frame: %w", err)
	}

	if err := wsutil.WriteClientBinary(c.conn, data); err != nil {
		if c.closed.Load() {
			return nil, vigil.ErrManagerUnavailable
		}
		return nil, fmt.Errorf("vigil/wire: write frame: %w", err)
	}

	replyData, err := wsutil.ReadServerBinary(c.conn)
	if err != nil {
		if c.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, vigil.ErrManagerUnavailable
		}
		return nil, fmt.Errorf("vigil/wire: read reply: %w", err)
	}

	reply, err := c.codec.Decode(replyData)
	if err != nil {
		return nil, fmt.Errorf("vigil/wire: decode reply: %w", err)
	}
	return reply, nil
}
