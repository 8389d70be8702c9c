package wire_test

import (
	"testing"

	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/wire"
)

func TestNewFrameCarriesPayload(t *testing.T) {
	nodeID := id.NewNodeID()
	f, err := wire.NewFrame(wire.FrameHeartbeat, wire.HeartbeatReport{NodeID: nodeID.String()})
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}

	if f.ID == "" {
		t.Error("expected frame id")
	}
	if f.Type != wire.FrameHeartbeat {
		t.Errorf("expected heartbeat type, got %q", f.Type)
	}
	if f.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if len(f.Data) == 0 {
		t.Error("expected payload data")
	}
}

func TestNewErrorFrame(t *testing.T) {
	f := wire.NewErrorFrame("frame-1", wire.ErrCodeBadRequest, "bad payload")

	if f.Type != wire.FrameErr {
		t.Errorf("expected error type, got %q", f.Type)
	}
	if f.CorrelID != "frame-1" {
		t.Errorf("expected correl id frame-1, got %q", f.CorrelID)
	}
	if f.Error == nil || f.Error.Code != wire.ErrCodeBadRequest {
		t.Errorf("expected error detail with code %d", wire.ErrCodeBadRequest)
	}
}

func TestNewAckFrame(t *testing.T) {
	f := wire.NewAckFrame("frame-2")

	if f.Type != wire.FrameAck {
		t.Errorf("expected ack type, got %q", f.Type)
	}
	if f.CorrelID != "frame-2" {
		t.Errorf("expected correl id frame-2, got %q", f.CorrelID)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codecs := []wire.Codec{&wire.MsgpackCodec{}, &wire.JSONCodec{}}

	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			original, err := wire.NewFrame(wire.FrameCrashReport, wire.CrashReport{
				WorkerID: id.NewWorkerID().String(),
				Message:  "worker fault",
			})
			if err != nil {
				t.Fatalf("new frame: %v", err)
			}

			data, err := codec.Encode(original)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			decoded, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			if decoded.ID != original.ID {
				t.Errorf("id: got %q, want %q", decoded.ID, original.ID)
			}
			if decoded.Type != original.Type {
				t.Errorf("type: got %q, want %q", decoded.Type, original.Type)
			}
			if string(decoded.Data) != string(original.Data) {
				t.Errorf("data: got %s, want %s", decoded.Data, original.Data)
			}
		})
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	for _, codec := range []wire.Codec{&wire.MsgpackCodec{}, &wire.JSONCodec{}} {
		if _, err := codec.Decode([]byte("\x00garbage")); err == nil {
			t.Errorf("%s: expected decode error for garbage input", codec.Name())
		}
	}
}

func TestGetCodec(t *testing.T) {
	if got := wire.GetCodec("json").Name(); got != wire.CodecNameJSON {
		t.Errorf("json: got %q", got)
	}
	if got := wire.GetCodec("msgpack").Name(); got != wire.CodecNameMsgpack {
		t.Errorf("msgpack: got %q", got)
	}
	// Default is msgpack.
	if got := wire.GetCodec("").Name(); got != wire.CodecNameMsgpack {
		t.Errorf("default: got %q", got)
	}
}
