package wire_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/id"
	"github.com/xraph/vigil/wire"
)

// recordingSink captures every report for assertions.
type recordingSink struct {
	mu         sync.Mutex
	heartbeats []id.NodeID
	exits      []string // "workerID/cause"
	crashes    []string
	versions   []string
	fail       error
}

func (s *recordingSink) HandleHeartbeat(_ context.Context, nodeID id.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.heartbeats = append(s.heartbeats, nodeID)
	return nil
}

func (s *recordingSink) HandleWorkerExit(_ context.Context, workerID id.WorkerID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.exits = append(s.exits, workerID.String()+"/"+cause)
	return nil
}

func (s *recordingSink) HandleCrashReport(_ context.Context, _ id.WorkerID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.crashes = append(s.crashes, message)
	return nil
}

func (s *recordingSink) HandleVersion(_ context.Context, _ id.JobID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.versions = append(s.versions, version)
	return nil
}

func newTestWire(t *testing.T, sink wire.Sink) *wire.Client {
	t.Helper()

	srv := httptest.NewServer(wire.NewServer(sink))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := wire.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestClientHeartbeat(t *testing.T) {
	sink := &recordingSink{}
	client := newTestWire(t, sink)

	nodeID := id.NewNodeID()
	if err := client.Heartbeat(context.Background(), nodeID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.heartbeats) != 1 || sink.heartbeats[0].String() != nodeID.String() {
		t.Errorf("expected one heartbeat for %s, got %v", nodeID, sink.heartbeats)
	}
}

func TestClientWorkerExit(t *testing.T) {
	sink := &recordingSink{}
	client := newTestWire(t, sink)

	workerID := id.NewWorkerID()
	if err := client.ReportWorkerExit(context.Background(), workerID, "crashed"); err != nil {
		t.Fatalf("report exit: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.exits) != 1 || sink.exits[0] != workerID.String()+"/crashed" {
		t.Errorf("expected crashed exit, got %v", sink.exits)
	}
}

func TestClientCrashReport(t *testing.T) {
	sink := &recordingSink{}
	client := newTestWire(t, sink)

	if err := client.ReportCrash(context.Background(), id.NewWorkerID(), "internal fault"); err != nil {
		t.Fatalf("report crash: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.crashes) != 1 || sink.crashes[0] != "internal fault" {
		t.Errorf("expected crash message recorded, got %v", sink.crashes)
	}
}

func TestClientVersionAnnounce(t *testing.T) {
	sink := &recordingSink{}
	client := newTestWire(t, sink)

	if err := client.AnnounceVersion(context.Background(), id.NewJobID(), "2.0.0"); err != nil {
		t.Fatalf("announce version: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.versions) != 1 || sink.versions[0] != "2.0.0" {
		t.Errorf("expected version recorded, got %v", sink.versions)
	}
}

func TestClientPing(t *testing.T) {
	client := newTestWire(t, &recordingSink{})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSinkRejectionSurfacesAsError(t *testing.T) {
	sink := &recordingSink{fail: errors.New("node is dead")}
	client := newTestWire(t, sink)

	err := client.Heartbeat(context.Background(), id.NewNodeID())
	if err == nil {
		t.Fatal("expected rejection error")
	}
	if !strings.Contains(err.Error(), "node is dead") {
		t.Errorf("expected sink error text, got %v", err)
	}
}

func TestClosedClientIsManagerUnavailable(t *testing.T) {
	client := newTestWire(t, &recordingSink{})

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := client.Heartbeat(context.Background(), id.NewNodeID())
	if !errors.Is(err, vigil.ErrManagerUnavailable) {
		t.Errorf("expected ErrManagerUnavailable, got %v", err)
	}
	if err := client.Ping(context.Background()); !errors.Is(err, vigil.ErrManagerUnavailable) {
		t.Errorf("ping after close: expected ErrManagerUnavailable, got %v", err)
	}
}
