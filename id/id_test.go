package id_test

import (
	"testing"

	"github.com/xraph/vigil/id"
)

func TestPrefixedParsersRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		generate func() id.ID
		parse    func(string) (id.ID, error)
	}{
		{"job", id.NewJobID, id.ParseJobID},
		{"call", id.NewCallID, id.ParseCallID},
		{"node", id.NewNodeID, id.ParseNodeID},
		{"worker", id.NewWorkerID, id.ParseWorkerID},
		{"error", id.NewErrorID, id.ParseErrorID},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			generated := tc.generate()
			parsed, err := tc.parse(generated.String())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if parsed.String() != generated.String() {
				t.Errorf("round trip: got %s, want %s", parsed, generated)
			}
		})
	}
}

func TestPrefixedParsersRejectWrongPrefix(t *testing.T) {
	if _, err := id.ParseJobID(id.NewNodeID().String()); err == nil {
		t.Error("expected prefix mismatch for node id as job id")
	}
	if _, err := id.ParseErrorID(id.NewJobID().String()); err == nil {
		t.Error("expected prefix mismatch for job id as error id")
	}
}

func TestParseEmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}
