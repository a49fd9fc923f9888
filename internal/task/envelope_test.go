package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jin09/BulkMail/internal/batch"
)

func TestNewEnvelope(t *testing.T) {
	u := batch.Unit{
		Recipient:       "e1@x.com",
		Subject:         "Hi {name}",
		Body:            "Hello {name}!",
		Personalization: map[string]string{"name": "Bob"},
	}
	before := time.Now().UTC()
	env := NewEnvelope("task-1", "batch-1", u, map[string]string{"traceparent": "00-abc"})
	after := time.Now().UTC()

	if env.Type != TypeTask {
		t.Errorf("Type = %q, want %q", env.Type, TypeTask)
	}
	if env.Version != SchemaVersion {
		t.Errorf("Version = %q, want %q", env.Version, SchemaVersion)
	}
	if env.TaskID != "task-1" || env.BatchID != "batch-1" {
		t.Errorf("ids = (%q, %q)", env.TaskID, env.BatchID)
	}
	if env.Recipient != u.Recipient || env.Subject != u.Subject || env.Body != u.Body {
		t.Error("unit fields not carried into envelope")
	}

	ts, err := time.Parse(time.RFC3339, env.SubmittedAt)
	if err != nil {
		t.Fatalf("SubmittedAt parse error: %v", err)
	}
	if ts.Before(before.Truncate(time.Second)) || ts.After(after.Add(time.Second)) {
		t.Errorf("SubmittedAt %v outside [%v, %v]", ts, before, after)
	}
}

func TestDecode(t *testing.T) {
	valid := NewEnvelope("task-1", "batch-1", batch.Unit{Recipient: "e1@x.com"}, nil)
	validRaw, _ := json.Marshal(valid)

	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{name: "valid round trip", raw: validRaw},
		{name: "not json", raw: []byte("{nope"), wantErr: true},
		{name: "wrong type", raw: mustJSON(t, Envelope{Type: "other", Version: SchemaVersion, TaskID: "t", BatchID: "b", Recipient: "a@x.com"}), wantErr: true},
		{name: "wrong version", raw: mustJSON(t, Envelope{Type: TypeTask, Version: "v99", TaskID: "t", BatchID: "b", Recipient: "a@x.com"}), wantErr: true},
		{name: "missing task id", raw: mustJSON(t, Envelope{Type: TypeTask, Version: SchemaVersion, BatchID: "b", Recipient: "a@x.com"}), wantErr: true},
		{name: "missing recipient", raw: mustJSON(t, Envelope{Type: TypeTask, Version: SchemaVersion, TaskID: "t", BatchID: "b"}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Decode() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if env.TaskID != valid.TaskID || env.Recipient != valid.Recipient {
				t.Errorf("Decode() = %+v, want %+v", env, valid)
			}
		})
	}
}

func TestNewDeadLetter(t *testing.T) {
	raw := []byte("{broken")
	dl := NewDeadLetter(raw, "undecodable payload")

	if dl.Type != DLQType {
		t.Errorf("Type = %q, want %q", dl.Type, DLQType)
	}
	if dl.Version != "v1" {
		t.Errorf("Version = %q, want v1", dl.Version)
	}
	if string(dl.Raw) != string(raw) {
		t.Error("Raw payload not preserved verbatim")
	}
	if _, err := time.Parse(time.RFC3339Nano, dl.At); err != nil {
		t.Errorf("At timestamp parse error: %v", err)
	}

	// Must survive JSON even though the wrapped payload is not JSON.
	b, err := json.Marshal(dl)
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}
	var back DeadLetter
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal dead letter: %v", err)
	}
	if string(back.Raw) != string(raw) {
		t.Error("Raw payload lost in round trip")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
