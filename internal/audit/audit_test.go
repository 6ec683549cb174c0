package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		wantErr bool
	}{
		{
			name:    "valid event",
			event:   NewEvent(EventCRLGenerated, ResultSuccess),
			wantErr: false,
		},
		{
			name: "missing event_type",
			event: &Event{
				Timestamp: "2026-01-01T00:00:00Z",
				Actor:     Actor{Type: "system", ID: "test"},
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "missing result",
			event: &Event{
				EventType: EventCRLGenerated,
				Timestamp: "2026-01-01T00:00:00Z",
				Actor:     Actor{Type: "system", ID: "test"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.event.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalJSONExcludesHash(t *testing.T) {
	event := NewEvent(EventCRLGenerated, ResultSuccess).
		WithObject(Object{Type: "crl", CA: "root-ca", CRLID: "abc", Number: 7})
	event.Hash = "sha256:something"

	canonical, err := event.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	if strings.Contains(string(canonical), `"hash":`) {
		t.Error("CanonicalJSON should not contain hash field")
	}
	var decoded map[string]any
	if err := json.Unmarshal(canonical, &decoded); err != nil {
		t.Errorf("CanonicalJSON produced invalid JSON: %v", err)
	}
}

func TestFileWriterChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	events := []*Event{
		NewEvent(EventEngineStarted, ResultSuccess),
		NewEvent(EventCRLGenerated, ResultSuccess).
			WithObject(Object{Type: "crl", CA: "root-ca", Number: 1}).
			WithContext(Context{Trigger: "scheduled", Entries: 3, Signed: true}),
		NewEvent(EventCRLDistributed, ResultPartial).
			WithContext(Context{Points: 3, Failed: 1}),
	}
	for _, e := range events {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if events[0].HashPrev != GenesisHash {
		t.Errorf("first event hash_prev = %s, want genesis", events[0].HashPrev)
	}
	if events[1].HashPrev != events[0].Hash {
		t.Error("chain not linked between events 0 and 1")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	count, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if count != 3 {
		t.Errorf("VerifyChain count = %d, want 3", count)
	}
}

func TestFileWriterResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(NewEvent(EventEngineStarted, ResultSuccess)); err != nil {
		t.Fatal(err)
	}
	firstHash := w.LastHash()
	w.Close()

	// Reopen resumes from the persisted hash, not genesis.
	w, err = NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if w.LastHash() != firstHash {
		t.Errorf("resumed hash = %s, want %s", w.LastHash(), firstHash)
	}
	if err := w.Write(NewEvent(EventEngineStopped, ResultSuccess)); err != nil {
		t.Fatal(err)
	}
	w.Close()

	if count, err := VerifyChain(path); err != nil || count != 2 {
		t.Fatalf("VerifyChain = %d, %v; want 2, nil", count, err)
	}
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Write(NewEvent(EventCRLGenerated, ResultSuccess)); err != nil {
			t.Fatal(err)
		}
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"result":"success"`, `"result":"failure"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	count, err := VerifyChain(path)
	if err == nil {
		t.Fatal("expected VerifyChain to detect tampering")
	}
	if count != 0 {
		t.Errorf("valid events before the tampered record = %d, want 0", count)
	}
}

func TestNopAndMultiWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	mw := NewMultiWriter(fw, NopWriter{})

	if err := mw.Write(NewEvent(EventCRLExported, ResultSuccess)); err != nil {
		t.Fatalf("MultiWriter.Write: %v", err)
	}
	if mw.LastHash() == GenesisHash {
		t.Error("MultiWriter should report the file writer's hash")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
