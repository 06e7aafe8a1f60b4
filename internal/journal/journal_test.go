package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecordAndList(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "relay.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer store.Close()

	store.Record("alice", EventSessionCreated, "")
	store.Record("alice", EventBroadcastStarted, "resume_from=0")
	store.Record("bob", EventSessionCreated, "")

	entries, err := store.ListByIdentity(context.Background(), "alice")
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 events for alice, got %d", len(entries))
	}
	if entries[0].Event != EventSessionCreated || entries[1].Event != EventBroadcastStarted {
		t.Errorf("events out of order: %+v", entries)
	}
	if entries[1].Detail != "resume_from=0" {
		t.Errorf("detail not persisted: %q", entries[1].Detail)
	}
}

func TestListUnknownIdentityIsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "relay.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer store.Close()

	entries, err := store.ListByIdentity(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no events, got %d", len(entries))
	}
}

func TestNopRecorderDropsEverything(t *testing.T) {
	var rec Recorder = Nop{}
	// Must not panic.
	rec.Record("alice", EventSessionRemoved, "")
}
