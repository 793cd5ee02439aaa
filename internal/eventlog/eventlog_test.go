package eventlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNoopRecorderDiscardsEvents(t *testing.T) {
	var r Recorder = NoopRecorder{}
	if err := r.Record(context.Background(), Event{DeviceID: "RtpMidi:5004:1"}); err != nil {
		t.Errorf("Record() error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestSQLiteRecorderPersistsEvents(t *testing.T) {
	dir := t.TempDir()

	rec, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer rec.Close()

	dbPath := filepath.Join(dir, "rtpmidi-events.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	ev := Event{DeviceID: "RtpMidi:5004:1", SSRC: 1, Kind: Attached, Timestamp: time.Now()}
	if err := rec.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	var count int
	if err := rec.db.QueryRow(`SELECT COUNT(*) FROM connection_events WHERE device_id = ?`, ev.DeviceID).Scan(&count); err != nil {
		t.Fatalf("querying connection_events: %v", err)
	}
	if count != 1 {
		t.Errorf("connection_events row count = %d, want 1", count)
	}
}
