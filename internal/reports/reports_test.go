package reports_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/pkg/lifecycle"
	"github.com/JaimeStill/emissary/pkg/storage"
)

var at = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	err   error
}

func (f *fakeStore) Start(*lifecycle.Coordinator) error { return nil }

func (f *fakeStore) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	f.blobs[key] = data
	return nil
}

func (f *fakeStore) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok
}

func record(id string) *audit.Record {
	rec := audit.NewRecord(id, at)
	rec.Extraction = &audit.ExtractionResult{ExtractedText: "Contact: ops@carrier.example"}
	return rec
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "output")
	sink := reports.NewFile(dir)

	loc, err := sink.Write(context.Background(), audit.NewReport(record("INV-001")))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "INV-001_audit.json"); loc != want {
		t.Errorf("location = %s, want %s", loc, want)
	}

	data, err := os.ReadFile(loc)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("ops@carrier.example")) {
		t.Error("report leaked extracted text")
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if got["document_id"] != "INV-001" {
		t.Errorf("document_id = %v", got["document_id"])
	}
}

func TestSinkRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want error
	}{
		{"empty", "", reports.ErrNoDocument},
		{"separator", "../etc/passwd", reports.ErrInvalidPath},
		{"backslash", `a\b`, reports.ErrInvalidPath},
	}

	sinks := map[string]reports.Sink{
		"file": reports.NewFile(t.TempDir()),
		"blob": reports.NewBlob(&fakeStore{}),
	}

	for _, tt := range tests {
		for kind, sink := range sinks {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				_, err := sink.Write(context.Background(), audit.NewReport(record(tt.id)))
				if !errors.Is(err, tt.want) {
					t.Errorf("err = %v, want %v", err, tt.want)
				}
			})
		}
	}
}

func TestBlobSink(t *testing.T) {
	store := &fakeStore{}
	loc, err := reports.NewBlob(store).Write(context.Background(), audit.NewReport(record("INV-002")))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if loc != "reports/INV-002_audit.json" {
		t.Errorf("key = %s", loc)
	}
	if !store.has(loc) {
		t.Error("blob not uploaded")
	}
}

func TestPublisherContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("container unavailable")

	pub := reports.NewPublisher(discard(),
		reports.NewBlob(&fakeStore{err: boom}),
		reports.NewFile(dir),
	)

	written, err := pub.Publish(context.Background(), record("INV-003"))
	if !errors.Is(err, reports.ErrWrite) || !errors.Is(err, boom) {
		t.Errorf("err = %v, want ErrWrite wrapping the store error", err)
	}
	if len(written) != 1 || written[0] != filepath.Join(dir, "INV-003_audit.json") {
		t.Errorf("written = %v", written)
	}
}

func TestPublisherOpen(t *testing.T) {
	store := &fakeStore{}
	dir := t.TempDir()
	pub := reports.NewPublisher(discard(), reports.NewFile(dir), reports.NewBlob(store))

	if _, err := reports.NewBlob(store).Write(context.Background(), audit.NewReport(record("BLOB-ONLY"))); err != nil {
		t.Fatal(err)
	}

	rc, err := pub.Open(context.Background(), "BLOB-ONLY")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	var got audit.Report
	if err := json.NewDecoder(rc).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.DocumentID != "BLOB-ONLY" {
		t.Errorf("document_id = %s", got.DocumentID)
	}

	if _, err := pub.Open(context.Background(), "MISSING"); !errors.Is(err, reports.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
	if _, err := pub.Open(context.Background(), "../x"); !errors.Is(err, reports.ErrInvalidPath) {
		t.Errorf("traversal: err = %v, want ErrInvalidPath", err)
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	s := reports.Summary{
		Timestamp: at,
		Results:   []audit.Report{audit.NewReport(record("A")), audit.NewReport(record("B"))},
		Failures:  []reports.Failure{{Input: "c.pdf", Error: "unsupported document type"}},
	}

	dest, err := reports.WriteSummary(dir, s)
	if err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	if filepath.Base(dest) != "batch_summary_20250314_092653.json" {
		t.Errorf("file = %s", filepath.Base(dest))
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	var got reports.Summary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalProcessed != 2 {
		t.Errorf("total_processed = %d, want 2", got.TotalProcessed)
	}
	if len(got.Failures) != 1 {
		t.Errorf("failures = %v", got.Failures)
	}
}
