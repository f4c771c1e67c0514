// Package reports persists audit reports and batch summaries.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/pkg/storage"
)

const contentType = "application/json"

// BlobPrefix is the key prefix for reports written to blob storage.
const BlobPrefix = "reports/"

// Sink stores a rendered report and returns where it landed. Open reads a
// stored report back by document id.
type Sink interface {
	Write(ctx context.Context, r audit.Report) (string, error)
	Open(ctx context.Context, documentID string) (io.ReadCloser, error)
}

func filename(documentID string) (string, error) {
	if strings.ContainsAny(documentID, `/\`) || strings.Contains(documentID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, documentID)
	}
	return audit.Report{DocumentID: documentID}.Filename(), nil
}

func render(r audit.Report) ([]byte, error) {
	if r.DocumentID == "" {
		return nil, ErrNoDocument
	}
	if _, err := filename(r.DocumentID); err != nil {
		return nil, err
	}
	return r.Marshal()
}

// File writes reports as <dir>/<document_id>_audit.json.
type File struct {
	dir string
}

// NewFile creates a file sink rooted at dir. The directory is created on
// first write.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) Write(_ context.Context, r audit.Report) (string, error) {
	data, err := render(r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	dest := filepath.Join(f.dir, r.Filename())
	if err := writeAtomic(dest, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return dest, nil
}

func (f *File) Open(_ context.Context, documentID string) (io.ReadCloser, error) {
	name, err := filename(documentID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(f.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return file, err
}

// Blob uploads reports to reports/<document_id>_audit.json.
type Blob struct {
	store storage.System
}

// NewBlob creates a sink over a storage system.
func NewBlob(store storage.System) *Blob {
	return &Blob{store: store}
}

func (b *Blob) Write(ctx context.Context, r audit.Report) (string, error) {
	data, err := render(r)
	if err != nil {
		return "", err
	}

	key := path.Join(BlobPrefix, r.Filename())
	if err := b.store.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return key, nil
}

func (b *Blob) Open(ctx context.Context, documentID string) (io.ReadCloser, error) {
	name, err := filename(documentID)
	if err != nil {
		return nil, err
	}
	rc, err := b.store.Download(ctx, path.Join(BlobPrefix, name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return rc, err
}

// Publisher fans a report out to every configured sink. A failing sink does
// not stop the others.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewPublisher creates a Publisher over sinks.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		sinks:  sinks,
		logger: logger.With("system", "reports"),
	}
}

// Publish renders rec and writes it to every sink. It returns the locations
// that succeeded and the joined sink errors.
func (p *Publisher) Publish(ctx context.Context, rec *audit.Record) ([]string, error) {
	report := audit.NewReport(rec)

	var (
		written []string
		errs    []error
	)
	for _, s := range p.sinks {
		loc, err := s.Write(ctx, report)
		if err != nil {
			p.logger.ErrorContext(ctx, "report write failed", "document_id", report.DocumentID, "error", err)
			errs = append(errs, err)
			continue
		}
		p.logger.InfoContext(ctx, "report written", "document_id", report.DocumentID, "location", loc)
		written = append(written, loc)
	}

	return written, errors.Join(errs...)
}

// Open returns the first stored copy of a report, trying sinks in order.
func (p *Publisher) Open(ctx context.Context, documentID string) (io.ReadCloser, error) {
	var errs []error
	for _, s := range p.sinks {
		rc, err := s.Open(ctx, documentID)
		if err == nil {
			return rc, nil
		}
		if errors.Is(err, ErrInvalidPath) {
			return nil, err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return nil, errors.Join(errs...)
}

// Failure records one input a batch could not audit.
type Failure struct {
	Input string `json:"input"`
	Error string `json:"error"`
}

// Summary is the JSON rollup of a batch run.
type Summary struct {
	TotalProcessed int            `json:"total_processed"`
	Timestamp      time.Time      `json:"timestamp"`
	Results        []audit.Report `json:"results"`
	Failures       []Failure      `json:"failures"`
}

// SummaryFilename is batch_summary_<YYYYMMDD_HHMMSS>.json.
func SummaryFilename(at time.Time) string {
	return "batch_summary_" + at.Format("20060102_150405") + ".json"
}

// WriteSummary writes s under dir and returns the file path.
func WriteSummary(dir string, s Summary) (string, error) {
	s.TotalProcessed = len(s.Results)
	if s.Results == nil {
		s.Results = []audit.Report{}
	}
	if s.Failures == nil {
		s.Failures = []Failure{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}

	dest := filepath.Join(dir, SummaryFilename(s.Timestamp))
	if err := writeAtomic(dest, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return dest, nil
}

func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".report-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
