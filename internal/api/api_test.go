package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/api"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/compliance"
	"github.com/JaimeStill/emissary/internal/extraction"
	"github.com/JaimeStill/emissary/internal/intake"
	"github.com/JaimeStill/emissary/internal/metrics"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/review"
	"github.com/JaimeStill/emissary/internal/verification"
	"github.com/JaimeStill/emissary/internal/workflow"
	"github.com/JaimeStill/emissary/pkg/lifecycle"
)

const invoice = `GLOBAL LOGISTICS CO.
Supplier ID: SUP-MH-2024-089
Origin: Mumbai Port
Destination: Delhi Warehouse
Transport Mode: Road Freight - Heavy Truck
Weight: 2,500 kg
Distance: 1,450 kilometers
Total CO2e Emissions: %s kg CO2e
`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type server struct {
	handler    http.Handler
	reportsDir string
}

// newServer wires the real quantitative pipeline over an in-memory store.
func newServer(t *testing.T) server {
	t.Helper()

	logger := discard()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dir := t.TempDir()

	engine := workflow.New(workflow.Runtime{
		Extraction: extraction.New(
			extraction.NewGuard(), extraction.NewHeuristic(), nil,
			audit.ModeQuantitative, logger,
		),
		Verification: verification.New(verification.NewLogistics(verification.DefaultFactors()), 15, logger),
		Compliance: compliance.New(nil, audit.ModeQuantitative, compliance.Config{
			MinTrustScore:       60,
			MaxDeviationPercent: 15,
		}, logger),
		Review:  review.New(logger),
		Store:   checkpoint.NewMemory(),
		Metrics: m,
		Logger:  logger,
	})

	lc := lifecycle.New()
	lc.WaitForStartup()

	return server{
		handler: api.NewHandler(&api.Runtime{
			Auditor:   engine,
			Intake:    intake.New(0, logger),
			Reports:   reports.NewPublisher(logger, reports.NewFile(dir)),
			Lifecycle: lc,
			Gatherer:  reg,
			Logger:    logger,
		}),
		reportsDir: dir,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, api.AuditResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var res api.AuditResponse
	if rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, res
}

func TestCreateCompletes(t *testing.T) {
	s := newServer(t)

	rec, res := do(t, s.handler, "POST", "/api/audits", api.AuditRequest{
		DocumentID: "INV-2024-00145",
		Text:       fmt.Sprintf(invoice, "348.0"),
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if res.Suspended || res.ThreadID == "" {
		t.Errorf("response = %+v", res)
	}
	if res.Report.WorkflowStatus != audit.StatusComplianceComplete {
		t.Errorf("workflow_status = %s", res.Report.WorkflowStatus)
	}
	if len(res.Reports) != 1 || res.Reports[0] != filepath.Join(s.reportsDir, "INV-2024-00145_audit.json") {
		t.Errorf("reports = %v", res.Reports)
	}

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/reports/INV-2024-00145", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("report fetch status = %d", rec.Code)
	}

	rec, again := do(t, s.handler, "POST", "/api/audits", api.AuditRequest{ThreadID: res.ThreadID})
	if rec.Code != http.StatusOK || !again.Replayed {
		t.Errorf("rerun of terminal thread: status %d, replayed %v", rec.Code, again.Replayed)
	}
}

func TestSuspendThenReview(t *testing.T) {
	s := newServer(t)

	rec, res := do(t, s.handler, "POST", "/api/audits", api.AuditRequest{
		ThreadID: "thread-low-claim",
		Text:     fmt.Sprintf(invoice, "100.0"),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !res.Suspended || res.NextNode != workflow.NodeHumanReview {
		t.Fatalf("response = %+v", res)
	}
	if len(res.Reports) != 0 {
		t.Errorf("suspended thread should not publish, got %v", res.Reports)
	}

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/reviews", nil))
	var pending []review.Pending
	if err := json.Unmarshal(rec.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ThreadID != "thread-low-claim" || pending[0].Reason == "" {
		t.Errorf("pending = %+v", pending)
	}

	rec, res = do(t, s.handler, "POST", "/api/audits/thread-low-claim/review", api.ReviewRequest{Decision: "APPROVE"})
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d, body %s", rec.Code, rec.Body.String())
	}
	if res.Report.WorkflowStatus != audit.ReviewStatus(audit.DecisionApprove) {
		t.Errorf("workflow_status = %s", res.Report.WorkflowStatus)
	}
	if !res.Report.HumanReview.Completed || res.Report.HumanReview.Decision == nil {
		t.Errorf("human_review = %+v", res.Report.HumanReview)
	}

	rec, again := do(t, s.handler, "POST", "/api/audits/thread-low-claim/review", api.ReviewRequest{Decision: "reject"})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat review status = %d", rec.Code)
	}
	if *again.Report.HumanReview.Decision != audit.DecisionApprove {
		t.Errorf("repeat review changed decision to %s", *again.Report.HumanReview.Decision)
	}

	rec, status := do(t, s.handler, "GET", "/api/audits/thread-low-claim", nil)
	if rec.Code != http.StatusOK || status.Suspended {
		t.Errorf("status: code %d suspended %v", rec.Code, status.Suspended)
	}
}

func TestUpload(t *testing.T) {
	s := newServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "INV-77.txt")
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(part, invoice, "348.0")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/audits/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res api.AuditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Report.DocumentID != "INV-77" {
		t.Errorf("document_id = %s, want file stem", res.Report.DocumentID)
	}
}

func TestRequestErrors(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", "POST", "/api/audits", `{"text":`, http.StatusBadRequest},
		{"bad decision", "POST", "/api/audits", `{"text":"x","decision":"maybe"}`, http.StatusBadRequest},
		{"bad thread id", "POST", "/api/audits", `{"thread_id":"../../etc","text":"x"}`, http.StatusBadRequest},
		{"unknown thread", "GET", "/api/audits/nope", "", http.StatusNotFound},
		{"review unknown thread", "POST", "/api/audits/nope/review", `{}`, http.StatusNotFound},
		{"missing file", "POST", "/api/audits/upload", "", http.StatusBadRequest},
		{"unknown report", "GET", "/api/reports/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestProbes(t *testing.T) {
	s := newServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d", rec.Code)
			}
		})
	}
}

func TestReadyzReportsFailedProbe(t *testing.T) {
	lc := lifecycle.New()
	lc.AddProbe("database", func(context.Context) error { return errors.New("connection refused") })
	lc.WaitForStartup()

	h := api.NewHandler(&api.Runtime{Lifecycle: lc, Logger: discard()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{checkpoint.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", checkpoint.ErrInvalidThreadID), http.StatusBadRequest},
		{audit.ErrInvalidDecision, http.StatusBadRequest},
		{workflow.ErrNotSuspended, http.StatusConflict},
		{workflow.ErrThreadTerminal, http.StatusConflict},
		{intake.ErrUnsupported, http.StatusUnsupportedMediaType},
		{intake.ErrUnreadable, http.StatusUnprocessableEntity},
		{workflow.ErrCheckpoint, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := api.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
