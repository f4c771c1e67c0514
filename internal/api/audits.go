package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/review"
	"github.com/JaimeStill/emissary/internal/workflow"
	"github.com/JaimeStill/emissary/pkg/handlers"
	"github.com/JaimeStill/emissary/pkg/routes"
)

// DefaultMaxUploadBytes bounds multipart uploads when the runtime sets no limit.
const DefaultMaxUploadBytes = 32 << 20

// AuditRequest starts or continues a thread from raw text.
type AuditRequest struct {
	ThreadID   string `json:"thread_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Text       string `json:"text"`
	Decision   string `json:"decision,omitempty"`
}

// ReviewRequest carries a reviewer decision. An empty decision rejects.
type ReviewRequest struct {
	Decision string `json:"decision"`
}

// AuditResponse is the thread state returned by every audit endpoint.
type AuditResponse struct {
	ThreadID  string       `json:"thread_id"`
	Suspended bool         `json:"suspended"`
	NextNode  string       `json:"next_node,omitempty"`
	Replayed  bool         `json:"replayed,omitempty"`
	Report    audit.Report `json:"report"`
	Reports   []string     `json:"reports,omitempty"`
}

type auditHandler struct {
	rt        *Runtime
	maxUpload int64
	logger    *slog.Logger
}

func newAuditHandler(rt *Runtime) *auditHandler {
	maxUpload := rt.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &auditHandler{
		rt:        rt,
		maxUpload: maxUpload,
		logger:    rt.Logger.With("handler", "audits"),
	}
}

func (h *auditHandler) routes() []routes.Group {
	return []routes.Group{
		{
			Prefix: "/audits",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/", Handler: h.create},
				{Method: "POST", Pattern: "/upload", Handler: h.upload},
				{Method: "GET", Pattern: "/{thread_id}", Handler: h.status},
				{Method: "POST", Pattern: "/{thread_id}/review", Handler: h.review},
			},
		},
		{
			Prefix: "/reviews",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/", Handler: h.pending},
			},
		},
		{
			Prefix: "/reports",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/{document_id}", Handler: h.report},
			},
		},
	}
}

func (h *auditHandler) create(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[AuditRequest](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	decision, err := parseOptionalDecision(req.Decision)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.run(w, r, workflow.RunRequest{
		ThreadID:   req.ThreadID,
		DocumentID: req.DocumentID,
		Text:       req.Text,
		Decision:   decision,
	})
}

func (h *auditHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", handlers.ErrInvalidBody, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrMissingFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("%w: %w", handlers.ErrInvalidBody, err))
		return
	}

	doc, err := h.rt.Intake.Read(r.Context(), header.Filename, data)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	decision, err := parseOptionalDecision(r.FormValue("decision"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.run(w, r, workflow.RunRequest{
		ThreadID:   r.FormValue("thread_id"),
		DocumentID: doc.ID,
		Text:       doc.Text,
		Decision:   decision,
	})
}

func (h *auditHandler) run(w http.ResponseWriter, r *http.Request, req workflow.RunRequest) {
	res, err := h.rt.Auditor.Run(r.Context(), req)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	status := http.StatusCreated
	switch {
	case res.Suspended:
		status = http.StatusAccepted
	case res.Replayed:
		status = http.StatusOK
	}
	handlers.RespondJSON(w, status, h.respond(r.Context(), res))
}

func (h *auditHandler) status(w http.ResponseWriter, r *http.Request) {
	res, err := h.rt.Auditor.Status(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, AuditResponse{
		ThreadID:  res.ThreadID,
		Suspended: res.Suspended,
		NextNode:  res.NextNode,
		Report:    audit.NewReport(res.Record),
	})
}

func (h *auditHandler) review(w http.ResponseWriter, r *http.Request) {
	req, err := handlers.DecodeJSON[ReviewRequest](r)
	if err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	decision, err := audit.ParseDecision(req.Decision)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	res, err := h.rt.Auditor.Resume(r.Context(), chi.URLParam(r, "thread_id"), &decision)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, h.respond(r.Context(), res))
}

func (h *auditHandler) pending(w http.ResponseWriter, r *http.Request) {
	waiting, err := h.rt.Auditor.Pending(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	out := make([]review.Pending, 0, len(waiting))
	for _, cp := range waiting {
		p := review.Pending{
			ThreadID:   cp.ThreadID,
			DocumentID: cp.Record.DocumentID,
			FlaggedAt:  cp.UpdatedAt,
		}
		if cp.Record.HumanReviewReason != nil {
			p.Reason = *cp.Record.HumanReviewReason
		}
		out = append(out, p)
	}
	handlers.RespondJSON(w, http.StatusOK, out)
}

func (h *auditHandler) report(w http.ResponseWriter, r *http.Request) {
	if h.rt.Reports == nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, errors.New("report persistence disabled"))
		return
	}

	rc, err := h.rt.Reports.Open(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// respond publishes terminal records and renders the response body.
// Replayed threads were published when they first finished.
func (h *auditHandler) respond(ctx context.Context, res *workflow.Result) AuditResponse {
	out := AuditResponse{
		ThreadID:  res.ThreadID,
		Suspended: res.Suspended,
		NextNode:  res.NextNode,
		Replayed:  res.Replayed,
		Report:    audit.NewReport(res.Record),
	}

	if h.rt.Reports != nil && !res.Suspended && !res.Replayed {
		written, err := h.rt.Reports.Publish(ctx, res.Record)
		if err != nil {
			h.logger.WarnContext(ctx, "report publish incomplete", "thread_id", res.ThreadID, "error", err)
		}
		out.Reports = written
	}
	return out
}

func parseOptionalDecision(s string) (*audit.Decision, error) {
	if s == "" {
		return nil, nil
	}
	d, err := audit.ParseDecision(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
