package api

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/intake"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/workflow"
	"github.com/JaimeStill/emissary/pkg/lifecycle"
	"github.com/JaimeStill/emissary/pkg/middleware"
)

// Auditor is the workflow surface the API drives. *workflow.Engine satisfies it.
type Auditor interface {
	Run(ctx context.Context, req workflow.RunRequest) (*workflow.Result, error)
	Resume(ctx context.Context, threadID string, decision *audit.Decision) (*workflow.Result, error)
	Status(ctx context.Context, threadID string) (*workflow.Result, error)
	Pending(ctx context.Context) ([]checkpoint.Checkpoint, error)
}

// Runtime holds the collaborators behind the HTTP surface.
type Runtime struct {
	Auditor   Auditor
	Intake    *intake.Reader
	Reports   *reports.Publisher
	Lifecycle *lifecycle.Coordinator
	Gatherer  prometheus.Gatherer

	// Verifier enables bearer authentication on /api when set.
	Verifier middleware.TokenVerifier
	CORS     *middleware.CORSConfig

	MaxUploadBytes int64
	Logger         *slog.Logger
}
