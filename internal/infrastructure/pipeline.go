package infrastructure

import (
	"fmt"

	"github.com/JaimeStill/emissary/internal/compliance"
	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/extraction"
	"github.com/JaimeStill/emissary/internal/intake"
	"github.com/JaimeStill/emissary/internal/providers"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/review"
	"github.com/JaimeStill/emissary/internal/risk"
	"github.com/JaimeStill/emissary/internal/verification"
	"github.com/JaimeStill/emissary/internal/workflow"
)

// Pipeline is the assembled audit pipeline and its document collaborators.
type Pipeline struct {
	Engine    *workflow.Engine
	Intake    *intake.Reader
	Reports   *reports.Publisher
	Providers *providers.Resolver
}

// NewPipeline wires the stages, the review gate, and the workflow engine
// over the shared infrastructure.
func NewPipeline(cfg *config.Config, infra *Infrastructure) (*Pipeline, error) {
	logger := infra.Logger
	mode := cfg.Audit.ExecutionMode()

	var interactions *providers.InteractionLog
	if path := cfg.Providers.InteractionLog; path != "" {
		log, err := providers.OpenInteractionLog(path)
		if err != nil {
			return nil, fmt.Errorf("interaction log init failed: %w", err)
		}
		interactions = log
		lc := infra.Lifecycle
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			if err := log.Close(); err != nil {
				logger.Error("interaction log close failed", "error", err)
			}
		})
	}

	factory := providers.NewFactory(&cfg.Providers, infra.Metrics, interactions)
	resolver := providers.NewResolver(&cfg.Providers, factory, logger)

	factors, err := verification.LoadFactors(cfg.Audit.FactorsFile)
	if err != nil {
		return nil, fmt.Errorf("emission factors: %w", err)
	}

	fallbacks := infra.Metrics.Fallbacks

	extractor := extraction.New(
		extraction.NewGuard(),
		extraction.NewHeuristic(),
		resolver,
		mode,
		logger,
		extraction.OnFallback(func() { fallbacks.WithLabelValues("extraction").Inc() }),
	)

	verifier := verification.New(
		verification.NewLogistics(factors),
		cfg.Audit.MaxDeviationPercent,
		logger,
	)

	scorer := compliance.New(
		resolver,
		mode,
		compliance.Config{
			MinTrustScore:       cfg.Audit.MinTrustScore,
			MaxDeviationPercent: cfg.Audit.MaxDeviationPercent,
			RiskEscalation:      cfg.Audit.RiskEscalation,
		},
		logger,
		compliance.WithRisk(risk.NewAssessor()),
		compliance.OnFallback(func() { fallbacks.WithLabelValues("compliance").Inc() }),
	)

	var gateOpts []review.Option
	if infra.Notifier != nil {
		gateOpts = append(gateOpts, review.WithNotifier(infra.Notifier))
	}

	engine := workflow.New(workflow.Runtime{
		Extraction:   extractor,
		Verification: verifier,
		Compliance:   scorer,
		Review:       review.New(logger, gateOpts...),
		Store:        infra.Checkpoints,
		Metrics:      infra.Metrics,
		Logger:       logger,
	})

	sinks := []reports.Sink{reports.NewFile(cfg.Audit.ReportDir)}
	if infra.Storage != nil {
		sinks = append(sinks, reports.NewBlob(infra.Storage))
	}

	logger.Info(
		"audit pipeline assembled",
		"mode", mode,
		"preferred_backend", cfg.Providers.Preferred,
		"fallback", cfg.Providers.FallbackEnabled(),
		"report_sinks", len(sinks),
	)

	return &Pipeline{
		Engine:    engine,
		Intake:    intake.New(cfg.Audit.MaxPages, logger),
		Reports:   reports.NewPublisher(logger, sinks...),
		Providers: resolver,
	}, nil
}
