package main

import (
	"fmt"

	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/infrastructure"
)

// app is one CLI invocation's assembled pipeline.
type app struct {
	cfg      *config.Config
	infra    *infrastructure.Infrastructure
	pipeline *infrastructure.Pipeline
}

// newApp loads configuration, lets configure adjust it, and starts the
// infrastructure. Callers must close the app.
func newApp(configure func(*config.Config)) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if configure != nil {
		configure(cfg)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := infrastructure.NewPipeline(cfg, infra)
	if err != nil {
		return nil, err
	}

	if err := infra.Start(); err != nil {
		return nil, err
	}
	infra.Lifecycle.WaitForStartup()

	return &app{cfg: cfg, infra: infra, pipeline: pipeline}, nil
}

func (a *app) close() {
	if err := a.infra.Lifecycle.Shutdown(a.cfg.ShutdownTimeoutDuration()); err != nil {
		a.infra.Logger.Error("shutdown failed", "error", err)
	}
}
