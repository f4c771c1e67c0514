package main

import (
	"context"
	"fmt"
	"time"

	"github.com/JaimeStill/emissary/internal/api"
	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/infrastructure"
	"github.com/JaimeStill/emissary/pkg/middleware"
)

type Server struct {
	infra *infrastructure.Infrastructure
	http  *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := infrastructure.NewPipeline(cfg, infra)
	if err != nil {
		return nil, err
	}

	rt := &api.Runtime{
		Auditor:        pipeline.Engine,
		Intake:         pipeline.Intake,
		Reports:        pipeline.Reports,
		Lifecycle:      infra.Lifecycle,
		Gatherer:       infra.Registry,
		CORS:           &cfg.API.CORS,
		MaxUploadBytes: cfg.API.MaxUploadSizeBytes(),
		Logger:         infra.Logger,
	}

	if cfg.API.Auth.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		verifier, err := middleware.NewVerifier(ctx, &cfg.API.Auth)
		if err != nil {
			return nil, fmt.Errorf("oidc init failed: %w", err)
		}
		rt.Verifier = verifier
	}

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"auth", cfg.API.Auth.Enabled(),
	)

	return &Server{
		infra: infra,
		http:  newHTTPServer(&cfg.Server, api.NewHandler(rt), infra.Logger),
	}, nil
}

func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
