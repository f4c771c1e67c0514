package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/JaimeStill/emissary/internal/tools"
)

func mcpCommand(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	srv := tools.New(
		"emissary",
		a.cfg.Version,
		a.pipeline.Engine,
		a.pipeline.Intake,
		a.pipeline.Reports,
		a.infra.Logger,
	)

	return srv.ServeStdio()
}
