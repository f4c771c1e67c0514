package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/workflow"
)

func auditCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	var (
		input    = fs.String("input", "", "PDF or text document to audit")
		thread   = fs.String("thread", "", "Thread id to start or continue")
		decision = fs.String("decision", "", "Review decision applied if the audit suspends (approve|reject)")
		output   = fs.String("output", "", "Report directory (overrides audit.report_dir)")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *input == "" {
		return fmt.Errorf("%w: -input is required", errUsage)
	}

	var dec *audit.Decision
	if *decision != "" {
		d, err := audit.ParseDecision(*decision)
		if err != nil {
			return err
		}
		dec = &d
	}

	a, err := newApp(withOutput(*output))
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.pipeline.Intake.ReadFile(ctx, *input)
	if err != nil {
		return err
	}

	res, err := a.pipeline.Engine.Run(ctx, workflow.RunRequest{
		ThreadID:   *thread,
		DocumentID: doc.ID,
		Text:       doc.Text,
		Decision:   dec,
	})
	if err != nil {
		return err
	}

	return a.finish(ctx, res)
}

// finish publishes completed results and prints the summary.
func (a *app) finish(ctx context.Context, res *workflow.Result) error {
	var locations []string
	if !res.Suspended && !res.Replayed {
		written, err := a.pipeline.Reports.Publish(ctx, res.Record)
		if err != nil {
			a.infra.Logger.Error("report publish incomplete", "error", err)
		}
		locations = written
	}

	fmt.Fprintln(os.Stdout, renderSummary(res, locations))
	return nil
}

func withOutput(dir string) func(*config.Config) {
	return func(cfg *config.Config) {
		if dir != "" {
			cfg.Audit.ReportDir = dir
		}
	}
}
