package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/workflow"
)

var batchExtensions = []string{".pdf", ".txt"}

func batchCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var (
		input  = fs.String("input", "", "Directory of PDF or text documents")
		output = fs.String("output", "", "Report directory (overrides audit.report_dir)")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *input == "" {
		return fmt.Errorf("%w: -input is required", errUsage)
	}

	files, err := batchInputs(*input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .pdf or .txt documents in %s", *input)
	}

	a, err := newApp(withOutput(*output))
	if err != nil {
		return err
	}
	defer a.close()

	summary := a.runBatch(ctx, files)

	path, err := reports.WriteSummary(a.cfg.Audit.ReportDir, summary)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, renderBatch(summary, path))
	return nil
}

// batchInputs lists the auditable documents directly under dir, sorted.
func batchInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read batch dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if slices.Contains(batchExtensions, ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// runBatch audits files concurrently, bounded by audit.batch_workers.
// Per-file failures are collected rather than cancelling the batch.
func (a *app) runBatch(ctx context.Context, files []string) reports.Summary {
	var (
		mu       sync.Mutex
		results  = make([]*audit.Report, len(files))
		failures []reports.Failure
	)

	fail := func(path string, err error) {
		a.infra.Logger.Error("batch audit failed", "input", path, "error", err)
		mu.Lock()
		failures = append(failures, reports.Failure{Input: path, Error: err.Error()})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Audit.BatchWorkers)

	for i, path := range files {
		g.Go(func() error {
			doc, err := a.pipeline.Intake.ReadFile(gctx, path)
			if err != nil {
				fail(path, err)
				return nil
			}

			res, err := a.pipeline.Engine.Run(gctx, workflow.RunRequest{
				DocumentID: doc.ID,
				Text:       doc.Text,
			})
			if err != nil {
				fail(path, err)
				return nil
			}

			if !res.Suspended {
				if _, err := a.pipeline.Reports.Publish(gctx, res.Record); err != nil {
					a.infra.Logger.Error("report publish incomplete", "input", path, "error", err)
				}
			}

			report := audit.NewReport(res.Record)
			results[i] = &report
			return nil
		})
	}
	g.Wait()

	summary := reports.Summary{Timestamp: time.Now(), Failures: failures}
	for _, r := range results {
		if r != nil {
			summary.Results = append(summary.Results, *r)
		}
	}
	return summary
}
