package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/JaimeStill/emissary/audit"
)

var errNoFeed = errors.New("review notices require the redis checkpoint backend")

func reviewCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	var (
		thread   = fs.String("thread", "", "Thread id suspended at human review")
		decision = fs.String("decision", "", "Review decision (approve|reject, default reject)")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *thread == "" {
		return fmt.Errorf("%w: -thread is required", errUsage)
	}

	d, err := audit.ParseDecision(*decision)
	if err != nil {
		return err
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.Engine.Resume(ctx, *thread, &d)
	if err != nil {
		return err
	}

	return a.finish(ctx, res)
}

func pendingCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	cps, err := a.pipeline.Engine.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, renderPending(cps))
	return nil
}

func watchCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	if a.infra.Feed == nil {
		return errNoFeed
	}

	a.infra.Logger.Info("watching for review notices")
	for p := range a.infra.Feed.SubscribePending(ctx) {
		fmt.Fprintln(os.Stdout, renderNotice(p))
	}
	return nil
}
