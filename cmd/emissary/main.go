// Command emissary audits carbon disclosures from the command line and
// serves the audit tools over MCP stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: emissary <command> [flags]

commands:
  audit    audit one document (-input, -thread, -decision, -output)
  batch    audit every document in a directory (-input, -output)
  review   resume a suspended audit (-thread, -decision)
  pending  list audits waiting for human review
  watch    stream review notices (redis checkpoint backend)
  mcp      serve the audit tools over MCP stdio`

var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "emissary:", err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "audit":
		return auditCommand(ctx, args)
	case "batch":
		return batchCommand(ctx, args)
	case "review":
		return reviewCommand(ctx, args)
	case "pending":
		return pendingCommand(ctx, args)
	case "watch":
		return watchCommand(ctx, args)
	case "mcp":
		return mcpCommand(ctx, args)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, command)
}
