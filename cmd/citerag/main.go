package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"citerag/internal/log"
	"citerag/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, log.New())
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if len(args) == 0 {
		usage(stdout)
		return 1
	}
	a := &app{out: stdout, log: logger}
	var err error
	switch args[0] {
	case "ingest":
		err = a.ingestCmd(ctx, args[1:])
	case "index":
		err = a.indexCmd(ctx, args[1:])
	case "query":
		err = a.queryCmd(ctx, args[1:])
	case "answer":
		err = a.answerCmd(ctx, args[1:])
	case "eval":
		err = a.evalCmd(ctx, args[1:])
	case "diff":
		err = a.diffCmd(args[1:])
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		usage(stdout)
	default:
		usage(stdout)
		return 1
	}
	return a.exitCode(err)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "citerag - citation-backed retrieval over local documents")
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  citerag ingest [--config path]")
	fmt.Fprintln(w, "  citerag index  [--reset] [--config path]")
	fmt.Fprintln(w, "  citerag query  --question \"...\" [--top_k 5] [--json] [--config path]")
	fmt.Fprintln(w, "  citerag answer --question \"...\" [--top_k 5] [--max_quotes 2] [--json] [--config path]")
	fmt.Fprintln(w, "  citerag eval   [--top_k 5] [--max_quotes 2] [--out report.json] [--json] [--config path]")
	fmt.Fprintln(w, "  citerag diff   --before a.json --after b.json [--json]")
	fmt.Fprintln(w, "  citerag version")
}
