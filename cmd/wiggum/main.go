// cmd/wiggum/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/wiggum/pkg/archive"
	"github.com/odvcencio/wiggum/pkg/loop"
	"github.com/odvcencio/wiggum/pkg/validation"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitBlocked = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wiggum", flag.ContinueOnError)
	var (
		statePath  = fs.String("state", "loop/state.md", "path to the loop state document")
		reportPath = fs.String("report", "loop/last_output.md", "path to the latest iteration report")
		controlPath = fs.String("control", "", "path to loop-control.yaml (optional)")
		logPath    = fs.String("log", "", "path to the JSONL event log (optional)")
		archivePath = fs.String("archive", "", "path to the sqlite history archive (optional)")
		runnerLog  = fs.String("runner-log", "", "path to the validation runner transcript")
		maxIter    = fs.Int("max-iterations", 50, "maximum iterations per run (0 = unbounded)")
		once       = fs.Bool("once", false, "run a single iteration and exit")
	)
	if err := fs.Parse(args); err != nil {
		return exitFatal
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := []loop.ControllerOption{
		loop.WithRunID(uuid.NewString()),
		loop.WithProgressWriter(os.Stdout),
	}

	if *controlPath != "" {
		watcher := loop.NewControlWatcher(*controlPath, time.Second)
		if err := watcher.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "wiggum: loading control file: %v\n", err)
			return exitFatal
		}
		defer watcher.Stop()
		opts = append(opts, loop.WithControlWatcher(watcher))
	}

	if *logPath != "" {
		logger, err := loop.NewLogger(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wiggum: opening log: %v\n", err)
			return exitFatal
		}
		defer logger.Close()
		opts = append(opts, loop.WithLogger(logger))
	}

	if *archivePath != "" {
		store, err := archive.Open(*archivePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "wiggum: opening archive: %v\n", err)
			return exitFatal
		}
		defer store.Close()
		opts = append(opts, loop.WithArchive(store))
	}

	controller := loop.NewController(
		*statePath,
		*reportPath,
		noopWorker{},
		runnerLogValidator{path: *runnerLog},
		opts...,
	)

	fmt.Println("wiggum autonomous loop")
	fmt.Printf("state: %s\n", *statePath)

	max := *maxIter
	if *once {
		max = 1
	}
	outcome, err := controller.Run(ctx, max)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wiggum: %v\n", err)
		return exitFatal
	}
	if outcome == nil {
		fmt.Println("no iterations executed")
		return exitOK
	}

	fmt.Printf("last iteration: %d mode=%s passed=%t\n",
		outcome.Iteration, outcome.Mode, outcome.Result.Passed)
	fmt.Printf("report saved to %s\n", *reportPath)
	if outcome.Blocked {
		fmt.Println("loop is BLOCKED; external intervention required")
		return exitBlocked
	}
	return exitOK
}

// noopWorker performs no work. The real work step is an external
// collaborator; this runner only drives validation and state bookkeeping.
type noopWorker struct{}

func (noopWorker) Execute(_ context.Context, req loop.WorkRequest) (*loop.WorkResult, error) {
	return &loop.WorkResult{
		Notes: fmt.Sprintf("no-op work step for iteration %d", req.Iteration),
	}, nil
}

// runnerLogValidator digests a runner transcript written by the external
// test/lint runner. A missing transcript counts as a pass with no checks.
type runnerLogValidator struct {
	path string
}

func (v runnerLogValidator) Validate(_ context.Context, _ loop.ValidateRequest) (validation.Result, error) {
	if v.path == "" {
		return validation.Result{Passed: true}, nil
	}
	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return validation.Result{Passed: true}, nil
		}
		return validation.Result{}, fmt.Errorf("reading runner log: %w", err)
	}
	return validation.ParseRunnerLog(string(data)), nil
}
