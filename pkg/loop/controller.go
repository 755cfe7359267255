// pkg/loop/controller.go
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/odvcencio/wiggum/pkg/archive"
	"github.com/odvcencio/wiggum/pkg/guardrail"
	"github.com/odvcencio/wiggum/pkg/report"
	"github.com/odvcencio/wiggum/pkg/state"
	"github.com/odvcencio/wiggum/pkg/validation"
)

// Worker is the external work step. It is opaque to the controller: it may
// fail, and a failure is recorded as a change with no test implications.
type Worker interface {
	Execute(ctx context.Context, req WorkRequest) (*WorkResult, error)
}

// Validator is the external validation step. The controller bounds it with
// a timeout and digests only its pass/fail outcome.
type Validator interface {
	Validate(ctx context.Context, req ValidateRequest) (validation.Result, error)
}

// WorkRequest carries the iteration inputs handed to the work step.
type WorkRequest struct {
	Goal        string
	CurrentTask string
	Constraints string
	Iteration   int
	// Guard filters outbound commands before the work step runs them. A
	// denied command must not run; the work step reports the rejection as
	// an ordinary failure.
	Guard func(command string) guardrail.Decision
}

// WorkResult describes what the work step did.
type WorkResult struct {
	Changes     []report.Change
	CommandsRun []string
	Notes       string
}

// ValidateRequest carries the iteration inputs handed to the validation
// step.
type ValidateRequest struct {
	Iteration int
}

// IterationOutcome summarizes one completed (or aborted) iteration.
type IterationOutcome struct {
	Iteration int
	RecordID  string
	Mode      Mode
	Result    validation.Result
	Report    *report.Report
	Blocked   bool
	Continue  bool
	// StopReason is set when Continue is false.
	StopReason string
}

// Controller orchestrates the iteration lifecycle over one state document.
// It is the single writer of the state; iterations run strictly
// sequentially.
type Controller struct {
	store      *state.Store
	statePath  string
	reportPath string
	worker     Worker
	validator  Validator

	cfg      *ControlConfig
	watcher  *ControlWatcher
	logger   *Logger
	archives *archive.Store
	progress io.Writer
	limiter  *rate.Limiter
	runID    string

	stage      Stage
	iteration  int
	lastReport *report.Report
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithConfig sets the static control configuration.
func WithConfig(cfg *ControlConfig) ControllerOption {
	return func(c *Controller) {
		c.cfg = cfg
	}
}

// WithControlWatcher attaches a hot-reloading control file watcher. The
// watcher's config takes precedence over the static one.
func WithControlWatcher(w *ControlWatcher) ControllerOption {
	return func(c *Controller) {
		c.watcher = w
	}
}

// WithLogger attaches a JSONL event logger.
func WithLogger(l *Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithArchive attaches a history archive store. Without one, overflow
// history entries are dropped.
func WithArchive(a *archive.Store) ControllerOption {
	return func(c *Controller) {
		c.archives = a
	}
}

// WithProgressWriter sets the writer for progress updates.
func WithProgressWriter(w io.Writer) ControllerOption {
	return func(c *Controller) {
		c.progress = w
	}
}

// WithRunID sets the run identifier recorded in logs and archives.
func WithRunID(id string) ControllerOption {
	return func(c *Controller) {
		c.runID = id
	}
}

// NewController creates a controller for one state document. The worker and
// validator are injected capabilities so tests substitute deterministic
// fakes for external processes.
func NewController(statePath, reportPath string, worker Worker, validator Validator, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:      state.NewStore(),
		statePath:  statePath,
		reportPath: reportPath,
		worker:     worker,
		validator:  validator,
		stage:      StageIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg == nil {
		c.cfg = &ControlConfig{}
	}
	c.cfg.Normalize()
	if interval := c.cfg.MinInterval.Std(); interval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return c
}

// Stage returns the controller's current lifecycle stage.
func (c *Controller) Stage() Stage {
	return c.stage
}

// Iteration returns the number of iterations started in this run.
func (c *Controller) Iteration() int {
	return c.iteration
}

// config returns the live control configuration: the watcher's if attached,
// else the static one.
func (c *Controller) config() *ControlConfig {
	if c.watcher != nil {
		if cfg := c.watcher.Config(); cfg != nil {
			return cfg
		}
	}
	return c.cfg
}

func (c *Controller) transition(to Stage) error {
	if !c.stage.CanTransitionTo(to) {
		return ErrInvalidStage{From: c.stage, To: to}
	}
	c.logger.LogStage(c.iteration, c.stage, to)
	c.stage = to
	return nil
}

func (c *Controller) stop(reason string) {
	if c.stage != StageStopped {
		c.logger.LogStage(c.iteration, c.stage, StageStopped)
		c.stage = StageStopped
	}
	c.logger.LogRunEnd(reason, c.iteration)
}

// Run executes iterations until the loop blocks, is cancelled or stopped
// externally, hits maxIterations (0 means unbounded), or fails. It returns
// the last outcome alongside any fatal error.
func (c *Controller) Run(ctx context.Context, maxIterations int) (*IterationOutcome, error) {
	var last *IterationOutcome
	c.logger.LogRunStart(c.runID, c.statePath)

	for {
		if maxIterations > 0 && c.iteration >= maxIterations {
			c.stop("max_iterations")
			return last, nil
		}
		if err := c.waitForTurn(ctx); err != nil {
			c.stop("cancelled")
			return last, nil
		}
		if cfg := c.config(); cfg.Override.Stop {
			c.stop(stopReason("external_stop", cfg.Override.Reason))
			return last, nil
		}

		outcome, err := c.RunIteration(ctx)
		if outcome != nil {
			last = outcome
		}
		if err != nil {
			return last, err
		}
		if outcome != nil && !outcome.Continue {
			return last, nil
		}
	}
}

// waitForTurn paces iteration starts and holds the loop while the control
// override pauses it.
func (c *Controller) waitForTurn(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	for c.config().Override.Paused {
		c.writeProgress("loop paused via control override\n")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return ctx.Err()
}

// RunIteration executes a single iteration: load state, invoke the work
// step, invoke the validation step, decide the mode, build the report, and
// persist, in that order, with exactly one atomic state save at the end.
// Cancellation is honored between stages only; a cancel during validation
// abandons the iteration without a state mutation.
func (c *Controller) RunIteration(ctx context.Context) (*IterationOutcome, error) {
	cfg := c.config()

	c.iteration++
	outcome := &IterationOutcome{
		Iteration: c.iteration,
		RecordID:  ulid.Make().String(),
	}
	started := time.Now()
	c.logger.LogIterationStart(c.iteration, outcome.RecordID)

	// LOADING
	if err := c.transition(StageLoading); err != nil {
		return nil, err
	}
	st, err := c.store.Load(c.statePath)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			c.logger.LogError(c.iteration, StageLoading, err)
			c.stop("io_error")
			return nil, err
		}
		// First-ever invocation: start from a default empty state.
		st = &state.LoopState{}
	}

	if err := ctx.Err(); err != nil {
		c.stop("cancelled")
		outcome.StopReason = "cancelled"
		return outcome, nil
	}

	// WORKING
	if err := c.transition(StageWorking); err != nil {
		return nil, err
	}
	workResult, workErr := c.runWork(ctx, cfg, st)

	if err := ctx.Err(); err != nil {
		c.stop("cancelled")
		outcome.StopReason = "cancelled"
		return outcome, nil
	}

	// VALIDATING
	if err := c.transition(StageValidating); err != nil {
		return nil, err
	}
	result, abandoned := c.runValidation(ctx, cfg)
	if abandoned {
		// Cancelled mid-validation: the iteration ends with no state
		// mutation.
		c.stop("cancelled")
		outcome.StopReason = "cancelled"
		return outcome, nil
	}
	outcome.Result = result
	c.logger.LogValidationResult(c.iteration, result)

	// DECIDING
	if err := c.transition(StageDeciding); err != nil {
		return nil, err
	}
	signature := validation.Compute(result)
	signatureUnchanged := signature != validation.SignatureNone &&
		string(signature) == st.LastFailureSignature
	switch {
	case result.Passed:
		st.ConsecutiveFailures = 0
		st.LastFailureSignature = ""
	case signatureUnchanged:
		st.ConsecutiveFailures++
	default:
		st.ConsecutiveFailures = 1
	}
	st.LastFailureSignature = ""
	if signature != validation.SignatureNone {
		st.LastFailureSignature = string(signature)
	}

	mode := DecideMode(DecisionInput{
		Result:              result,
		HasPendingTask:      strings.TrimSpace(st.CurrentTask) != "",
		ConsecutiveFailures: st.ConsecutiveFailures,
		SignatureUnchanged:  signatureUnchanged,
		BlockedThreshold:    cfg.BlockedThreshold,
	})
	outcome.Mode = mode
	outcome.Blocked = mode == ModeBlocked
	c.logger.LogModeDecided(c.iteration, mode, st.ConsecutiveFailures)
	if outcome.Blocked {
		c.logger.LogBlockedAlert(c.iteration, st.ConsecutiveFailures, string(signature))
		c.writeProgress("BLOCKED: identical failure repeated %d times; external intervention required\n",
			st.ConsecutiveFailures)
	}

	// REPORTING
	if err := c.transition(StageReporting); err != nil {
		return nil, err
	}
	rep, err := c.buildReport(st, mode, workResult, workErr, result)
	if err != nil {
		// A non-conformant report would silently break the history contract
		// for every future reader; escalate without persisting.
		c.logger.LogError(c.iteration, StageReporting, err)
		c.stop("report_error")
		return nil, fmt.Errorf("building iteration %d report: %w", c.iteration, err)
	}
	outcome.Report = rep
	c.lastReport = rep

	// PERSISTING
	if err := c.transition(StagePersisting); err != nil {
		return nil, err
	}
	if err := c.persist(ctx, cfg, st, mode, result, rep); err != nil {
		c.logger.LogError(c.iteration, StagePersisting, err)
		c.stop("io_error")
		return nil, err
	}

	c.logger.LogIterationEnd(c.iteration, mode, result.Passed, time.Since(started))
	c.writeProgress("iteration %d: mode=%s passed=%t\n", c.iteration, mode, result.Passed)

	if outcome.Blocked {
		outcome.StopReason = "blocked"
		c.stop("blocked")
		return outcome, nil
	}
	outcome.Continue = true
	return outcome, nil
}

// runWork invokes the work step. A nil worker or a work failure never fails
// the iteration; the failure is recorded as a change. The config snapshot is
// the one taken at iteration start so a hot reload cannot change the rules
// mid-iteration.
func (c *Controller) runWork(ctx context.Context, cfg *ControlConfig, st *state.LoopState) (*WorkResult, error) {
	if c.worker == nil {
		return nil, nil
	}

	filter, ferr := guardrail.NewFilter(cfg.Guardrails)
	if ferr != nil {
		// Misconfigured guardrails deny everything rather than letting
		// commands through unscreened.
		c.logger.LogError(c.iteration, StageWorking, ferr)
	}
	guard := func(command string) guardrail.Decision {
		if ferr != nil {
			return guardrail.Decision{Allowed: false, Reason: "guardrail configuration invalid"}
		}
		return filter.Evaluate(command)
	}

	result, err := c.worker.Execute(ctx, WorkRequest{
		Goal:        st.Goal,
		CurrentTask: st.CurrentTask,
		Constraints: st.Constraints,
		Iteration:   c.iteration,
		Guard:       guard,
	})
	if err != nil {
		c.logger.LogError(c.iteration, StageWorking, err)
	}
	return result, err
}

// runValidation invokes the validation step under the configured timeout.
// A timeout is modeled as a failing result with a synthetic timeout check;
// a validator error as a failing validator check. The second return is true
// when the surrounding run was cancelled and the iteration must be
// abandoned.
func (c *Controller) runValidation(ctx context.Context, cfg *ControlConfig) (validation.Result, bool) {
	if c.validator == nil {
		return validation.Result{Passed: true}, false
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.ValidationTimeout.Std())
	defer cancel()

	result, err := c.validator.Validate(vctx, ValidateRequest{Iteration: c.iteration})
	if ctx.Err() != nil {
		return validation.Result{}, true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(vctx.Err(), context.DeadlineExceeded) {
		return validation.Result{
			Passed: false,
			FailingChecks: []validation.FailingCheck{{
				Name:    "timeout",
				Message: fmt.Sprintf("validation exceeded %s", cfg.ValidationTimeout.Std()),
			}},
		}, false
	}
	if err != nil {
		return validation.Result{
			Passed: false,
			FailingChecks: []validation.FailingCheck{{
				Name:    "validator",
				Message: err.Error(),
			}},
		}, false
	}
	return result, false
}

// buildReport assembles the iteration report. Every section gets content:
// an idle iteration still reports its plan, the absence of changes, and the
// validation commands consumed.
func (c *Controller) buildReport(st *state.LoopState, mode Mode, work *WorkResult, workErr error, result validation.Result) (*report.Report, error) {
	plan := []string{fmt.Sprintf("iteration %d in %s mode", c.iteration, mode)}
	if strings.TrimSpace(st.CurrentTask) != "" {
		plan = append(plan, "task: "+firstLine(st.CurrentTask))
	}

	var changes []report.Change
	if work != nil {
		changes = append(changes, work.Changes...)
	}
	if workErr != nil {
		changes = append(changes, report.Change{
			Target:      "work step",
			Description: "failed: " + workErr.Error(),
		})
	}
	if len(changes) == 0 {
		changes = append(changes, report.Change{Description: "no changes made"})
	}

	var commands []string
	if work != nil {
		commands = append(commands, work.CommandsRun...)
	}
	if len(commands) == 0 {
		commands = append(commands, "none")
	}

	notes := result.Summary()
	if work != nil && strings.TrimSpace(work.Notes) != "" {
		notes += "\n" + strings.TrimSpace(work.Notes)
	}

	next := nextPlan(mode, st)

	return report.Build(plan, changes, commands, report.Outcome{
		Passed: result.Passed,
		Notes:  notes,
	}, next)
}

func nextPlan(mode Mode, st *state.LoopState) string {
	switch mode {
	case ModeBlocked:
		return fmt.Sprintf("blocked after %d identical failures; requires external intervention", st.ConsecutiveFailures)
	case ModeCreative:
		return "continue creative work on: " + firstLine(st.CurrentTask)
	default:
		if st.ConsecutiveFailures > 0 {
			return "fix failing checks"
		}
		return "continue stabilizing"
	}
}

// persist commits the iteration: the standalone report artifact first, then
// exactly one atomic state save carrying the new history entry, updated
// counters and status. History beyond the cap moves to the archive.
func (c *Controller) persist(ctx context.Context, cfg *ControlConfig, st *state.LoopState, mode Mode, result validation.Result, rep *report.Report) error {
	rendered := rep.Render()
	if err := state.WriteFileAtomic(c.reportPath, []byte(rendered)); err != nil {
		return fmt.Errorf("writing report artifact: %w", err)
	}

	entry := fmt.Sprintf("- Iteration %d: %s mode, %s", c.iteration, mode, result.Summary())
	st.AppendHistory(entry)

	overflow := st.TrimHistory(cfg.HistoryCap)
	if len(overflow) > 0 && c.archives != nil {
		if err := c.archives.SaveEntries(ctx, c.runID, c.iteration, overflow); err != nil {
			// Archive loss is not worth failing the iteration over; the
			// trimmed entries are gone either way.
			c.logger.LogError(c.iteration, StagePersisting, err)
		}
	}

	st.Status = statusLine(mode, result, st.ConsecutiveFailures)

	if err := c.store.Save(c.statePath, st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	if c.archives != nil {
		err := c.archives.SaveReport(ctx, archive.ReportRecord{
			RunID:     c.runID,
			Iteration: c.iteration,
			ReportID:  ulid.Make().String(),
			Mode:      mode.String(),
			Passed:    result.Passed,
			Content:   rendered,
		})
		if err != nil {
			c.logger.LogError(c.iteration, StagePersisting, err)
		}
	}
	return nil
}

func statusLine(mode Mode, result validation.Result, consecutiveFailures int) string {
	switch {
	case mode == ModeBlocked:
		return fmt.Sprintf("BLOCKED: identical failure repeated %d times; awaiting external intervention", consecutiveFailures)
	case result.Passed:
		return "validation passing"
	default:
		return fmt.Sprintf("validation failing (%d consecutive)", consecutiveFailures)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func (c *Controller) writeProgress(format string, args ...any) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, format, args...)
	}
}

func stopReason(base, detail string) string {
	if strings.TrimSpace(detail) == "" {
		return base
	}
	return base + ": " + detail
}
