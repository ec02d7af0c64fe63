// Package loop drives the bounded, repeated invocation of an external
// agent against the event bus: each tick selects the work with pending
// events, builds a prompt from accumulated context, executes the agent,
// parses its output back into events, and decides whether to stop.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/hatloop/internal/config"
	"github.com/a-marczewski/hatloop/internal/event"
	"github.com/a-marczewski/hatloop/internal/executor"
	"github.com/a-marczewski/hatloop/internal/hat"
	"github.com/a-marczewski/hatloop/internal/ledger"
	"github.com/a-marczewski/hatloop/internal/parser"
	"github.com/a-marczewski/hatloop/internal/scratch"
	"github.com/a-marczewski/hatloop/internal/tasks"
)

const (
	// completionConfirmations is the debounce: the promise must verify
	// on this many consecutive iterations before the loop completes.
	completionConfirmations = 2

	// maxRecoveryAttempts bounds consecutive synthetic task.resume
	// injections when no hat has pending events.
	maxRecoveryAttempts = 3

	// maxAbandonedRedispatches is the thrashing threshold: consecutive
	// build.task events for already-abandoned task ids.
	maxAbandonedRedispatches = 3

	// maxMalformedEvents is the validation-failure threshold for
	// consecutive malformed structured-event lines.
	maxMalformedEvents = 3

	// blocksUntilAbandoned is how many build.blocked events against one
	// task id it takes to abandon the task.
	blocksUntilAbandoned = 3
)

// Runner executes one agent invocation. Production wiring adapts the
// process executor; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, prompt, hatID string, interrupt <-chan struct{}) (*executor.Result, error)
}

// Options carries the engine's optional collaborators.
type Options struct {
	Interactive bool
	Verifier    tasks.Verifier
	Notes       *scratch.Notes
	Ledger      *ledger.Ledger
	SideFile    *ledger.SideFile
	Clock       func() time.Time
}

// Engine owns the loop state machine. It is strictly sequential: one
// hat execution completes before the next begins.
type Engine struct {
	cfg      *config.Config
	registry *hat.Registry
	bus      *event.Bus
	runner   Runner
	opts     Options
	logger   *zap.Logger
	state    *LoopState
	now      func() time.Time
}

// NewEngine constructs an engine. The registry must already contain the
// fallback hat; the bus must have every hat registered.
func NewEngine(cfg *config.Config, registry *hat.Registry, bus *event.Bus, runner Runner, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		runner:   runner,
		opts:     opts,
		logger:   logger,
		state:    newLoopState(now()),
		now:      now,
	}
}

// Iteration returns the current iteration counter; used by the ledger
// observer.
func (e *Engine) Iteration() int { return e.state.Iteration }

// Start publishes the initial task event.
func (e *Engine) Start(taskPrompt string) {
	ev := event.New(e.cfg.StartTopic, taskPrompt)
	e.publish(ev)
}

// Run ticks until a termination reason is reached. Fatal executor
// errors (pty allocation, spawn) are returned alongside a Stopped
// reason since no further progress is possible.
func (e *Engine) Run(ctx context.Context, interrupt <-chan struct{}) (TerminationReason, error) {
	for {
		reason, done, err := e.tick(ctx, interrupt)
		if err != nil {
			e.finish(TerminationStopped)
			return TerminationStopped, err
		}
		if done {
			e.finish(reason)
			return reason, nil
		}
	}
}

// tick is the re-entrant loop body. It returns done=true with the
// terminal reason, or done=false to continue.
func (e *Engine) tick(ctx context.Context, interrupt <-chan struct{}) (TerminationReason, bool, error) {
	// Externally written events discovered between ticks are treated
	// identically to parsed-from-output events; they are ingested first
	// so their malformed-line count feeds the predicates below.
	e.pollSideFile()

	// 1. Termination predicates in fixed order; first hit wins.
	if reason, hit := e.checkLimits(); hit {
		return reason, true, nil
	}

	// 2. Fallback recovery when nothing is pending.
	if !e.bus.HasPending() {
		e.state.RecoveryAttempts++
		if e.state.RecoveryAttempts > maxRecoveryAttempts {
			e.logger.Warn("no pending events after repeated recovery, stopping",
				zap.Int("attempts", e.state.RecoveryAttempts-1))
			return TerminationStopped, true, nil
		}
		e.injectResume()
	} else {
		e.state.RecoveryAttempts = 0
	}

	e.state.Iteration++
	iteration := e.state.Iteration

	// 3. Consume pending events. Custom hats define topology only; the
	// fallback hat executes with the union of all pending events.
	deliveries := e.takeDeliveries()
	e.recordConsumed(deliveries)
	e.noteLastHat(deliveries)

	preamble := ""
	if e.opts.Notes != nil {
		p, err := e.opts.Notes.Preamble()
		if err != nil {
			e.logger.Warn("knowledge preamble unavailable", zap.Error(err))
		} else {
			preamble = p
		}
	}
	prompt := e.buildPrompt(preamble, deliveries)

	e.logger.Info("iteration started",
		zap.Int("iteration", iteration),
		zap.Int("events", len(deliveries)))
	started := e.now()

	// 4. Execute via the fallback hat.
	res, err := e.runner.Run(ctx, prompt, e.registry.Fallback().ID, interrupt)
	if err != nil {
		return 0, false, fmt.Errorf("execution failed on iteration %d: %w", iteration, err)
	}

	e.state.CostUSD += res.CostUSD
	e.logger.Info("iteration finished",
		zap.Int("iteration", iteration),
		zap.Duration("duration", e.now().Sub(started)),
		zap.Bool("success", res.Success),
		zap.String("termination", res.Termination.String()))

	if reason, stop := ConvertTermination(res.Termination, e.opts.Interactive); stop {
		return reason, true, nil
	}

	output := res.StructuredText
	if output == "" {
		output = res.Output
	}

	if res.Success {
		e.state.ConsecutiveFailures = 0
	} else {
		e.state.ConsecutiveFailures++
		e.logger.Warn("execution reported failure",
			zap.Int("consecutive_failures", e.state.ConsecutiveFailures),
			zap.Int("exit_code", res.ExitCode))
	}

	// 5. Completion check, debounced: the promise string is necessary
	// but not sufficient; outstanding work must also verify as done,
	// twice in a row.
	if done := e.checkCompletion(output); done {
		return TerminationCompletionPromise, true, nil
	}

	// 6. Parse, gate, and republish derived events.
	e.processOutput(output)

	return 0, false, nil
}

// checkLimits evaluates the termination predicates in fixed order.
func (e *Engine) checkLimits() (TerminationReason, bool) {
	if e.state.Iteration >= e.cfg.MaxIterations {
		return TerminationMaxIterations, true
	}
	if elapsed := e.now().Sub(e.state.StartedAt); elapsed >= time.Duration(e.cfg.MaxRuntimeSeconds)*time.Second {
		return TerminationMaxRuntime, true
	}
	if e.cfg.MaxCostUSD > 0 && e.state.CostUSD >= e.cfg.MaxCostUSD {
		return TerminationMaxCost, true
	}
	if e.state.ConsecutiveFailures >= e.cfg.MaxConsecutiveFailures {
		return TerminationConsecutiveFailures, true
	}
	if e.state.AbandonedRedispatches >= maxAbandonedRedispatches {
		return TerminationLoopThrashing, true
	}
	if e.state.MalformedEvents >= maxMalformedEvents {
		return TerminationValidationFailure, true
	}
	return 0, false
}

// pollSideFile ingests newly appended side-file records. Malformed
// lines count toward the validation-failure threshold exactly like
// malformed markers in text output; valid records reset the counter.
func (e *Engine) pollSideFile() {
	if e.opts.SideFile == nil {
		return
	}
	events, malformed, err := e.opts.SideFile.Poll()
	if err != nil {
		e.logger.Warn("side event file poll failed", zap.Error(err))
		return
	}
	if malformed > 0 {
		e.state.MalformedEvents += malformed
		e.logger.Warn("malformed side-file events",
			zap.Int("malformed", malformed),
			zap.Int("consecutive", e.state.MalformedEvents))
	} else if len(events) > 0 {
		e.state.MalformedEvents = 0
	}
	for _, ev := range events {
		e.publish(ev)
	}
}

// injectResume publishes a synthetic task.resume, targeted at the last
// executed non-fallback hat when one exists.
func (e *Engine) injectResume() {
	ev := event.New(event.TopicTaskResume, "Resume work on the current task. Review prior progress and continue.")
	if e.state.LastHat != "" && e.state.LastHat != e.registry.Fallback().ID {
		ev.Target = e.state.LastHat
	} else {
		ev.Target = e.registry.Fallback().ID
	}
	e.logger.Info("injecting recovery event",
		zap.String("target", ev.Target),
		zap.Int("attempt", e.state.RecoveryAttempts))
	e.publish(ev)
}

// takeDeliveries drains every hat's queue, applying activation
// accounting and exhaustion. An exhausted hat's events are silently
// dropped; the announcement happened when the budget ran out.
func (e *Engine) takeDeliveries() []event.Delivery {
	all := e.bus.TakeAll()
	fallbackID := e.registry.Fallback().ID

	kept := all[:0]
	activated := make(map[string]bool)
	for _, d := range all {
		if d.Hat == fallbackID {
			kept = append(kept, d)
			continue
		}
		if e.state.Exhausted[d.Hat] {
			e.logger.Debug("dropping event for exhausted hat",
				zap.String("hat", d.Hat), zap.String("topic", d.Event.Topic))
			continue
		}
		kept = append(kept, d)
		if activated[d.Hat] {
			continue
		}
		activated[d.Hat] = true
		e.state.Activations[d.Hat]++

		h, ok := e.registry.Get(d.Hat)
		if ok && h.MaxActivations > 0 && e.state.Activations[d.Hat] >= h.MaxActivations {
			e.state.Exhausted[d.Hat] = true
			ev := event.New(event.TopicHatExhausted,
				fmt.Sprintf("%s reached its activation limit (%d); its pending events will be dropped", d.Hat, h.MaxActivations))
			ev.Source = fallbackID
			e.publish(ev)
		}
	}
	return kept
}

func (e *Engine) noteLastHat(deliveries []event.Delivery) {
	fallbackID := e.registry.Fallback().ID
	for _, d := range deliveries {
		if d.Hat != fallbackID {
			e.state.LastHat = d.Hat
			return
		}
	}
	e.state.LastHat = fallbackID
}

func (e *Engine) recordConsumed(deliveries []event.Delivery) {
	if e.opts.Ledger == nil {
		return
	}
	for _, d := range deliveries {
		e.opts.Ledger.Record(ledger.Entry{
			Iteration: e.state.Iteration,
			Direction: "consumed",
			Topic:     d.Event.Topic,
			Payload:   d.Event.Payload,
			Source:    d.Event.Source,
			Target:    d.Hat,
		})
	}
}

// checkCompletion applies the completion debounce. Only the fallback
// hat's output reaches here; it is the only hat eligible to complete
// the loop.
func (e *Engine) checkCompletion(output string) bool {
	if !strings.Contains(output, e.cfg.CompletionPromise) {
		e.state.CompletionConfirms = 0
		return false
	}
	verified := true
	if e.opts.Verifier != nil {
		done, err := e.opts.Verifier.AllWorkDone()
		if err != nil {
			e.logger.Warn("completion verification failed", zap.Error(err))
			done = false
		}
		verified = done
	}
	if !verified {
		e.logger.Info("completion promise without verified completion, resetting confirmation",
			zap.String("promise", e.cfg.CompletionPromise))
		e.state.CompletionConfirms = 0
		return false
	}
	e.state.CompletionConfirms++
	e.logger.Info("completion confirmed",
		zap.Int("confirmations", e.state.CompletionConfirms),
		zap.Int("required", completionConfirmations))
	return e.state.CompletionConfirms >= completionConfirmations
}

// processOutput extracts structured events from agent output, applies
// the backpressure gate and thrashing detection, and republishes the
// results.
func (e *Engine) processOutput(output string) {
	events := parser.ParseEvents(output)
	fallbackID := e.registry.Fallback().ID

	for _, ev := range events {
		ev.Source = fallbackID

		if ev.Topic == event.TopicBuildFinished {
			ev = e.gateBuildFinished(ev)
		}

		switch ev.Topic {
		case event.TopicBuildBlocked:
			e.noteBlocked(ev)
		case event.TopicBuildTask:
			e.noteBuildTask(ev)
		}

		e.publish(ev)
	}
}

// gateBuildFinished enforces backpressure evidence: a build.finished
// event must embed all three checks passing, or it is replaced with a
// build.blocked diagnostic instead of being published as-is.
func (e *Engine) gateBuildFinished(ev event.Event) event.Event {
	evidence, complete := parser.ParseEvidence(ev.Payload)
	if complete && evidence.AllPass() {
		return ev
	}

	var diag string
	if !complete {
		diag = "missing evidence: build.finished requires tests, lint, and typecheck results"
	} else {
		var failed []string
		if !evidence.Tests {
			failed = append(failed, "tests")
		}
		if !evidence.Lint {
			failed = append(failed, "lint")
		}
		if !evidence.Typecheck {
			failed = append(failed, "typecheck")
		}
		diag = fmt.Sprintf("failed checks: %s", strings.Join(failed, ", "))
	}
	e.logger.Warn("build.finished rejected by backpressure gate", zap.String("diagnostic", diag))

	blocked := event.New(event.TopicBuildBlocked, firstLine(ev.Payload)+"\n"+diag)
	blocked.Source = ev.Source
	return blocked
}

// noteBlocked updates the thrashing detector: three blocks against one
// task id abandon the task, exactly once.
func (e *Engine) noteBlocked(ev event.Event) {
	id := parser.TaskID(ev.Payload)
	if id == "" {
		return
	}
	e.state.BlockCounts[id]++
	if e.state.BlockCounts[id] >= blocksUntilAbandoned && !e.state.Abandoned[id] {
		e.state.Abandoned[id] = true
		e.logger.Warn("abandoning repeatedly blocked task",
			zap.String("task", id),
			zap.Int("blocks", e.state.BlockCounts[id]))
		abandoned := event.New(event.TopicTaskAbandoned, id)
		abandoned.Source = ev.Source
		e.publish(abandoned)
	}
}

// noteBuildTask tracks redispatches of abandoned tasks; a run of them
// without an intervening fresh task is the thrashing signal.
func (e *Engine) noteBuildTask(ev event.Event) {
	id := parser.TaskID(ev.Payload)
	if id != "" && e.state.Abandoned[id] {
		e.state.AbandonedRedispatches++
		e.logger.Warn("abandoned task redispatched",
			zap.String("task", id),
			zap.Int("consecutive", e.state.AbandonedRedispatches))
		return
	}
	e.state.AbandonedRedispatches = 0
}

// publish routes an event and logs zero-recipient publishes, which are
// valid but worth surfacing.
func (e *Engine) publish(ev event.Event) {
	recipients := e.bus.Publish(ev)
	if len(recipients) == 0 {
		e.logger.Info("event had no subscribers",
			zap.String("topic", ev.Topic),
			zap.String("target", ev.Target))
	}
}

// finish publishes the termination event to observers only and logs the
// outcome. No hat may subscribe to the termination topic.
func (e *Engine) finish(reason TerminationReason) {
	summary := e.Summary(reason)
	ev := event.New(event.TopicLoopTerminated,
		fmt.Sprintf("reason=%s iterations=%d elapsed=%s exit_code=%d",
			reason, summary.Iterations, summary.Elapsed.Round(time.Second), summary.ExitCode))
	e.bus.NotifyObservers(ev)
	e.logger.Info("loop terminated",
		zap.String("reason", reason.String()),
		zap.Int("iterations", summary.Iterations),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Float64("cost_usd", summary.CostUSD))
}

// Summary is the user-visible run outcome.
type Summary struct {
	Reason     TerminationReason
	Iterations int
	Elapsed    time.Duration
	CostUSD    float64
	ExitCode   int
}

// Summary builds the outcome for a reason against current state.
func (e *Engine) Summary(reason TerminationReason) Summary {
	return Summary{
		Reason:     reason,
		Iterations: e.state.Iteration,
		Elapsed:    e.now().Sub(e.state.StartedAt),
		CostUSD:    e.state.CostUSD,
		ExitCode:   reason.ExitCode(),
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
