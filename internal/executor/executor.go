package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/a-marczewski/hatloop/internal/command"
	"github.com/a-marczewski/hatloop/internal/stream"
	"github.com/a-marczewski/hatloop/internal/termguard"
)

// ErrWriterTaken is returned when the pty write-half is requested a
// second time. The write-half is a resource consumed by whichever
// caller requests it first.
var ErrWriterTaken = errors.New("pty writer already taken")

// promptChunkSize bounds single writes of the prompt into the pty so a
// slow child cannot stall the writer on one giant write.
const promptChunkSize = 4096

// Executor runs one external command inside a pseudo-terminal.
type Executor struct {
	spec   command.Spec
	opts   Options
	logger *zap.Logger

	ptmx        *os.File
	writerTaken bool
}

// New creates an executor for one invocation. An Executor is
// single-use: Execute may be called once.
func New(spec command.Spec, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.CtrlCWindow <= 0 {
		opts.CtrlCWindow = defaultCtrlCWindow
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &Executor{spec: spec, opts: opts, logger: logger}
}

// InputWriter returns the pty write-half. It may be taken at most once;
// the prompt writer consumes it for stdin-mode backends.
func (e *Executor) InputWriter() (io.Writer, error) {
	if e.writerTaken {
		return nil, ErrWriterTaken
	}
	if e.ptmx == nil {
		return nil, fmt.Errorf("no child running")
	}
	e.writerTaken = true
	return e.ptmx, nil
}

// outState accumulates one execution's output.
type outState struct {
	raw        strings.Builder
	structured strings.Builder
	lineBuf    stream.LineBuffer
	attachBuf  stream.LineBuffer
	cost       float64
	resultErr  bool
}

// Execute spawns the child and multiplexes until it terminates. The
// interrupt channel is a broadcast-style cancellation signal shared
// with the loop; observing it starts graceful escalation rather than
// merely returning, because an orphaned child is a correctness
// failure.
//
// Pty allocation and spawn failures are returned as errors; once the
// child is running, streaming failures degrade to best-effort capture
// since partial output is still valuable to the loop.
func (e *Executor) Execute(ctx context.Context, interrupt <-chan struct{}) (*Result, error) {
	cmd := exec.Command(e.spec.Command, e.spec.Args...)
	cmd.Env = os.Environ()

	// pty.Start runs the child with Setsid+Setctty, making it a session
	// and process-group leader, so group-wide signals below reach every
	// descendant it spawns.
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s in pty: %w", e.spec.Command, err)
	}
	e.ptmx = ptmx
	defer ptmx.Close()

	var guard *termguard.Guard
	if e.opts.Mode == ModeInteractive {
		g, rawErr := termguard.MakeRaw(int(os.Stdin.Fd()))
		if rawErr != nil {
			e.logger.Warn("raw mode unavailable, keystroke forwarding degraded", zap.Error(rawErr))
		} else {
			guard = g
			defer guard.Restore()
		}
	}

	// Reader thread: pty reads are blocking at the OS layer, so they
	// live on their own thread and bridge into the select below through
	// a bounded channel.
	ptyCh := make(chan []byte, readerChanCap)
	stopCh := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer close(ptyCh)
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case ptyCh <- chunk:
				case <-stopCh:
					// Terminating: drop rather than deadlock.
					select {
					case ptyCh <- chunk:
					default:
					}
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}()
	defer close(stopCh)

	// Keystrokes arrive on the session-scoped pump channel rather than a
	// reader spawned here: a goroutine blocked in a terminal Read cannot
	// be stopped, so one per execution would outlive its execution and
	// race the next one for stdin.
	var stdinCh <-chan []byte
	if e.opts.Mode == ModeInteractive {
		stdinCh = e.opts.Input
	}

	if e.spec.Stdin != "" {
		go e.writePrompt(e.spec.Stdin)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var idleTimer *time.Timer
	var idleC <-chan time.Time
	if e.opts.IdleTimeout > 0 {
		idleTimer = time.NewTimer(e.opts.IdleTimeout)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}
	resetIdle := func() {
		if idleTimer == nil {
			return
		}
		if !idleTimer.Stop() {
			select {
			case <-idleTimer.C:
			default:
			}
		}
		idleTimer.Reset(e.opts.IdleTimeout)
	}

	st := &outState{}
	control := e.opts.Control
	ctrlc := NewCtrlCState(e.opts.CtrlCWindow)
	termination := TerminationNatural
	escalating := false
	var graceC <-chan time.Time

	escalate := func(t TerminationType) {
		if escalating {
			return
		}
		escalating = true
		termination = t
		e.signalGroup(cmd, unix.SIGINT)
		graceC = time.After(e.opts.GracePeriod)
	}
	forceKill := func(t TerminationType) {
		escalating = true
		termination = t
		graceC = nil
		e.signalGroup(cmd, unix.SIGKILL)
	}

	var waitErr error
multiplex:
	for {
		select {
		case chunk, ok := <-ptyCh:
			if !ok {
				// Reader hit EOF; wait for the child to report.
				waitErr = <-waitCh
				break multiplex
			}
			e.consume(chunk, st)
			resetIdle()

		case chunk, ok := <-stdinCh:
			if !ok {
				stdinCh = nil
				continue
			}
			e.forwardInput(chunk, ctrlc, escalate)
			resetIdle()

		case ctl, ok := <-control:
			if !ok {
				control = nil
				continue
			}
			switch ctl.Kind {
			case ControlResize:
				if err := pty.Setsize(ptmx, &pty.Winsize{Cols: ctl.Cols, Rows: ctl.Rows}); err != nil {
					e.logger.Debug("pty resize failed", zap.Error(err))
				}
			case ControlKill:
				forceKill(TerminationForceKill)
			}

		case <-idleC:
			e.logger.Info("idle timeout reached",
				zap.Duration("idle_timeout", e.opts.IdleTimeout))
			idleC = nil
			escalate(TerminationIdleTimeout)

		case <-ctx.Done():
			escalate(TerminationUserInterrupt)

		case <-interrupt:
			interrupt = nil
			escalate(TerminationUserInterrupt)

		case <-graceC:
			graceC = nil
			e.logger.Warn("grace period expired, killing child",
				zap.Duration("grace", e.opts.GracePeriod))
			e.signalGroup(cmd, unix.SIGKILL)

		case waitErr = <-waitCh:
			break multiplex
		}
	}

	// Child is gone; drain trailing bytes with a bounded grace window
	// so nothing the child flushed at exit is lost.
	deadline := time.After(drainWindow)
drain:
	for {
		select {
		case chunk, ok := <-ptyCh:
			if !ok {
				break drain
			}
			e.consume(chunk, st)
		case <-deadline:
			break drain
		}
	}
	e.flushTail(st)

	return e.buildResult(st, waitErr, termination), nil
}

// writePrompt feeds a stdin-mode backend its prompt through the pty in
// bounded chunks, terminated with EOT so the child sees end-of-input.
func (e *Executor) writePrompt(prompt string) {
	w, err := e.InputWriter()
	if err != nil {
		e.logger.Warn("prompt write skipped", zap.Error(err))
		return
	}
	data := []byte(prompt)
	for len(data) > 0 {
		n := promptChunkSize
		if n > len(data) {
			n = len(data)
		}
		if _, err := w.Write(data[:n]); err != nil {
			e.logger.Warn("prompt write failed", zap.Error(err))
			return
		}
		data = data[n:]
	}
	if _, err := w.Write([]byte{0x04}); err != nil {
		e.logger.Warn("prompt EOT write failed", zap.Error(err))
	}
}

// forwardInput delivers user keystrokes to the child, intercepting the
// double-interrupt gesture.
func (e *Executor) forwardInput(chunk []byte, ctrlc *CtrlCState, escalate func(TerminationType)) {
	const ctrlC = 0x03
	start := 0
	flush := func(end int) {
		if end > start {
			if _, err := e.ptmx.Write(chunk[start:end]); err != nil {
				e.logger.Debug("keystroke forward failed", zap.Error(err))
			}
		}
	}
	for i, b := range chunk {
		if b != ctrlC {
			continue
		}
		switch ctrlc.Press(time.Now()) {
		case CtrlCTerminate:
			flush(i)
			escalate(TerminationUserInterrupt)
			start = i + 1
		case CtrlCForward:
			// The press itself is forwarded with the surrounding bytes.
		}
	}
	flush(len(chunk))
}

// consume routes one pty chunk into the configured sink and the
// captured output.
func (e *Executor) consume(chunk []byte, st *outState) {
	st.raw.Write(chunk)

	if e.spec.StreamJSON {
		for _, line := range st.lineBuf.Feed(chunk) {
			e.consumeRecord(line, st)
		}
		return
	}

	switch e.opts.Mode {
	case ModeAttached:
		for _, line := range st.attachBuf.Feed(chunk) {
			e.opts.Sink.AppendLine(stream.StripANSI(string(line)))
		}
	default:
		if _, err := e.opts.Stdout.Write(chunk); err != nil {
			e.logger.Debug("output write failed", zap.Error(err))
		}
	}
}

// consumeRecord parses one structured stream line. Malformed lines and
// unknown variants are forward-compatible no-ops.
func (e *Executor) consumeRecord(line []byte, st *outState) {
	rec, err := stream.DecodeLine(line)
	if err != nil {
		e.logger.Debug("dropping malformed stream line", zap.Error(err))
		return
	}
	switch rec.Type {
	case stream.RecordAssistant:
		if rec.Text == "" {
			return
		}
		st.structured.WriteString(rec.Text)
		st.structured.WriteString("\n")
		e.emitText(rec.Text)
	case stream.RecordResult:
		st.cost += rec.CostUSD
		st.resultErr = rec.IsError
		if rec.Text != "" && st.structured.Len() == 0 {
			st.structured.WriteString(rec.Text)
			st.structured.WriteString("\n")
		}
	case stream.RecordSystem, stream.RecordUser, stream.RecordOther:
		// No-op by contract.
	}
}

func (e *Executor) emitText(text string) {
	switch e.opts.Mode {
	case ModeAttached:
		for _, line := range strings.Split(text, "\n") {
			e.opts.Sink.AppendLine(line)
		}
	default:
		if _, err := fmt.Fprintln(e.opts.Stdout, text); err != nil {
			e.logger.Debug("output write failed", zap.Error(err))
		}
	}
}

// flushTail handles a final partial line left in the buffers.
func (e *Executor) flushTail(st *outState) {
	if e.spec.StreamJSON {
		if tail := st.lineBuf.Flush(); len(tail) > 0 {
			e.consumeRecord(tail, st)
		}
		return
	}
	if e.opts.Mode == ModeAttached {
		if tail := st.attachBuf.Flush(); len(tail) > 0 {
			e.opts.Sink.AppendLine(stream.StripANSI(string(tail)))
		}
	}
}

func (e *Executor) buildResult(st *outState, waitErr error, termination TerminationType) *Result {
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	// SIGINT convention: a child reporting 130 was interrupted by the
	// user regardless of which path produced it.
	if exitCode == sigintExitCode {
		termination = TerminationUserInterrupt
	}

	raw := st.raw.String()
	return &Result{
		RawOutput:      raw,
		Output:         stream.StripANSI(raw),
		StructuredText: st.structured.String(),
		Success:        exitCode == 0 && !st.resultErr,
		ExitCode:       exitCode,
		CostUSD:        st.cost,
		Termination:    termination,
	}
}

// signalGroup signals the child's whole process group; falls back to
// the child alone when the group signal fails.
func (e *Executor) signalGroup(cmd *exec.Cmd, sig unix.Signal) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		e.logger.Debug("group signal failed, signaling child directly",
			zap.Int("pid", pid), zap.String("signal", sig.String()), zap.Error(err))
		_ = cmd.Process.Signal(sig)
	}
}
