// Package executor runs one external agent command to completion inside
// a pseudo-terminal, multiplexing its output against user input,
// control commands, idle timers, and cancellation. It guarantees clean
// teardown: no orphaned children, no raw-mode terminal left behind.
package executor

import (
	"io"
	"time"
)

// TerminationType classifies how a child execution ended.
type TerminationType int

const (
	// TerminationNatural means the child exited on its own.
	TerminationNatural TerminationType = iota
	// TerminationIdleTimeout means no output or input activity arrived
	// within the idle window.
	TerminationIdleTimeout
	// TerminationUserInterrupt means the user asked for termination, or
	// the child exited with the SIGINT convention code 130.
	TerminationUserInterrupt
	// TerminationForceKill means the immediate-kill path ran, skipping
	// the grace period.
	TerminationForceKill
)

func (t TerminationType) String() string {
	switch t {
	case TerminationNatural:
		return "natural"
	case TerminationIdleTimeout:
		return "idle_timeout"
	case TerminationUserInterrupt:
		return "user_interrupt"
	case TerminationForceKill:
		return "force_kill"
	default:
		return "unknown"
	}
}

// Mode selects which sink consumes child output and whether user
// keystrokes are forwarded.
type Mode int

const (
	// ModeAutonomous writes child output to our own stdout and forwards
	// no keystrokes.
	ModeAutonomous Mode = iota
	// ModeInteractive forwards user keystrokes to the child and manages
	// raw terminal mode; a double interrupt press terminates.
	ModeInteractive
	// ModeAttached appends output to an externally owned line sink and
	// performs no raw-mode management: a display component owns the
	// terminal.
	ModeAttached
)

// Result is produced once per execution.
type Result struct {
	RawOutput      string
	Output         string // ANSI-stripped
	StructuredText string // assistant text extracted from stream records
	Success        bool
	ExitCode       int // -1 when the child never reported an exit code
	CostUSD        float64
	Termination    TerminationType
}

// LineSink receives output lines in attached mode.
type LineSink interface {
	AppendLine(line string)
}

// ControlKind is a command from an externally owned display component.
type ControlKind int

const (
	// ControlResize resizes the pty.
	ControlResize ControlKind = iota
	// ControlKill kills the child immediately, skipping the grace
	// period.
	ControlKill
)

// Control is one display-component command.
type Control struct {
	Kind ControlKind
	Cols uint16
	Rows uint16
}

// Options configures a single execution.
type Options struct {
	Mode        Mode
	IdleTimeout time.Duration // 0 disables the idle timer
	GracePeriod time.Duration // graceful-signal wait before SIGKILL
	CtrlCWindow time.Duration // double-press window, interactive mode

	// Sink receives output lines in ModeAttached. Ignored otherwise.
	Sink LineSink

	// Stdout receives raw child output in autonomous and interactive
	// modes; defaults to os.Stdout.
	Stdout io.Writer

	// Input supplies user keystrokes in ModeInteractive. The channel is
	// owned by the session (see InputPump) and survives across
	// executions; a closed channel means stdin is exhausted. Ignored in
	// other modes.
	Input <-chan []byte

	// Control carries resize/kill commands from a display component.
	// May be nil.
	Control <-chan Control
}

const (
	defaultGracePeriod = 2 * time.Second
	defaultCtrlCWindow = time.Second

	// drainWindow bounds how long trailing pty bytes are collected
	// after the child exits.
	drainWindow = 200 * time.Millisecond

	// readerChanCap bounds the pty reader bridge channel.
	readerChanCap = 64

	// sigintExitCode is the conventional exit code of a child killed by
	// SIGINT; it always classifies as a user interrupt.
	sigintExitCode = 130
)
