package executor

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/a-marczewski/hatloop/internal/command"
)

func TestInputPumpHandsOffBetweenConsumers(t *testing.T) {
	pr, pw := io.Pipe()
	pump := NewInputPump(pr)

	write := func(s string) {
		t.Helper()
		if _, err := pw.Write([]byte(s)); err != nil {
			t.Fatalf("write %q: %v", s, err)
		}
	}

	write("one")
	if got := string(<-pump.Chunks()); got != "one" {
		t.Fatalf("first consumer got %q", got)
	}

	// A second consumer picks up the same stream with nothing lost in
	// between.
	write("two")
	write("three")
	if got := string(<-pump.Chunks()); got != "two" {
		t.Fatalf("second consumer got %q", got)
	}
	if got := string(<-pump.Chunks()); got != "three" {
		t.Fatalf("second consumer got %q", got)
	}

	pw.Close()
	if _, ok := <-pump.Chunks(); ok {
		t.Error("channel should close once the reader is exhausted")
	}
}

func TestSharedInputSurvivesSuccessiveExecutions(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	pump := NewInputPump(pr)

	first := New(command.Spec{Command: "true"}, Options{
		Mode:   ModeInteractive,
		Input:  pump.Chunks(),
		Stdout: io.Discard,
	}, nil)
	if _, err := first.Execute(context.Background(), nil); err != nil {
		t.Fatalf("first execution: %v", err)
	}

	// Keystrokes typed after the first execution ended must all reach
	// the next child; nothing left over from the first execution may
	// siphon them off the shared stream.
	const typed = "0123456789"
	if _, err := pw.Write([]byte(typed)); err != nil {
		t.Fatalf("write keystrokes: %v", err)
	}
	// EOT flushes the pending line to the child; a second EOT at line
	// start reads as EOF and ends it.
	if _, err := pw.Write([]byte{0x04, 0x04}); err != nil {
		t.Fatalf("write EOT: %v", err)
	}

	second := New(command.Spec{Command: "cat"}, Options{
		Mode:        ModeInteractive,
		Input:       pump.Chunks(),
		Stdout:      io.Discard,
		IdleTimeout: 5 * time.Second,
	}, nil)
	res, err := second.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("second execution: %v", err)
	}
	for _, r := range typed {
		if !strings.Contains(res.Output, string(r)) {
			t.Errorf("keystroke %q never reached the child; output %q", r, res.Output)
		}
	}
}
