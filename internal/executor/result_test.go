package executor

import (
	"fmt"
	"os/exec"
	"testing"

	"github.com/a-marczewski/hatloop/internal/command"
)

// exitError produces a real *exec.ExitError carrying the given code.
func exitError(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	if err == nil {
		t.Fatalf("expected exit %d to fail", code)
	}
	return err
}

func TestBuildResultCleanExit(t *testing.T) {
	e := New(command.Spec{}, Options{}, nil)
	st := &outState{}
	st.raw.WriteString("\x1b[32mdone\x1b[0m\n")

	res := e.buildResult(st, nil, TerminationNatural)
	if !res.Success || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.Output != "done\n" {
		t.Errorf("Output should be ANSI-stripped, got %q", res.Output)
	}
	if res.RawOutput == res.Output {
		t.Error("RawOutput should keep the escape sequences")
	}
}

func TestBuildResultNonZeroExit(t *testing.T) {
	e := New(command.Spec{}, Options{}, nil)
	res := e.buildResult(&outState{}, exitError(t, 3), TerminationNatural)
	if res.Success || res.ExitCode != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Termination != TerminationNatural {
		t.Errorf("termination = %s", res.Termination)
	}
}

func TestBuildResultSigintCodeReclassifies(t *testing.T) {
	// A child reporting 130 was interrupted regardless of which path
	// produced it.
	e := New(command.Spec{}, Options{}, nil)
	res := e.buildResult(&outState{}, exitError(t, 130), TerminationNatural)
	if res.Termination != TerminationUserInterrupt {
		t.Errorf("termination = %s, want user_interrupt", res.Termination)
	}
	if res.ExitCode != 130 {
		t.Errorf("exit code = %d", res.ExitCode)
	}
}

func TestBuildResultStreamErrorFlagBlocksSuccess(t *testing.T) {
	e := New(command.Spec{}, Options{}, nil)
	st := &outState{resultErr: true}
	res := e.buildResult(st, nil, TerminationNatural)
	if res.Success {
		t.Error("a stream result record with is_error must not report success")
	}
}

func TestConsumeRecordAccumulatesStructuredText(t *testing.T) {
	var sink nullWriter
	e := New(command.Spec{StreamJSON: true}, Options{Stdout: &sink}, nil)
	st := &outState{}

	e.consumeRecord([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"first"}]}}`), st)
	e.consumeRecord([]byte(`{"type":"telemetry"}`), st)
	e.consumeRecord([]byte(`{"type":"result","result":"final","total_cost_usd":0.05}`), st)

	if st.structured.String() != "first\n" {
		t.Errorf("structured = %q; result text must not duplicate assistant text", st.structured.String())
	}
	if st.cost != 0.05 {
		t.Errorf("cost = %f", st.cost)
	}
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
