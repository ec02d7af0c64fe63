package executor

import (
	"testing"
	"time"
)

func TestCtrlCDoublePressTerminates(t *testing.T) {
	base := time.Now()
	st := NewCtrlCState(time.Second)

	if got := st.Press(base); got != CtrlCForward {
		t.Fatalf("first press = %v, want forward", got)
	}
	if got := st.Press(base.Add(500 * time.Millisecond)); got != CtrlCTerminate {
		t.Fatalf("second press inside window = %v, want terminate", got)
	}
}

func TestCtrlCSlowPressesReArm(t *testing.T) {
	base := time.Now()
	st := NewCtrlCState(time.Second)

	st.Press(base)
	if got := st.Press(base.Add(2 * time.Second)); got != CtrlCForward {
		t.Fatalf("press outside window = %v, want forward", got)
	}
	// The late press opened a fresh window.
	if got := st.Press(base.Add(2*time.Second + 100*time.Millisecond)); got != CtrlCTerminate {
		t.Fatalf("press inside re-armed window = %v, want terminate", got)
	}
}

func TestCtrlCWindowResetsAfterTerminate(t *testing.T) {
	base := time.Now()
	st := NewCtrlCState(time.Second)

	st.Press(base)
	st.Press(base.Add(100 * time.Millisecond))
	if got := st.Press(base.Add(200 * time.Millisecond)); got != CtrlCForward {
		t.Fatalf("press after terminate = %v, want forward", got)
	}
}

func TestTerminationTypeString(t *testing.T) {
	cases := map[TerminationType]string{
		TerminationNatural:       "natural",
		TerminationIdleTimeout:   "idle_timeout",
		TerminationUserInterrupt: "user_interrupt",
		TerminationForceKill:     "force_kill",
	}
	for tt, want := range cases {
		if got := tt.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", tt, got, want)
		}
	}
}
