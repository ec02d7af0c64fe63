// Package termguard owns terminal raw-mode acquisition and guarantees
// restoration on every exit path, including panics. A crash must never
// leave the user's shell in raw mode or stuck in the alternate screen.
package termguard

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// leaveAltScreen switches back from the alternate screen buffer. Safe
// to emit even when the alternate screen was never entered.
const leaveAltScreen = "\x1b[?1049l"

var (
	mu     sync.Mutex
	active *Guard
)

// Guard is a scoped raw-mode acquisition. Restore is idempotent.
type Guard struct {
	fd    int
	state *term.State
	once  sync.Once
}

// MakeRaw puts fd into raw mode and registers the guard globally so the
// panic teardown can find it. Only one guard may be active at a time;
// acquiring a second before restoring the first is a programming error
// surfaced by term itself when states conflict.
func MakeRaw(fd int) (*Guard, error) {
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	g := &Guard{fd: fd, state: state}
	mu.Lock()
	active = g
	mu.Unlock()
	return g, nil
}

// Restore returns the terminal to cooked mode. Safe to call multiple
// times and from the panic hook concurrently.
func (g *Guard) Restore() {
	g.once.Do(func() {
		_ = term.Restore(g.fd, g.state)
		mu.Lock()
		if active == g {
			active = nil
		}
		mu.Unlock()
	})
}

// Teardown restores any active guard and leaves the alternate screen.
// Called from the panic hook; harmless when nothing is held.
func Teardown() {
	mu.Lock()
	g := active
	mu.Unlock()
	if g != nil {
		g.Restore()
	}
	_, _ = os.Stdout.WriteString(leaveAltScreen)
}

// HandlePanic is deferred once at process startup, independent of
// normal control flow. It restores the terminal before propagating the
// crash so a panic never leaves the shell unusable.
func HandlePanic() {
	if r := recover(); r != nil {
		Teardown()
		panic(r)
	}
}
