package executor

import "io"

// InputPump bridges a blocking reader (normally the user's terminal)
// into a channel that successive executions share. Terminal reads block
// at the OS layer with no way to cancel them, so the pump owns exactly
// one goroutine for the life of the session; a per-execution reader
// would stay blocked in Read after its execution ended and steal
// keystrokes from the next one.
type InputPump struct {
	ch chan []byte
}

// NewInputPump starts reading r. The pump runs until r reports an
// error or EOF; between executions it buffers a few chunks and then
// blocks in the channel send, so no input is dropped.
func NewInputPump(r io.Reader) *InputPump {
	p := &InputPump{ch: make(chan []byte, 8)}
	go func() {
		defer close(p.ch)
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				p.ch <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

// Chunks is the shared keystroke stream. It closes when the underlying
// reader is exhausted.
func (p *InputPump) Chunks() <-chan []byte { return p.ch }
