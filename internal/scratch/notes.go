// Package scratch is the persistent knowledge store prepended to loop
// prompts. It is a plain markdown file agents append lessons to; the
// loop only ever reads it, bounded by a character budget so a growing
// file cannot crowd out the task itself.
package scratch

import (
	"fmt"
	"os"
	"strings"

	"github.com/a-marczewski/hatloop/internal/stream"
)

// Notes reads and appends to the knowledge file.
type Notes struct {
	path   string
	budget int
}

// NewNotes creates a Notes bound to path with a character budget.
func NewNotes(path string, budget int) *Notes {
	return &Notes{path: path, budget: budget}
}

// Preamble returns the knowledge text to prepend to a prompt, truncated
// to the budget on a UTF-8 boundary. A missing file yields an empty
// preamble, not an error.
func (n *Notes) Preamble() (string, error) {
	data, err := os.ReadFile(n.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read knowledge file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", nil
	}
	text = stream.Truncate(text, n.budget)

	var sb strings.Builder
	sb.WriteString("=== PROJECT KNOWLEDGE ===\n")
	sb.WriteString(text)
	sb.WriteString("\n=== END KNOWLEDGE ===\n\n")
	return sb.String(), nil
}

// Append adds an entry to the knowledge file, creating it if needed.
func (n *Notes) Append(entry string) error {
	f, err := os.OpenFile(n.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open knowledge file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", strings.TrimSpace(entry)); err != nil {
		return fmt.Errorf("failed to append knowledge entry: %w", err)
	}
	return nil
}
