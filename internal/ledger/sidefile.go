package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/a-marczewski/hatloop/internal/event"
)

// SideFile is the externally written event channel: agents may append
// structured records to a side file instead of embedding markers in
// text output. The loop polls it between ticks; newly appended valid
// records are treated identically to parsed-from-output events, and
// malformed lines identically to malformed markers.
type SideFile struct {
	path   string
	offset int64
}

// NewSideFile tracks path from its current beginning.
func NewSideFile(path string) *SideFile {
	return &SideFile{path: path}
}

type sideRecord struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Target  string `json:"target,omitempty"`
}

// Poll reads lines appended since the last call. It returns the valid
// events and the count of malformed lines encountered. A missing file
// is an empty poll.
func (s *SideFile) Poll() ([]event.Event, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open side event file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if info.Size() < s.offset {
		// File was truncated or replaced; start over.
		s.offset = 0
	}
	if info.Size() == s.offset {
		return nil, 0, nil
	}

	if _, err := f.Seek(s.offset, 0); err != nil {
		return nil, 0, err
	}
	data := make([]byte, info.Size()-s.offset)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, 0, err
	}

	// Only consume complete lines; a partial trailing line stays for
	// the next poll.
	lastNewline := bytes.LastIndexByte(data, '\n')
	if lastNewline < 0 {
		return nil, 0, nil
	}
	consumed := data[:lastNewline+1]
	s.offset += int64(len(consumed))

	var events []event.Event
	malformed := 0
	for _, line := range bytes.Split(consumed, []byte{'\n'}) {
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		var rec sideRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil || rec.Topic == "" {
			malformed++
			continue
		}
		ev := event.New(rec.Topic, rec.Payload)
		ev.Target = rec.Target
		events = append(events, ev)
	}
	return events, malformed, nil
}
