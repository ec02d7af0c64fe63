// Package stream decodes the newline-delimited structured records
// emitted by stream-JSON agent backends, and provides the text
// utilities the executor needs for terminal output (ANSI stripping,
// UTF-8-safe truncation).
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RecordType tags the closed set of record variants the executor
// understands. Anything else decodes to RecordOther, which is a
// guaranteed no-op: unknown variants must stay forward-compatible.
type RecordType string

const (
	RecordSystem    RecordType = "system"
	RecordAssistant RecordType = "assistant"
	RecordUser      RecordType = "user"
	RecordResult    RecordType = "result"
	RecordOther     RecordType = "other"
)

// Record is one decoded stream line.
type Record struct {
	Type    RecordType
	Text    string  // assistant text content, or the final result text
	CostUSD float64 // set on result records
	IsError bool    // set on result records
}

type rawRecord struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"message"`
	Result       string  `json:"result,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
}

// DecodeLine parses a single complete stream line. Malformed JSON is an
// error the caller should log at low severity and drop; a well-formed
// line with an unrecognized type decodes successfully to RecordOther.
func DecodeLine(line []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, fmt.Errorf("malformed stream record: %w", err)
	}
	switch RecordType(raw.Type) {
	case RecordSystem:
		return Record{Type: RecordSystem}, nil
	case RecordAssistant:
		var sb strings.Builder
		for _, block := range raw.Message.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return Record{Type: RecordAssistant, Text: sb.String()}, nil
	case RecordUser:
		return Record{Type: RecordUser}, nil
	case RecordResult:
		return Record{
			Type:    RecordResult,
			Text:    raw.Result,
			CostUSD: raw.TotalCostUSD,
			IsError: raw.IsError,
		}, nil
	default:
		return Record{Type: RecordOther}, nil
	}
}

// LineBuffer accumulates partial lines across read chunks so each
// complete line can be parsed independently.
type LineBuffer struct {
	buf []byte
}

// Feed appends a chunk and returns the complete lines it closed, without
// trailing newlines. Empty lines are skipped.
func (lb *LineBuffer) Feed(chunk []byte) [][]byte {
	lb.buf = append(lb.buf, chunk...)
	var lines [][]byte
	for {
		idx := bytes.IndexByte(lb.buf, '\n')
		if idx < 0 {
			return lines
		}
		line := lb.buf[:idx]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			out := make([]byte, len(line))
			copy(out, line)
			lines = append(lines, out)
		}
		lb.buf = lb.buf[idx+1:]
	}
}

// Flush returns any buffered partial line and resets the buffer.
func (lb *LineBuffer) Flush() []byte {
	if len(lb.buf) == 0 {
		return nil
	}
	out := make([]byte, len(lb.buf))
	copy(out, lb.buf)
	lb.buf = nil
	return out
}
