package stream

import (
	"testing"
)

func TestDecodeLineAssistantText(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"hello "},{"type":"tool_use"},{"type":"text","text":"world"}]}}`)
	rec, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != RecordAssistant || rec.Text != "hello world" {
		t.Errorf("record = %+v", rec)
	}
}

func TestDecodeLineResult(t *testing.T) {
	line := []byte(`{"type":"result","result":"all done","is_error":false,"total_cost_usd":0.42}`)
	rec, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Type != RecordResult || rec.Text != "all done" || rec.CostUSD != 0.42 || rec.IsError {
		t.Errorf("record = %+v", rec)
	}
}

func TestDecodeLineUnknownTypeIsNoOp(t *testing.T) {
	rec, err := DecodeLine([]byte(`{"type":"telemetry","whatever":1}`))
	if err != nil {
		t.Fatalf("unknown type must decode cleanly: %v", err)
	}
	if rec.Type != RecordOther {
		t.Errorf("record type = %s, want other", rec.Type)
	}
}

func TestDecodeLineMalformed(t *testing.T) {
	if _, err := DecodeLine([]byte(`{"type":"assistant"`)); err == nil {
		t.Error("malformed JSON must return an error")
	}
}

func TestLineBufferSplitsAcrossChunks(t *testing.T) {
	var lb LineBuffer

	lines := lb.Feed([]byte(`{"type":"sys`))
	if len(lines) != 0 {
		t.Fatalf("partial line must not emit, got %v", lines)
	}
	lines = lb.Feed([]byte("tem\"}\n{\"type\":\"user\"}\r\npartial"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 complete lines, got %d", len(lines))
	}
	if string(lines[0]) != `{"type":"system"}` {
		t.Errorf("line 0 = %q", lines[0])
	}
	if string(lines[1]) != `{"type":"user"}` {
		t.Errorf("CR should be stripped, line 1 = %q", lines[1])
	}
	if tail := lb.Flush(); string(tail) != "partial" {
		t.Errorf("flush = %q", tail)
	}
	if tail := lb.Flush(); tail != nil {
		t.Errorf("second flush should be empty, got %q", tail)
	}
}

func TestLineBufferSkipsEmptyLines(t *testing.T) {
	var lb LineBuffer
	lines := lb.Feed([]byte("\n\r\na\n"))
	if len(lines) != 1 || string(lines[0]) != "a" {
		t.Errorf("lines = %v", lines)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[31mred\x1b[0m plain \x1b]0;title\x07end\x1b[2K"
	if got := StripANSI(in); got != "red plain end" {
		t.Errorf("StripANSI = %q", got)
	}
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	s := "héllo wörld" // multi-byte characters at positions 1 and 8
	for max := 0; max <= len(s); max++ {
		got := Truncate(s, max)
		if len(got) > max {
			t.Errorf("max %d: result too long (%d bytes)", max, len(got))
		}
		for _, r := range got {
			if r == '�' {
				t.Errorf("max %d: produced invalid UTF-8 %q", max, got)
			}
		}
	}
	if got := Truncate("short", 100); got != "short" {
		t.Errorf("under-budget string must be unchanged, got %q", got)
	}
}
