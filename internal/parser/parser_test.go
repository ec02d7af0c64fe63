package parser

import (
	"testing"
)

func TestParseEventsExtractsMarkersInOrder(t *testing.T) {
	text := `Working on the build.
<event topic="build.finished">auth module
tests: pass
lint: pass
typecheck: pass</event>
Some narration in between.
<event topic="build.task">next: wire the cache</event>`

	events := ParseEvents(text)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Topic != "build.finished" {
		t.Errorf("first topic = %s", events[0].Topic)
	}
	if events[1].Topic != "build.task" || events[1].Payload != "next: wire the cache" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestParseEventsIgnoresMalformedMarkers(t *testing.T) {
	cases := []string{
		"no markers here at all",
		`<event topic="unclosed">never ends`,
		`<event>missing topic attribute</event>`,
		`<event topic="bad topic!">spaces and punctuation</event>`,
	}
	for _, text := range cases {
		if events := ParseEvents(text); len(events) != 0 {
			t.Errorf("ParseEvents(%q) = %v, want none", text, events)
		}
	}
}

func TestParseEventsMultilinePayload(t *testing.T) {
	text := "<event topic=\"build.blocked\">task-7\ncompiler cannot find the symbol</event>"
	events := ParseEvents(text)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Payload != "task-7\ncompiler cannot find the symbol" {
		t.Errorf("payload = %q", events[0].Payload)
	}
}

func TestParseEvidence(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		want     Evidence
		complete bool
	}{
		{
			name:     "all pass",
			payload:  "done\ntests: pass\nlint: pass\ntypecheck: pass",
			want:     Evidence{Tests: true, Lint: true, Typecheck: true},
			complete: true,
		},
		{
			name:     "mixed verdicts",
			payload:  "tests: pass\nlint: FAIL\ntypecheck: ok",
			want:     Evidence{Tests: true, Lint: false, Typecheck: true},
			complete: true,
		},
		{
			name:     "alternate spellings",
			payload:  "tests=passed lint=true typecheck=ok",
			want:     Evidence{Tests: true, Lint: true, Typecheck: true},
			complete: true,
		},
		{
			name:     "missing check",
			payload:  "tests: pass\nlint: pass",
			want:     Evidence{Tests: true, Lint: true},
			complete: false,
		},
		{
			name:     "no evidence at all",
			payload:  "finished the work, looks good",
			complete: false,
		},
		{
			name:     "first occurrence wins",
			payload:  "tests: fail\ntests: pass\nlint: pass\ntypecheck: pass",
			want:     Evidence{Tests: false, Lint: true, Typecheck: true},
			complete: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, complete := ParseEvidence(c.payload)
			if got != c.want {
				t.Errorf("evidence = %+v, want %+v", got, c.want)
			}
			if complete != c.complete {
				t.Errorf("complete = %v, want %v", complete, c.complete)
			}
		})
	}
}

func TestTaskID(t *testing.T) {
	if id := TaskID("\n\n  task-42  \ndetails follow"); id != "task-42" {
		t.Errorf("TaskID = %q", id)
	}
	if id := TaskID("   \n\t\n"); id != "" {
		t.Errorf("blank payload should yield empty id, got %q", id)
	}
}
