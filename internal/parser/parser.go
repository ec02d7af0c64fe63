// Package parser extracts structured events embedded in free-form agent
// output. Agents announce events with an inline marker syntax:
//
//	<event topic="build.finished">payload text</event>
//
// Malformed or incomplete markers are ignored, never errors.
package parser

import (
	"regexp"
	"strings"

	"github.com/a-marczewski/hatloop/internal/event"
)

var eventPattern = regexp.MustCompile(`(?s)<event\s+topic="([a-zA-Z0-9_.*-]+)"\s*>(.*?)</event>`)

// ParseEvents scans text for event markers and returns them in order of
// appearance. Text outside markers is skipped.
func ParseEvents(text string) []event.Event {
	matches := eventPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	events := make([]event.Event, 0, len(matches))
	for _, m := range matches {
		topic := strings.TrimSpace(m[1])
		if topic == "" {
			continue
		}
		events = append(events, event.New(topic, strings.TrimSpace(m[2])))
	}
	return events
}

// Evidence is the three-check backpressure proof an agent must embed in
// a "build finished" payload: tests, lint, and typecheck each reported
// pass or fail.
type Evidence struct {
	Tests     bool
	Lint      bool
	Typecheck bool
}

// AllPass reports whether every check passed.
func (e Evidence) AllPass() bool {
	return e.Tests && e.Lint && e.Typecheck
}

var checkPattern = regexp.MustCompile(`(?im)\b(tests|lint|typecheck)\s*[:=]\s*(pass|passed|ok|true|fail|failed|false)\b`)

// ParseEvidence extracts the evidence checks from a payload. The second
// return value reports whether all three checks were present; its
// absence is a valid, expected state, not a parse error.
func ParseEvidence(payload string) (Evidence, bool) {
	var ev Evidence
	seen := make(map[string]bool, 3)
	for _, m := range checkPattern.FindAllStringSubmatch(payload, -1) {
		name := strings.ToLower(m[1])
		pass := false
		switch strings.ToLower(m[2]) {
		case "pass", "passed", "ok", "true":
			pass = true
		}
		// First occurrence of each check wins.
		if seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "tests":
			ev.Tests = pass
		case "lint":
			ev.Lint = pass
		case "typecheck":
			ev.Typecheck = pass
		}
	}
	return ev, seen["tests"] && seen["lint"] && seen["typecheck"]
}

// TaskID derives a task identifier from a blocked payload: its first
// non-empty line, trimmed. Used by the loop's thrashing detector.
func TaskID(payload string) string {
	for _, line := range strings.Split(payload, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}
