package loop

import (
	"fmt"
	"strings"

	"github.com/a-marczewski/hatloop/internal/event"
)

// buildPrompt assembles the prompt for one fallback execution from the
// accumulated event context. The originating task payload is formatted
// apart from subsequent events so the agent always sees what it was
// asked to do, not just the latest chatter. The knowledge preamble, if
// any, goes first.
func (e *Engine) buildPrompt(preamble string, deliveries []event.Delivery) string {
	var taskPayloads []string
	var others []event.Event
	seen := make(map[string]bool)

	for _, d := range deliveries {
		if seen[d.Event.ID] {
			// The fallback's "*" subscription duplicates events already
			// delivered to a custom hat.
			continue
		}
		seen[d.Event.ID] = true
		switch d.Event.Topic {
		case e.cfg.StartTopic, event.TopicTaskResume:
			taskPayloads = append(taskPayloads, d.Event.Payload)
		default:
			others = append(others, d.Event)
		}
	}

	var sb strings.Builder
	sb.WriteString(preamble)

	if len(taskPayloads) > 0 {
		sb.WriteString("# Task\n\n")
		for _, p := range taskPayloads {
			sb.WriteString(p)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(others) > 0 {
		sb.WriteString("# Events\n\n")
		for _, ev := range others {
			fmt.Fprintf(&sb, "- [%s] %s\n", ev.Topic, ev.Payload)
		}
		sb.WriteString("\n")
	}

	if summary := e.activeHatSummary(deliveries); summary != "" {
		sb.WriteString("# Hats\n\n")
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	sb.WriteString(e.instructions())
	return sb.String()
}

// activeHatSummary tells the agent which hats are semantically active
// this iteration, for coordination context. Custom hats define pub/sub
// topology only; they never execute code themselves.
func (e *Engine) activeHatSummary(deliveries []event.Delivery) string {
	if len(e.registry.Custom()) == 0 {
		return ""
	}
	active := make(map[string]bool)
	for _, d := range deliveries {
		if d.Hat != e.registry.Fallback().ID {
			active[d.Hat] = true
		}
	}

	var sb strings.Builder
	for _, h := range e.registry.Custom() {
		marker := " "
		if active[h.ID] {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s: subscribes %s", marker, h.ID, strings.Join(h.Subscriptions, ", "))
		if len(h.Publishes) > 0 {
			fmt.Fprintf(&sb, "; publishes %s", strings.Join(h.Publishes, ", "))
		}
		if e.state.Exhausted[h.ID] {
			sb.WriteString(" (exhausted)")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *Engine) instructions() string {
	var sb strings.Builder
	sb.WriteString("# Protocol\n\n")
	sb.WriteString("Announce events inline as <event topic=\"some.topic\">payload</event>.\n")
	fmt.Fprintf(&sb, "A %q event must embed evidence lines: tests: pass|fail, lint: pass|fail, typecheck: pass|fail.\n", event.TopicBuildFinished)
	fmt.Fprintf(&sb, "When every task is finished and verified, output %s.\n", e.cfg.CompletionPromise)
	return sb.String()
}
