// Package event implements the in-memory pub/sub router that connects
// hats to the orchestration loop. Topics are dot-segmented strings;
// subscriptions are exact topics or patterns ending in a wildcard
// segment ("build.*", "*").
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known topics used by the loop. Hats may publish and subscribe to
// any topic; these are the ones the loop itself produces or inspects.
const (
	TopicTaskStart     = "task.start"
	TopicTaskResume    = "task.resume"
	TopicTaskAbandoned = "task.abandoned"
	TopicBuildTask     = "build.task"
	TopicBuildFinished = "build.finished"
	TopicBuildBlocked  = "build.blocked"
	TopicHatExhausted  = "hat.exhausted"

	// TopicLoopTerminated is delivered to observers only; no hat may
	// subscribe to it.
	TopicLoopTerminated = "loop.terminated"
)

// Event is an immutable message routed by the Bus. Once published,
// ownership transfers to the bus, which clones into per-subscriber
// queues.
type Event struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	Payload string    `json:"payload"`
	Source  string    `json:"source,omitempty"`
	Target  string    `json:"target,omitempty"`
	Time    time.Time `json:"time"`
}

// New creates an event with a fresh ID and timestamp.
func New(topic, payload string) Event {
	return Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Payload: payload,
		Time:    time.Now(),
	}
}

// MatchTopic reports whether a subscription pattern matches a topic.
// Patterns are either exact topics, "*" (matches everything), or a
// dot-path ending in a wildcard segment such as "build.*", which
// matches "build.done" and "build.done.fast" but not "build" itself.
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if pattern == "*" {
		return topic != ""
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(topic, prefix)
	}
	return false
}

// matchSpecificity orders competing matches: exact beats wildcard, and
// a longer wildcard prefix beats a shorter one. "*" is the least
// specific match possible.
func matchSpecificity(pattern, topic string) int {
	if pattern == topic {
		return len(pattern) + 1
	}
	if pattern == "*" {
		return 0
	}
	return len(strings.TrimSuffix(pattern, "*"))
}
