package event

import (
	"testing"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"build.finished", "build.finished", true},
		{"build.finished", "build.blocked", false},
		{"build.*", "build.finished", true},
		{"build.*", "build.finished.fast", true},
		{"build.*", "build", false},
		{"build.*", "test.finished", false},
		{"*", "anything.at.all", true},
		{"*", "", false},
		{"task.start", "task.start.now", false},
	}
	for _, c := range cases {
		if got := MatchTopic(c.pattern, c.topic); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.pattern, c.topic, got, c.want)
		}
	}
}

func TestPublishRoutesToMatchingSubscribers(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("builder", []string{"build.*"})
	bus.Register("tester", []string{"test.run"})
	bus.Register("ralph", []string{"*"})

	recipients := bus.Publish(New("build.task", "do the thing"))
	if len(recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %v", recipients)
	}

	if got := bus.PeekPending("builder"); len(got) != 1 || got[0].Topic != "build.task" {
		t.Errorf("builder queue = %v", got)
	}
	if got := bus.PeekPending("tester"); len(got) != 0 {
		t.Errorf("tester should have nothing queued, got %v", got)
	}
	if got := bus.PeekPending("ralph"); len(got) != 1 {
		t.Errorf("fallback wildcard should match, got %v", got)
	}
}

func TestPublishTargetedEventSkipsSubscriptions(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("builder", []string{"build.*"})
	bus.Register("ralph", []string{"*"})

	ev := New("build.task", "targeted")
	ev.Target = "ralph"
	recipients := bus.Publish(ev)

	if len(recipients) != 1 || recipients[0] != "ralph" {
		t.Fatalf("targeted event recipients = %v", recipients)
	}
	if got := bus.PeekPending("builder"); len(got) != 0 {
		t.Errorf("builder must not receive a targeted event, got %v", got)
	}
}

func TestPublishTargetedUnknownHatDropsEvent(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("ralph", []string{"*"})

	ev := New("build.task", "lost")
	ev.Target = "nobody"
	if recipients := bus.Publish(ev); recipients != nil {
		t.Fatalf("expected no recipients, got %v", recipients)
	}
	if bus.HasPending() {
		t.Error("nothing should be queued")
	}
}

func TestTakePendingPreservesFIFO(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("ralph", []string{"*"})

	bus.Publish(New("a.one", "1"))
	bus.Publish(New("a.two", "2"))
	bus.Publish(New("a.three", "3"))

	events := bus.TakePending("ralph")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, topic := range []string{"a.one", "a.two", "a.three"} {
		if events[i].Topic != topic {
			t.Errorf("position %d: got %s, want %s", i, events[i].Topic, topic)
		}
	}
	if bus.HasPending() {
		t.Error("queue should be drained")
	}
}

func TestTakeAllOrdersFallbackLast(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("ralph", []string{"*"})
	bus.Register("builder", []string{"build.*"})

	bus.Publish(New("build.task", "b"))
	bus.Publish(New("misc.note", "m"))

	all := bus.TakeAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(all))
	}
	if all[0].Hat != "builder" {
		t.Errorf("custom hat should come first, got %s", all[0].Hat)
	}
	if all[1].Hat != "ralph" || all[2].Hat != "ralph" {
		t.Errorf("fallback deliveries should come last: %v", all)
	}
}

func TestNextHatWithPendingPrefersNonFallback(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("ralph", []string{"*"})
	bus.Register("builder", []string{"build.*"})

	bus.Publish(New("build.task", "x"))

	id, ok := bus.NextHatWithPending()
	if !ok || id != "builder" {
		t.Fatalf("expected builder, got %q ok=%v", id, ok)
	}

	bus.TakePending("builder")
	id, ok = bus.NextHatWithPending()
	if !ok || id != "ralph" {
		t.Fatalf("expected fallback once builder drained, got %q ok=%v", id, ok)
	}
}

func TestObserverSeesEveryPublishAndCannotBreakIt(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("ralph", []string{"*"})

	var seen []string
	bus.AddObserver(func(ev Event) { seen = append(seen, ev.Topic) })
	bus.AddObserver(func(ev Event) { panic("observer blew up") })

	recipients := bus.Publish(New("build.task", "x"))
	if len(recipients) != 1 {
		t.Fatalf("panicking observer must not affect routing, got %v", recipients)
	}
	if len(seen) != 1 || seen[0] != "build.task" {
		t.Errorf("observer log = %v", seen)
	}

	// Observer-only notification does not queue anything.
	bus.NotifyObservers(New("loop.terminated", "done"))
	if len(seen) != 2 {
		t.Errorf("expected observer to see termination event, log = %v", seen)
	}
	if got := bus.PeekPending("ralph"); len(got) != 1 {
		t.Errorf("NotifyObservers must not route, queue = %v", got)
	}
}

func TestDropPending(t *testing.T) {
	bus := NewBus("ralph", nil)
	bus.Register("builder", []string{"build.*"})
	bus.Register("ralph", []string{"*"})

	bus.Publish(New("build.one", "1"))
	bus.Publish(New("build.two", "2"))

	if n := bus.DropPending("builder"); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	if got := bus.PeekPending("builder"); len(got) != 0 {
		t.Errorf("queue should be empty after drop, got %v", got)
	}
}
