package hat

import "testing"

func TestRegistryAlwaysHasFallback(t *testing.T) {
	r := NewRegistry()
	fb := r.Fallback()
	if fb.ID != FallbackID {
		t.Fatalf("fallback id = %q", fb.ID)
	}
	if len(fb.Subscriptions) != 1 || fb.Subscriptions[0] != "*" {
		t.Errorf("fallback subscriptions = %v, want [*]", fb.Subscriptions)
	}
	if len(r.Custom()) != 0 {
		t.Errorf("fresh registry should have no custom hats")
	}
}

func TestRegistryAddNormalizesName(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(Hat{Name: "Code Builder", Subscriptions: []string{"build.*"}}); err != nil {
		t.Fatal(err)
	}
	h, ok := r.Get("code-builder")
	if !ok {
		t.Fatalf("normalized id not registered, all = %v", r.All())
	}
	if h.Name != "Code Builder" {
		t.Errorf("name = %q", h.Name)
	}
}

func TestRegistryRejectsInvalidHats(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		name string
		hat  Hat
	}{
		{"reserved id", Hat{ID: FallbackID, Subscriptions: []string{"*"}}},
		{"no id or name", Hat{Subscriptions: []string{"a.b"}}},
		{"no subscriptions", Hat{Name: "mute"}},
	}
	for _, c := range cases {
		if err := r.Add(c.hat); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}

	if err := r.Add(Hat{Name: "builder", Subscriptions: []string{"build.*"}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Hat{Name: "builder", Subscriptions: []string{"other.*"}}); err == nil {
		t.Error("duplicate id must be rejected")
	}
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"alpha", "beta"} {
		if err := r.Add(Hat{Name: name, Subscriptions: []string{"x.*"}}); err != nil {
			t.Fatal(err)
		}
	}
	all := r.All()
	if len(all) != 3 || all[0].ID != FallbackID || all[1].ID != "alpha" || all[2].ID != "beta" {
		t.Errorf("All() order = %v", all)
	}
	custom := r.Custom()
	if len(custom) != 2 || custom[0].ID != "alpha" {
		t.Errorf("Custom() = %v", custom)
	}
}
