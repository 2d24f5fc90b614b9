package symbol

import "testing"

func TestInternRoundTrip(t *testing.T) {
	r := NewRegistry()
	for _, s := range []string{"foo", "bar", "foo", "__add", "newone"} {
		sym := r.Intern(s)
		if got := r.RCStr(sym.ID()); got != s {
			t.Fatalf("RCStr(Intern(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestInternIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.Intern("hello")
	b := r.Intern("hello")
	if a.ID() != b.ID() {
		t.Fatalf("Intern not idempotent: %d != %d", a.ID(), b.ID())
	}
}

func TestKnownSymbolsPreloaded(t *testing.T) {
	r := NewRegistry()
	self := r.Known(KnownSelf)
	if self.String() != "self" {
		t.Fatalf("KnownSelf = %q, want self", self.String())
	}
	if r.Intern("self").ID() != self.ID() {
		t.Fatalf("interning a preloaded name should reuse its known id")
	}
}

func TestSymbolOrderingByString(t *testing.T) {
	r := NewRegistry()
	a := r.Intern("zzz")
	b := r.Intern("aaa")
	if !b.Less(a) {
		t.Fatalf("expected aaa < zzz lexicographically")
	}
}
