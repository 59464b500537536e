package session

import (
	"testing"

	"github.com/ndrandal/gma-go/internal/value"
)

type fakeNode struct {
	shutdowns *int
}

func (f *fakeNode) OnValue(value.SymbolValue) {}
func (f *fakeNode) Shutdown()                 { *f.shutdowns++ }

func TestRegisterReplacesAndShutsDownPrior(t *testing.T) {
	r := NewRequestRegistry()
	var firstShutdowns, secondShutdowns int

	r.Register("req-1", &fakeNode{shutdowns: &firstShutdowns})
	r.Register("req-1", &fakeNode{shutdowns: &secondShutdowns})

	if firstShutdowns != 1 {
		t.Fatalf("firstShutdowns = %d, want 1", firstShutdowns)
	}
	if secondShutdowns != 0 {
		t.Fatalf("secondShutdowns = %d, want 0", secondShutdowns)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestUnregister(t *testing.T) {
	r := NewRequestRegistry()
	var shutdowns int
	r.Register("req-1", &fakeNode{shutdowns: &shutdowns})

	if !r.Unregister("req-1") {
		t.Fatal("Unregister() = false, want true for a registered id")
	}
	if shutdowns != 1 {
		t.Fatalf("shutdowns = %d, want 1", shutdowns)
	}
	if r.Unregister("req-1") {
		t.Fatal("Unregister() = true, want false for an already-removed id")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestShutdownAll(t *testing.T) {
	r := NewRequestRegistry()
	var a, b int
	r.Register("req-a", &fakeNode{shutdowns: &a})
	r.Register("req-b", &fakeNode{shutdowns: &b})

	r.ShutdownAll()

	if a != 1 || b != 1 {
		t.Fatalf("a = %d, b = %d, want both 1", a, b)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after ShutdownAll", r.Len())
	}
}
