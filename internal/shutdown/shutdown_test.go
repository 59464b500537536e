package shutdown

import (
	"errors"
	"testing"
)

func TestStopAllRunsInAscendingOrder(t *testing.T) {
	c := New(nil)
	var order []string
	c.Register("last", 30, func() error { order = append(order, "last"); return nil })
	c.Register("first", 10, func() error { order = append(order, "first"); return nil })
	c.Register("middle", 20, func() error { order = append(order, "middle"); return nil })

	c.StopAll()

	want := []string{"first", "middle", "last"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestStopAllIdempotent(t *testing.T) {
	c := New(nil)
	var runs int
	c.Register("step", 1, func() error { runs++; return nil })

	c.StopAll()
	c.StopAll()

	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	if !c.Stopped() {
		t.Fatal("expected Stopped() to be true after StopAll")
	}
}

func TestStopAllSurvivesPanicAndError(t *testing.T) {
	c := New(nil)
	var ranAfterPanic, ranAfterError bool
	c.Register("panics", 1, func() error { panic("boom") })
	c.Register("errors", 2, func() error { ranAfterError = true; return errors.New("fail") })
	c.Register("runs", 3, func() error { ranAfterPanic = true; return nil })

	c.StopAll() // must not panic out of the test

	if !ranAfterError || !ranAfterPanic {
		t.Fatal("expected later steps to still run after a panicking/erroring step")
	}
}

func TestRegisterAfterStopAllIsNoOp(t *testing.T) {
	c := New(nil)
	c.StopAll()

	var ran bool
	c.Register("late", 1, func() error { ran = true; return nil })
	c.StopAll()

	if ran {
		t.Fatal("step registered after StopAll must never run")
	}
}
