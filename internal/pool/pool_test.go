package pool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPostAndDrain(t *testing.T) {
	p := New(4, nil)
	defer p.Shutdown()

	var n int64
	for i := 0; i < 100; i++ {
		p.Post(func() { atomic.AddInt64(&n, 1) })
	}
	p.Drain()
	if got := atomic.LoadInt64(&n); got != 100 {
		t.Fatalf("n = %d, want 100", got)
	}
}

func TestPanicSwallowed(t *testing.T) {
	var caught atomic.Bool
	p := New(2, func(r any) { caught.Store(true) })
	defer p.Shutdown()

	p.Post(func() { panic("boom") })
	p.Drain()

	if !caught.Load() {
		t.Fatal("expected panic to be caught by error handler")
	}

	var ran atomic.Bool
	p.Post(func() { ran.Store(true) })
	p.Drain()
	if !ran.Load() {
		t.Fatal("pool should keep running workers after a panicking task")
	}
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(2, nil)
	p.Shutdown()
	p.Shutdown() // must not hang or panic

	var ran atomic.Bool
	p.Post(func() { ran.Store(true) })
	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Fatal("post after shutdown must be a no-op")
	}
}

func TestDrainConcurrentWithPost(t *testing.T) {
	p := New(4, nil)
	defer p.Shutdown()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			p.Post(func() { time.Sleep(time.Millisecond) })
		}
		close(done)
	}()
	<-done
	p.Drain()
}
