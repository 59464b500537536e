package session

import (
	"testing"
	"time"
)

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	b := newTokenBucket(3, 0)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("Allow() returned false on request %d, want true", i)
		}
	}
	if b.Allow() {
		t.Fatal("Allow() returned true after capacity exhausted with zero refill")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	b := newTokenBucket(1, 1000) // refills ~1 token/ms
	if !b.Allow() {
		t.Fatal("expected initial token to be available")
	}
	if b.Allow() {
		t.Fatal("expected bucket to be empty immediately after consuming its only token")
	}
	time.Sleep(5 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected a token to have refilled after waiting")
	}
}
