package history

import "testing"

func TestPushEvictsOldest(t *testing.T) {
	s := New(3)
	for i := 1; i <= 5; i++ {
		s.Push("AAPL", TickEntry{Price: float64(i), Volume: 1})
	}
	got := s.Copy("AAPL")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Price != 3 || got[2].Price != 5 {
		t.Fatalf("got %v, want oldest=3 newest=5", got)
	}
}

func TestCopyIsSnapshot(t *testing.T) {
	s := New(10)
	s.Push("AAPL", TickEntry{Price: 1})
	snap := s.Copy("AAPL")
	s.Push("AAPL", TickEntry{Price: 2})
	if len(snap) != 1 {
		t.Fatal("snapshot should not observe later pushes")
	}
}

func TestFieldStorePushAndCopy(t *testing.T) {
	fs := NewFieldStore(3)
	for i := 1.0; i <= 5; i++ {
		fs.PushAndCopy("AAPL", "px", i)
	}
	got := fs.PushAndCopy("AAPL", "px", 6)
	if len(got) != 3 || got[0] != 4 || got[2] != 6 {
		t.Fatalf("got %v, want [4 5 6]", got)
	}
}
