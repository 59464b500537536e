package obmanager

import (
	"testing"

	"github.com/ndrandal/gma-go/internal/orderbook"
)

func k(id uint64) orderbook.OrderKey { return orderbook.OrderKey{ID: id, FeedID: 1, Epoch: 1} }

func TestOnAddValidatesPrice(t *testing.T) {
	m := New(0)
	if m.OnAdd("AAPL", 1, k(1), orderbook.SideBid, 100.00003, 10, 1) {
		t.Fatal("expected malformed price to be rejected")
	}
	if m.MetricsSnapshot().Malformed != 1 {
		t.Fatal("expected malformed counter to increment")
	}
	if !m.OnAdd("AAPL", 2, k(2), orderbook.SideBid, 100.0, 10, 1) {
		t.Fatal("expected valid price to be accepted")
	}
}

func TestSequenceGapMarksStale(t *testing.T) {
	m := New(0)
	if !m.OnSeq("AAPL", 1) {
		t.Fatal("first seq should be accepted")
	}
	if !m.OnSeq("AAPL", 2) {
		t.Fatal("sequential seq should be accepted")
	}
	if m.OnSeq("AAPL", 5) {
		t.Fatal("gapped seq should be rejected")
	}
	if !m.IsStale("AAPL") {
		t.Fatal("expected symbol to be marked stale after gap")
	}
}

func TestStaleDropsMutations(t *testing.T) {
	m := New(0)
	m.OnSeq("AAPL", 1)
	m.OnSeq("AAPL", 5) // creates a gap, marks stale

	if m.OnAdd("AAPL", 6, k(1), orderbook.SideBid, 100.0, 10, 1) {
		t.Fatal("expected add to be dropped while stale")
	}
	if m.MetricsSnapshot().StaleDrops == 0 {
		t.Fatal("expected a stale-drop to be counted")
	}

	snapSeq := uint64(6)
	m.OnSnapshotAggregated("AAPL", orderbook.SideBid, nil, &snapSeq)
	if m.IsStale("AAPL") {
		t.Fatal("expected snapshot to clear staleness")
	}
	if !m.OnAdd("AAPL", 7, k(2), orderbook.SideBid, 100.0, 10, 1) {
		t.Fatal("expected add to succeed once stale cleared")
	}
}

func TestDeltaPublishedOnNewBestBid(t *testing.T) {
	m := New(0)
	var deltas []BookDelta
	m.Subscribe(func(d BookDelta) { deltas = append(deltas, d) })

	m.OnAdd("AAPL", 1, k(1), orderbook.SideBid, 100.0, 10, 1)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 delta, got %d", len(deltas))
	}
	if deltas[0].Bid == nil || deltas[0].Bid.Price != m.ToTicks("AAPL", 100.0) {
		t.Fatalf("expected bid delta at new TOB, got %+v", deltas[0])
	}
}

func TestVenueKeyResolverRoundTrip(t *testing.T) {
	m := New(0)
	if !m.OnAddWithVenueKey("AAPL", 1, "venue-123", k(1), orderbook.SideBid, 100.0, 10, 1) {
		t.Fatal("expected add-with-venue-key to succeed")
	}
	newSize := uint64(5)
	if !m.OnUpdateByVenueKey("AAPL", 2, "venue-123", nil, &newSize) {
		t.Fatal("expected update-by-venue-key to resolve and apply")
	}
	size, ok := m.Book("AAPL").LevelSize(orderbook.SideBid, m.ToTicks("AAPL", 100.0))
	if !ok || size != 5 {
		t.Fatalf("size = %v,%v want 5,true", size, ok)
	}
	if !m.OnDeleteByVenueKey("AAPL", 3, "venue-123") {
		t.Fatal("expected delete-by-venue-key to resolve and apply")
	}
	if m.OnDeleteByVenueKey("AAPL", 4, "venue-123") {
		t.Fatal("expected second delete-by-venue-key to fail, mapping forgotten")
	}
}

func TestOnResetClearsAndMarksStale(t *testing.T) {
	m := New(0)
	m.OnSeq("AAPL", 1)
	m.OnReset("AAPL", 2)
	if !m.IsStale("AAPL") {
		t.Fatal("expected reset to mark stale")
	}
	if !m.OnSeq("AAPL", 500) {
		t.Fatal("expected first seq after reset to be accepted regardless of value")
	}
}
