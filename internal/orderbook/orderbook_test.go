package orderbook

import "testing"

func key(id uint64) OrderKey { return OrderKey{ID: id, FeedID: 1, Epoch: 1} }

func TestAddBestBidAsk(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 10})
	b.Add(Order{Key: key(2), Side: SideBid, Price: 999, Size: 5})
	b.Add(Order{Key: key(3), Side: SideAsk, Price: 1001, Size: 7})

	bid, ok := b.BestBid()
	if !ok || bid != 1000 {
		t.Fatalf("best bid = %v,%v want 1000,true", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != 1001 {
		t.Fatalf("best ask = %v,%v want 1001,true", ask, ok)
	}
	size, ok := b.BestBidSize()
	if !ok || size != 10 {
		t.Fatalf("best bid size = %v,%v want 10,true", size, ok)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestDeleteErasesEmptyLevel(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 10})
	if !b.Delete(key(1)) {
		t.Fatal("delete returned false")
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected empty book after delete")
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestUpdateSizeKeepsPriority(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 10})
	newSize := uint64(4)
	if !b.Update(key(1), nil, &newSize) {
		t.Fatal("update returned false")
	}
	size, _ := b.BestBidSize()
	if size != 4 {
		t.Fatalf("size = %d want 4", size)
	}
}

func TestUpdatePriceMovesToNewLevel(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 10})
	newPrice := int64(1005)
	if !b.Update(key(1), &newPrice, nil) {
		t.Fatal("update returned false")
	}
	bid, _ := b.BestBid()
	if bid != 1005 {
		t.Fatalf("best bid = %d want 1005", bid)
	}
	if _, ok := b.LevelSize(SideBid, 1000); ok {
		t.Fatal("old level should be erased")
	}
}

func TestTradeConsumesFrontToBack(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 5})
	b.Add(Order{Key: key(2), Side: SideBid, Price: 1000, Size: 5})

	consumed := b.Trade(1000, 7, AggressorSell)
	if consumed != 7 {
		t.Fatalf("consumed = %d want 7", consumed)
	}
	size, ok := b.LevelSize(SideBid, 1000)
	if !ok || size != 3 {
		t.Fatalf("remaining size = %v,%v want 3,true", size, ok)
	}
	if _, ok := b.locator[key(1)]; ok {
		t.Fatal("first order should be fully consumed and removed")
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestTradeInfersPassiveSideFromAggressorUnknown(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideAsk, Price: 1001, Size: 10})
	consumed := b.Trade(1001, 3, AggressorUnknown)
	if consumed != 3 {
		t.Fatalf("consumed = %d want 3", consumed)
	}
}

func TestForEachLevelOrdering(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 1})
	b.Add(Order{Key: key(2), Side: SideBid, Price: 1002, Size: 1})
	b.Add(Order{Key: key(3), Side: SideBid, Price: 1001, Size: 1})

	var prices []int64
	b.ForEachLevel(SideBid, 0, func(l AggLevel) { prices = append(prices, l.Price) })
	want := []int64{1002, 1001, 1000}
	if len(prices) != len(want) {
		t.Fatalf("got %v want %v", prices, want)
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Fatalf("got %v want %v", prices, want)
		}
	}
}

func TestLevelSummaryAggregatedOnly(t *testing.T) {
	b := New()
	b.LevelSummary(SideAsk, 1001, 50, 3)
	size, ok := b.LevelSize(SideAsk, 1001)
	if !ok || size != 50 {
		t.Fatalf("size = %v,%v want 50,true", size, ok)
	}
	b.LevelSummary(SideAsk, 1001, 0, 0)
	if _, ok := b.LevelSize(SideAsk, 1001); ok {
		t.Fatal("zero-size level summary should erase the level")
	}
}

func TestPriorityMovesToTail(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 5})
	b.Add(Order{Key: key(2), Side: SideBid, Price: 1000, Size: 5})
	b.Priority(key(1), 99)

	consumed := b.Trade(1000, 5, AggressorSell)
	if consumed != 5 {
		t.Fatalf("consumed = %d", consumed)
	}
	if _, ok := b.locator[key(2)]; ok {
		t.Fatal("key(2) should have traded first after key(1) lost priority")
	}
	if _, ok := b.locator[key(1)]; !ok {
		t.Fatal("key(1) should remain resting")
	}
}

func TestReAddSameKeyReplaces(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 5})
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1002, Size: 9})
	bid, _ := b.BestBid()
	if bid != 1002 {
		t.Fatalf("best bid = %d want 1002", bid)
	}
	size, _ := b.BestBidSize()
	if size != 9 {
		t.Fatalf("size = %d want 9", size)
	}
}

func TestCheckInvariantsCatchesCorruption(t *testing.T) {
	b := New()
	b.Add(Order{Key: key(1), Side: SideBid, Price: 1000, Size: 5})
	b.bidAgg[0].TotalSize = 999
	if err := b.CheckInvariants(); err == nil {
		t.Fatal("expected invariant violation to be detected")
	}
}
