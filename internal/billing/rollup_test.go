package billing

import (
	"errors"
	"testing"
	"time"
)

func TestBuildRollupEmpty(t *testing.T) {
	_, err := BuildRollup("r1", "5.1", "CASH", nil, time.Now())
	if !errors.Is(err, ErrEmptyBill) {
		t.Fatalf("expected ErrEmptyBill, got %v", err)
	}
}

func TestBuildRollupCompleteness(t *testing.T) {
	now := time.Now()
	orders := []Order{
		testOrder("o1", "5.1", "9998887776", 165,
			OrderItem{ItemName: "Dosa", Quantity: 2, Price: 60},
			OrderItem{ItemName: "Chai", Quantity: 3, Price: 15},
		),
		testOrder("o2", "5.1", "9998887776", 40,
			OrderItem{ItemName: "Lassi", Quantity: 1, Price: 40},
		),
	}

	bill, err := BuildRollup("r1", "5.1", "UPI", orders, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bill.OriginalOrderIDs) != 2 {
		t.Fatalf("expected 2 source orders, got %d", len(bill.OriginalOrderIDs))
	}
	if bill.TotalAmount != 205 {
		t.Fatalf("expected total 205, got %v", bill.TotalAmount)
	}
	if len(bill.Items) != 3 {
		t.Fatalf("expected 3 flattened items, got %d", len(bill.Items))
	}
	if bill.Items[0].OrderID != "o1" || bill.Items[2].OrderID != "o2" {
		t.Fatalf("items must keep their source order id")
	}
	if bill.SessionCode == nil || *bill.SessionCode != "9998887776" {
		t.Fatalf("expected session code carried onto the bill")
	}
	if bill.PaymentMode != "UPI" {
		t.Fatalf("expected payment mode UPI, got %s", bill.PaymentMode)
	}
	if !bill.PrintedAt.Equal(now) {
		t.Fatalf("printed_at must be the checkout instant")
	}

	// Archived total equals the item-level recomputation.
	var recomputed float64
	for _, item := range bill.Items {
		recomputed += item.Price * float64(item.Quantity)
	}
	if recomputed != bill.TotalAmount {
		t.Fatalf("archived total %v != item recomputation %v", bill.TotalAmount, recomputed)
	}
}

// Two sessions split table "5": A gets 5.1, B gets 5.2, A's second order
// stays on 5.1, and checkout of 5.1 rolls up exactly A's orders.
func TestSplitBillScenario(t *testing.T) {
	claims := map[string]string{} // session code -> table bill id
	allocate := func(code string) string {
		if id, ok := claims[code]; ok {
			return id
		}
		held := make([]string, 0, len(claims))
		for _, id := range claims {
			held = append(held, id)
		}
		id := SplitTableID("5", NextSplitSuffix(UsedSuffixes("5", held)))
		claims[code] = id
		return id
	}

	a1 := testOrder("a1", allocate("9998887776"), "9998887776", 100)
	b1 := testOrder("b1", allocate("9998887777"), "9998887777", 50)
	a2 := testOrder("a2", allocate("9998887776"), "9998887776", 30)

	if *a1.TableID != "5.1" || *a2.TableID != "5.1" {
		t.Fatalf("session A must stick to 5.1, got %s and %s", *a1.TableID, *a2.TableID)
	}
	if *b1.TableID != "5.2" {
		t.Fatalf("session B expected 5.2, got %s", *b1.TableID)
	}

	all := []Order{a1, b1, a2}
	var onBill []Order
	for _, o := range all {
		if o.TableID != nil && *o.TableID == "5.1" {
			onBill = append(onBill, o)
		}
	}

	bill, err := BuildRollup("r1", "5.1", "CASH", onBill, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bill.OriginalOrderIDs) != 2 || bill.TotalAmount != 130 {
		t.Fatalf("checkout of 5.1 must cover exactly session A's orders: %+v", bill)
	}
	for _, id := range bill.OriginalOrderIDs {
		if id == "b1" {
			t.Fatalf("5.2 order leaked into the 5.1 bill")
		}
	}
}
