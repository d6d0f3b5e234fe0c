package billing

import (
	"testing"
	"time"
)

func strPtr(v string) *string { return &v }

func testOrder(id, table, code string, total float64, items ...OrderItem) Order {
	o := Order{
		ID:          id,
		TotalAmount: total,
		Status:      StatusPlaced,
		CreatedAt:   time.Now(),
		Items:       items,
	}
	if table != "" {
		o.TableID = strPtr(table)
	}
	if code != "" {
		o.SessionCode = strPtr(code)
	}
	return o
}

func TestGroupByTable(t *testing.T) {
	orders := []Order{
		testOrder("a", "5.1", "111222", 10),
		testOrder("b", "5.1", "111222", 5),
		testOrder("c", "5.2", "333444", 7),
		testOrder("d", "6", "", 3),
	}

	groups := GroupByTable(orders)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if len(groups["5.1"]) != 2 {
		t.Fatalf("expected 2 orders under 5.1, got %d", len(groups["5.1"]))
	}
	if len(groups["5.2"]) != 1 || len(groups["6"]) != 1 {
		t.Fatalf("unexpected grouping: %v", groups)
	}
}

func TestGroupBySessionFallsBackToTable(t *testing.T) {
	orders := []Order{
		testOrder("a", "5.1", "9998887776", 10),
		testOrder("b", "5.1", "9998887776", 5),
		testOrder("c", "5", "", 7),
	}

	groups := GroupBySession(orders)
	if len(groups["9998887776"]) != 2 {
		t.Fatalf("expected 2 orders in the session group, got %d", len(groups["9998887776"]))
	}
	if len(groups["5"]) != 1 {
		t.Fatalf("expected anonymous order grouped under its table id")
	}
}

func TestTotalsMatchItems(t *testing.T) {
	items := []OrderItem{
		{ItemName: "Dosa", Quantity: 2, Price: 60},
		{ItemName: "Chai", Quantity: 3, Price: 15},
	}
	total := ItemsTotal(items)
	if total != 165 {
		t.Fatalf("expected 165, got %v", total)
	}

	orders := []Order{
		testOrder("a", "5.1", "x", total, items...),
		testOrder("b", "5.1", "x", 40, OrderItem{ItemName: "Lassi", Quantity: 1, Price: 40}),
	}
	if got := Total(orders); got != 205 {
		t.Fatalf("expected grand total 205, got %v", got)
	}
	if got := ItemCount(orders); got != 6 {
		t.Fatalf("expected 6 items, got %d", got)
	}
}
