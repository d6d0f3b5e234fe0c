package receipt

import (
	"bytes"
	"testing"
	"time"

	"tabletab-order-services/internal/billing"
)

func TestRenderProducesPDF(t *testing.T) {
	code := "9998887776"
	bill := billing.ArchivedBill{
		ID:               "bill-1",
		OriginalOrderIDs: []string{"o1", "o2"},
		RestaurantID:     "r1",
		TableID:          "5.1",
		SessionCode:      &code,
		TotalAmount:      205,
		PaymentMode:      "CASH",
		PrintedAt:        time.Now(),
		Items: []billing.ArchivedItem{
			{OrderID: "o1", ItemName: "Dosa", Quantity: 2, Price: 60},
			{OrderID: "o2", ItemName: "Lassi", Quantity: 1, Price: 40},
		},
	}

	out, err := Render(bill, "Spice Route")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("expected a PDF document")
	}
	if len(out) < 500 {
		t.Fatalf("suspiciously small receipt: %d bytes", len(out))
	}
}
