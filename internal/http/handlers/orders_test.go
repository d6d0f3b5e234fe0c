package handlers

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// The realtime server calls this without a Handler, so it must stand on its
// own against any Querier.
func TestFetchTableOrdersPayloadEmptyTable(t *testing.T) {
	_, mock := newSessionTestHandler(t)

	mock.ExpectQuery(`(?s)from orders o\s+where o\.restaurant_id = \$1\s+and \(o\.table_id = \$2 or o\.table_id like \$3\)\s+and o\.settled_at is null`).
		WithArgs(testRestaurantID, "5", "5.%").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "restaurant_id", "table_id", "device_id", "session_code",
			"status", "total_amount", "user_name", "settled_at", "created_at",
		}))

	payload, err := FetchTableOrdersPayload(context.Background(), mock, testRestaurantID, "5.2")
	if err != nil {
		t.Fatalf("FetchTableOrdersPayload: %v", err)
	}
	// Split-bill suffixes collapse onto the physical table.
	if payload["tableId"] != "5" {
		t.Errorf("tableId = %v, want 5", payload["tableId"])
	}
	if total, _ := payload["total"].(float64); total != 0 {
		t.Errorf("total = %v, want 0", payload["total"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
