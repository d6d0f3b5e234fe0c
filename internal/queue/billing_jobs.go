package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	EventsExchange   = "tabletab.events"
	EventsQueue      = "tabletab.notifications"
	EventsRoutingKey = "bill.#"
	JobsQueue        = "tabletab.notification_jobs"

	RoutingKeyOrderPlaced        = "bill.order.placed"
	RoutingKeyOrderStatusUpdated = "bill.order.status_updated"
	RoutingKeyCheckedOut         = "bill.checked_out"
)

// BillingEvent is what handlers publish onto the events exchange.
type BillingEvent struct {
	Type         string  `json:"type"`
	RestaurantID string  `json:"restaurantId"`
	TableID      string  `json:"tableId,omitempty"`
	SessionCode  string  `json:"sessionCode,omitempty"`
	OrderID      string  `json:"orderId,omitempty"`
	BillID       string  `json:"billId,omitempty"`
	Status       string  `json:"status,omitempty"`
	TotalAmount  float64 `json:"totalAmount,omitempty"`
	PaymentMode  string  `json:"paymentMode,omitempty"`
}

// NotificationJob is the unit of work handed to the external gateways: the
// SMS sender (bill link to the session owner's number) and the receipt
// printer bridge. Their own protocols are out of scope here.
type NotificationJob struct {
	Type        string  `json:"type"` // bill_link_sms | receipt_print
	BillID      string  `json:"billId"`
	Recipient   string  `json:"recipient,omitempty"`
	TableID     string  `json:"tableId,omitempty"`
	TotalAmount float64 `json:"totalAmount,omitempty"`
	ReceiptURL  string  `json:"receiptUrl,omitempty"`
}

func EnsureBillingTopology(ctx context.Context, c *Client) error {
	if err := c.EnsureExchange(EventsExchange); err != nil {
		return err
	}
	if _, err := c.EnsureQueue(EventsQueue); err != nil {
		return err
	}
	if err := c.BindQueue(EventsQueue, EventsExchange, EventsRoutingKey); err != nil {
		return err
	}
	_, err := c.EnsureQueue(JobsQueue)
	return err
}

// ProcessEventToJobs translates billing events into gateway jobs. Only
// checkout events fan out; order placement and status changes are covered by
// the websocket push and need no gateway work.
func ProcessEventToJobs(ctx context.Context, pool *pgxpool.Pool, c *Client, body []byte) error {
	var event BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode billing event: %w", err)
	}

	if event.Type != RoutingKeyCheckedOut || strings.TrimSpace(event.BillID) == "" {
		return nil
	}

	var (
		sessionCode *string
		tableID     string
		totalAmount float64
		receiptURL  *string
	)
	err := pool.QueryRow(ctx, `
		select session_code, table_id, total_amount, receipt_url
		from analytics_orders where id = $1
	`, event.BillID).Scan(&sessionCode, &tableID, &totalAmount, &receiptURL)
	if err != nil {
		return fmt.Errorf("load archived bill %s: %w", event.BillID, err)
	}

	jobs := make([]NotificationJob, 0, 2)
	if sessionCode != nil && *sessionCode != "" {
		// The session code is the owner's contact identifier; it doubles
		// as the SMS recipient.
		jobs = append(jobs, NotificationJob{
			Type:        "bill_link_sms",
			BillID:      event.BillID,
			Recipient:   *sessionCode,
			TotalAmount: totalAmount,
			ReceiptURL:  deref(receiptURL),
		})
	}
	jobs = append(jobs, NotificationJob{
		Type:        "receipt_print",
		BillID:      event.BillID,
		TableID:     tableID,
		TotalAmount: totalAmount,
		ReceiptURL:  deref(receiptURL),
	})

	for _, job := range jobs {
		if err := c.PublishJSON(ctx, "", JobsQueue, job); err != nil {
			return fmt.Errorf("publish %s job: %w", job.Type, err)
		}
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
