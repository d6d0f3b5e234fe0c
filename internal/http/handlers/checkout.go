package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletab-order-services/internal/billing"
	"tabletab-order-services/internal/config"
	"tabletab-order-services/internal/middleware"
	"tabletab-order-services/internal/queue"
	"tabletab-order-services/internal/receipt"
	"tabletab-order-services/internal/utils"
	"tabletab-order-services/pkg/response"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

type checkoutRequest struct {
	RestaurantID string `json:"restaurantId"`
	TableBillID  string `json:"tableBillId"`
	PaymentMode  string `json:"paymentMode"`
}

// PublicCheckout rolls every order under one table-bill identifier into a
// single immutable archived bill. The archive insert, the retention action
// and the claim release commit together; on any failure the source orders
// stay as they were and the checkout can simply be retried.
func (h *Handler) PublicCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	restaurantID := strings.TrimSpace(body.RestaurantID)
	tableBillID := strings.TrimSpace(body.TableBillID)
	if restaurantID == "" || tableBillID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID and table bill ID are required")
		return
	}
	paymentMode := strings.ToUpper(strings.TrimSpace(body.PaymentMode))
	if paymentMode == "" {
		paymentMode = "CASH"
	}

	// Exact match only: checking out "5.1" must never absorb "5" or "5.2".
	orders, err := queryOrders(ctx, h.DB, `
		select `+orderColumns+`
		from orders o
		where o.restaurant_id = $1 and o.table_id = $2 and o.settled_at is null
		order by o.created_at
	`, restaurantID, tableBillID)
	if err != nil {
		h.Logger.Error("checkout fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to load orders for checkout")
		return
	}

	now := time.Now()
	bill, err := billing.BuildRollup(restaurantID, tableBillID, paymentMode, orders, now)
	if err != nil {
		if err == billing.ErrEmptyBill {
			response.Error(w, http.StatusNotFound, "EMPTY_BILL", "No orders to check out for this table bill")
			return
		}
		h.Logger.Error("rollup build failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to build bill")
		return
	}
	bill.ID = uuid.NewString()

	itemsJSON, err := json.Marshal(bill.Items)
	if err != nil {
		h.Logger.Error("bill items encode failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to build bill")
		return
	}

	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("checkout tx begin failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		insert into analytics_orders
			(id, original_order_ids, restaurant_id, table_id, session_code, user_name,
			 total_amount, items, payment_mode, created_at, printed_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, bill.ID, bill.OriginalOrderIDs, bill.RestaurantID, bill.TableID, bill.SessionCode,
		bill.UserName, bill.TotalAmount, itemsJSON, bill.PaymentMode, bill.CreatedAt, bill.PrintedAt); err != nil {
		h.Logger.Error("archived bill insert failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
		return
	}

	switch h.Config.CheckoutRetention {
	case config.RetentionFlag:
		if _, err := tx.Exec(ctx, `
			update orders set settled_at = $1
			where restaurant_id = $2 and table_id = $3 and settled_at is null
		`, now, restaurantID, tableBillID); err != nil {
			h.Logger.Error("retention flag failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
			return
		}
	case config.RetentionDelete:
		if _, err := tx.Exec(ctx, `
			delete from orders where restaurant_id = $1 and table_id = $2 and settled_at is null
		`, restaurantID, tableBillID); err != nil {
			h.Logger.Error("retention delete failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
			return
		}
	}

	if _, err := tx.Exec(ctx, `
		delete from table_bill_claims where restaurant_id = $1 and table_id = $2
	`, restaurantID, tableBillID); err != nil {
		h.Logger.Error("claim release failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("checkout tx commit failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Checkout failed, please retry")
		return
	}

	// The bill exists now; everything past this point is best-effort.
	if h.Store != nil {
		if url := h.archiveReceipt(ctx, bill); url != "" {
			bill.ReceiptURL = &url
		}
	}

	h.notifyTableUpdate(ctx, restaurantID, baseTableID(tableBillID))
	if bill.SessionCode != nil {
		h.notifySessionUpdate(ctx, restaurantID, *bill.SessionCode)
	}
	event := queue.BillingEvent{
		Type:         queue.RoutingKeyCheckedOut,
		RestaurantID: restaurantID,
		TableID:      tableBillID,
		BillID:       bill.ID,
		TotalAmount:  bill.TotalAmount,
		PaymentMode:  bill.PaymentMode,
	}
	if bill.SessionCode != nil {
		event.SessionCode = *bill.SessionCode
	}
	h.publishEvent(ctx, queue.RoutingKeyCheckedOut, event)

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    bill,
		"message": "Bill checked out",
	})
}

func (h *Handler) archiveReceipt(ctx context.Context, bill billing.ArchivedBill) string {
	pdfBytes, err := receipt.Render(bill, "")
	if err != nil {
		h.Logger.Warn("receipt render failed", zap.String("billId", bill.ID), zapError(err))
		return ""
	}
	key := fmt.Sprintf("receipts/%s/%s.pdf", bill.RestaurantID, bill.ID)
	url, err := h.Store.PutReceipt(ctx, key, pdfBytes)
	if err != nil {
		h.Logger.Warn("receipt upload failed", zap.String("billId", bill.ID), zapError(err))
		return ""
	}
	if _, err := h.DB.Exec(ctx, `update analytics_orders set receipt_url = $1 where id = $2`, url, bill.ID); err != nil {
		h.Logger.Warn("receipt url update failed", zap.String("billId", bill.ID), zapError(err))
	}
	return url
}

func (h *Handler) fetchArchivedBill(ctx context.Context, billID string) (billing.ArchivedBill, bool, error) {
	var (
		bill        billing.ArchivedBill
		sessionCode pgtype.Text
		userName    pgtype.Text
		receiptURL  pgtype.Text
		total       pgtype.Numeric
		itemsJSON   []byte
	)
	err := h.DB.QueryRow(ctx, `
		select id::text, original_order_ids::text[], restaurant_id::text, table_id, session_code,
		       user_name, total_amount, items, payment_mode, receipt_url, created_at, printed_at
		from analytics_orders
		where id = $1
	`, billID).Scan(
		&bill.ID, &bill.OriginalOrderIDs, &bill.RestaurantID, &bill.TableID, &sessionCode,
		&userName, &total, &itemsJSON, &bill.PaymentMode, &receiptURL, &bill.CreatedAt, &bill.PrintedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return billing.ArchivedBill{}, false, nil
		}
		return billing.ArchivedBill{}, false, err
	}

	bill.SessionCode = textPtr(sessionCode)
	bill.UserName = textPtr(userName)
	bill.ReceiptURL = textPtr(receiptURL)
	bill.TotalAmount = utils.NumericToFloat64(total)
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &bill.Items); err != nil {
			return billing.ArchivedBill{}, false, err
		}
	}
	return bill, true, nil
}

func (h *Handler) PublicBillGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	billID := readPathString(r, "billId")

	bill, found, err := h.fetchArchivedBill(ctx, billID)
	if err != nil {
		h.Logger.Error("bill fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch bill")
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, "EMPTY_BILL", "Bill not found")
		return
	}
	response.Success(w, bill)
}

func (h *Handler) PublicBillReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	billID := readPathString(r, "billId")

	bill, found, err := h.fetchArchivedBill(ctx, billID)
	if err != nil {
		h.Logger.Error("bill fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch bill")
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, "EMPTY_BILL", "Bill not found")
		return
	}

	pdfBytes, err := receipt.Render(bill, readQueryString(r, "restaurantName"))
	if err != nil {
		h.Logger.Error("receipt render failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to render receipt")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=receipt-%s.pdf", bill.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}

func (h *Handler) StaffBillsList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
		return
	}

	rows, err := h.DB.Query(ctx, `
		select id::text, table_id, session_code, total_amount, payment_mode, receipt_url, printed_at
		from analytics_orders
		where restaurant_id = $1
		order by printed_at desc
		limit 100
	`, authCtx.RestaurantID)
	if err != nil {
		h.Logger.Error("bills list failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch bills")
		return
	}
	defer rows.Close()

	bills := []map[string]any{}
	for rows.Next() {
		var (
			id          string
			tableID     string
			sessionCode pgtype.Text
			total       pgtype.Numeric
			paymentMode string
			receiptURL  pgtype.Text
			printedAt   time.Time
		)
		if err := rows.Scan(&id, &tableID, &sessionCode, &total, &paymentMode, &receiptURL, &printedAt); err != nil {
			h.Logger.Error("bills scan failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch bills")
			return
		}
		bills = append(bills, map[string]any{
			"id":          id,
			"tableBillId": tableID,
			"sessionCode": textPtr(sessionCode),
			"totalAmount": utils.NumericToFloat64(total),
			"paymentMode": paymentMode,
			"receiptUrl":  textPtr(receiptURL),
			"printedAt":   printedAt,
		})
	}

	response.Success(w, map[string]any{"bills": bills})
}
