package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tabletab-order-services/internal/billing"
	"tabletab-order-services/internal/device"
	"tabletab-order-services/internal/middleware"
	"tabletab-order-services/internal/queue"
	"tabletab-order-services/internal/utils"
	"tabletab-order-services/pkg/response"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type orderItemRequest struct {
	ItemID      *string `json:"itemId"`
	ItemName    string  `json:"itemName"`
	Quantity    int32   `json:"quantity"`
	Price       float64 `json:"price"`
	VariantName *string `json:"variantName"`
}

type orderCreateRequest struct {
	RestaurantID string             `json:"restaurantId"`
	TableID      string             `json:"tableId"`
	DeviceID     *string            `json:"deviceId"`
	SessionCode  *string            `json:"sessionCode"`
	UserName     *string            `json:"userName"`
	Items        []orderItemRequest `json:"items"`
}

const orderColumns = `
	o.id::text, o.restaurant_id::text, o.table_id, o.device_id, o.session_code,
	o.status, o.total_amount, o.user_name, o.settled_at, o.created_at`

func scanOrderRow(row pgx.Row) (billing.Order, error) {
	var (
		o           billing.Order
		tableID     pgtype.Text
		sessionCode pgtype.Text
		userName    pgtype.Text
		settledAt   pgtype.Timestamptz
		total       pgtype.Numeric
	)
	err := row.Scan(
		&o.ID, &o.RestaurantID, &tableID, &o.DeviceID, &sessionCode,
		&o.Status, &total, &userName, &settledAt, &o.CreatedAt,
	)
	if err != nil {
		return billing.Order{}, err
	}
	o.TableID = textPtr(tableID)
	o.SessionCode = textPtr(sessionCode)
	o.UserName = textPtr(userName)
	o.SettledAt = timePtr(settledAt)
	o.TotalAmount = utils.NumericToFloat64(total)
	return o, nil
}

func queryOrders(ctx context.Context, db Querier, query string, args ...any) ([]billing.Order, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []billing.Order{}
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachOrderItems(ctx, db, orders)
}

func attachOrderItems(ctx context.Context, db Querier, orders []billing.Order) ([]billing.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := db.Query(ctx, `
		select id::text, order_id::text, item_id, item_name, quantity, price, variant_name
		from order_items
		where order_id = any($1)
		order by id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    billing.OrderItem
			itemID  pgtype.Text
			variant pgtype.Text
			price   pgtype.Numeric
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &itemID, &item.ItemName, &item.Quantity, &price, &variant); err != nil {
			return nil, err
		}
		item.ItemID = textPtr(itemID)
		item.VariantName = textPtr(variant)
		item.Price = utils.NumericToFloat64(price)
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return orders, rows.Err()
}

// fetchLatestSessionByCode returns the newest session row for a code whether
// or not it is still live, so callers can tell "never existed" from "lapsed".
func (h *Handler) fetchLatestSessionByCode(ctx context.Context, restaurantID, code string) (billing.Session, bool, error) {
	var s billing.Session
	err := h.DB.QueryRow(ctx, `
		select id::text, code, restaurant_id::text, table_id, device_id, is_active, created_at, expires_at
		from bill_sessions
		where restaurant_id = $1 and code = $2
		order by created_at desc
		limit 1
	`, restaurantID, code).Scan(
		&s.ID, &s.Code, &s.RestaurantID, &s.TableID, &s.DeviceID,
		&s.IsActive, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if isNoRows(err) {
			return billing.Session{}, false, nil
		}
		return billing.Session{}, false, err
	}
	return s, true, nil
}

// allocateTableBillID resolves the split-bill identifier for an order placed
// under a session. Stickiness first, then first-fit over the claim rows for
// the base table; the claim primary key arbitrates concurrent first orders
// and losers recompute.
func (h *Handler) allocateTableBillID(ctx context.Context, restaurantID, baseTable, sessionCode string) (string, error) {
	var existing string
	err := h.DB.QueryRow(ctx, `
		select table_id from table_bill_claims
		where restaurant_id = $1 and session_code = $2
		limit 1
	`, restaurantID, sessionCode).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !isNoRows(err) {
		return "", err
	}

	for attempt := 0; attempt < h.Config.AllocationMaxAttempts; attempt++ {
		rows, err := h.DB.Query(ctx, `
			select table_id from table_bill_claims
			where restaurant_id = $1 and table_id like $2
		`, restaurantID, baseTable+".%")
		if err != nil {
			return "", err
		}
		claimed := []string{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return "", err
			}
			claimed = append(claimed, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return "", err
		}

		k := billing.NextSplitSuffix(billing.UsedSuffixes(baseTable, claimed))
		candidate := billing.SplitTableID(baseTable, k)

		tag, err := h.DB.Exec(ctx, `
			insert into table_bill_claims (restaurant_id, table_id, session_code, created_at)
			values ($1, $2, $3, now())
			on conflict (restaurant_id, table_id) do nothing
		`, restaurantID, candidate, sessionCode)
		if err != nil {
			return "", err
		}
		if tag.RowsAffected() == 1 {
			return candidate, nil
		}
		// Lost the slot to a concurrent first order. The winner may even be
		// this session on another device, so re-check stickiness.
		if err := h.DB.QueryRow(ctx, `
			select table_id from table_bill_claims
			where restaurant_id = $1 and session_code = $2
			limit 1
		`, restaurantID, sessionCode).Scan(&existing); err == nil {
			return existing, nil
		} else if !isNoRows(err) {
			return "", err
		}
	}
	return "", billing.ErrAllocationConflict
}

func (h *Handler) PublicOrderCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body orderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	restaurantID := strings.TrimSpace(body.RestaurantID)
	if restaurantID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID is required")
		return
	}
	baseTable := strings.TrimSpace(body.TableID)
	if err := billing.ValidateTableID(baseTable); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "A valid table ID is required")
		return
	}
	if len(body.Items) == 0 {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "At least one item is required")
		return
	}
	items := make([]billing.OrderItem, 0, len(body.Items))
	for _, it := range body.Items {
		if strings.TrimSpace(it.ItemName) == "" || it.Quantity < 1 || it.Price < 0 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Each item needs a name, a positive quantity and a non-negative price")
			return
		}
		items = append(items, billing.OrderItem{
			ItemID:      it.ItemID,
			ItemName:    strings.TrimSpace(it.ItemName),
			Quantity:    it.Quantity,
			Price:       it.Price,
			VariantName: it.VariantName,
		})
	}

	deviceID := device.OrNew(body.DeviceID)
	tableBillID := baseTable
	var sessionCode *string

	if body.SessionCode != nil && billing.NormalizeCode(*body.SessionCode) != "" {
		code := billing.NormalizeCode(*body.SessionCode)
		session, found, err := h.fetchLatestSessionByCode(ctx, restaurantID, code)
		if err != nil {
			h.Logger.Error("order session lookup failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to look up bill session")
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No bill session for this code")
			return
		}
		if session.IsExpired(time.Now()) {
			response.Error(w, http.StatusGone, "SESSION_EXPIRED", "This bill session has expired. Start a new one to keep ordering.")
			return
		}

		allocated, err := h.allocateTableBillID(ctx, restaurantID, baseTable, code)
		if err != nil {
			if err == billing.ErrAllocationConflict {
				response.Error(w, http.StatusConflict, "ALLOCATION_CONFLICT", "Could not reserve a table bill, please retry")
				return
			}
			h.Logger.Error("table bill allocation failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to allocate table bill")
			return
		}
		tableBillID = allocated
		sessionCode = &code
	}

	order := billing.Order{
		ID:           uuid.NewString(),
		RestaurantID: restaurantID,
		TableID:      &tableBillID,
		DeviceID:     deviceID,
		SessionCode:  sessionCode,
		Status:       billing.StatusPlaced,
		TotalAmount:  billing.ItemsTotal(items),
		UserName:     body.UserName,
		CreatedAt:    time.Now(),
	}

	tx, err := h.DB.Begin(ctx)
	if err != nil {
		h.Logger.Error("order tx begin failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to place order")
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		insert into orders (id, restaurant_id, table_id, device_id, session_code, status, total_amount, user_name, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.RestaurantID, order.TableID, order.DeviceID, order.SessionCode,
		order.Status, order.TotalAmount, order.UserName, order.CreatedAt); err != nil {
		h.Logger.Error("order insert failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to place order")
		return
	}

	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].OrderID = order.ID
		if _, err := tx.Exec(ctx, `
			insert into order_items (id, order_id, restaurant_id, item_id, item_name, quantity, price, variant_name)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, items[i].ID, order.ID, restaurantID, items[i].ItemID, items[i].ItemName,
			items[i].Quantity, items[i].Price, items[i].VariantName); err != nil {
			h.Logger.Error("order item insert failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to place order")
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		h.Logger.Error("order tx commit failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to place order")
		return
	}
	order.Items = items

	h.notifyTableUpdate(ctx, restaurantID, baseTable)
	if sessionCode != nil {
		h.notifySessionUpdate(ctx, restaurantID, *sessionCode)
	}
	event := queue.BillingEvent{
		Type:         queue.RoutingKeyOrderPlaced,
		RestaurantID: restaurantID,
		TableID:      tableBillID,
		OrderID:      order.ID,
		TotalAmount:  order.TotalAmount,
	}
	if sessionCode != nil {
		event.SessionCode = *sessionCode
	}
	h.publishEvent(ctx, queue.RoutingKeyOrderPlaced, event)

	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    order,
		"message": "Order placed",
	})
}

// FetchTableOrdersPayload builds the live table view: every unsettled order on
// the base table or one of its split bills, grouped per session. The realtime
// server reuses it verbatim for snapshots.
func FetchTableOrdersPayload(ctx context.Context, db Querier, restaurantID, tableID string) (map[string]any, error) {
	base := baseTableID(tableID)
	orders, err := queryOrders(ctx, db, `
		select `+orderColumns+`
		from orders o
		where o.restaurant_id = $1
		  and (o.table_id = $2 or o.table_id like $3)
		  and o.settled_at is null
		order by o.created_at
	`, restaurantID, base, base+".%")
	if err != nil {
		return nil, err
	}

	grouped := billing.GroupBySession(orders)
	groups := make([]map[string]any, 0, len(grouped))
	for key, members := range grouped {
		groups = append(groups, map[string]any{
			"key":       key,
			"orders":    members,
			"total":     billing.Total(members),
			"itemCount": billing.ItemCount(members),
		})
	}

	return map[string]any{
		"restaurantId": restaurantID,
		"tableId":      base,
		"orders":       orders,
		"groups":       groups,
		"total":        billing.Total(orders),
	}, nil
}

func (h *Handler) PublicTableOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID := readPathString(r, "restaurantId")
	tableID := readPathString(r, "tableId")
	if restaurantID == "" || tableID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID and table ID are required")
		return
	}

	payload, err := FetchTableOrdersPayload(ctx, h.DB, restaurantID, tableID)
	if err != nil {
		h.Logger.Error("table orders fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch table orders")
		return
	}
	response.Success(w, payload)
}

// PublicTableBills lists the live split bills of a table, i.e. its claim rows.
func (h *Handler) PublicTableBills(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID := readPathString(r, "restaurantId")
	tableID := baseTableID(readPathString(r, "tableId"))
	if restaurantID == "" || tableID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID and table ID are required")
		return
	}

	rows, err := h.DB.Query(ctx, `
		select table_id, session_code, created_at
		from table_bill_claims
		where restaurant_id = $1 and (table_id = $2 or table_id like $3)
		order by table_id
	`, restaurantID, tableID, tableID+".%")
	if err != nil {
		h.Logger.Error("table bills fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch table bills")
		return
	}
	defer rows.Close()

	bills := []map[string]any{}
	for rows.Next() {
		var (
			billID    string
			code      string
			createdAt time.Time
		)
		if err := rows.Scan(&billID, &code, &createdAt); err != nil {
			h.Logger.Error("table bills scan failed", zapError(err))
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch table bills")
			return
		}
		bills = append(bills, map[string]any{
			"tableBillId": billID,
			"sessionCode": code,
			"claimedAt":   createdAt,
		})
	}

	response.Success(w, map[string]any{
		"tableId": tableID,
		"bills":   bills,
	})
}

func (h *Handler) PublicMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID := readQueryString(r, "restaurantId")
	deviceID := readQueryString(r, "deviceId")
	if restaurantID == "" || deviceID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "restaurantId and deviceId are required")
		return
	}

	orders, err := queryOrders(ctx, h.DB, `
		select `+orderColumns+`
		from orders o
		where o.restaurant_id = $1 and o.device_id = $2
		order by o.created_at desc
		limit 50
	`, restaurantID, deviceID)
	if err != nil {
		h.Logger.Error("my orders fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch orders")
		return
	}

	response.Success(w, map[string]any{"orders": orders})
}

func (h *Handler) StaffOrdersDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
		return
	}

	orders, err := queryOrders(ctx, h.DB, `
		select `+orderColumns+`
		from orders o
		where o.restaurant_id = $1 and o.settled_at is null
		order by o.created_at
	`, authCtx.RestaurantID)
	if err != nil {
		h.Logger.Error("dashboard fetch failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to fetch orders")
		return
	}

	byTable := billing.GroupByTable(orders)
	tables := make([]map[string]any, 0, len(byTable))
	for tableID, members := range byTable {
		tables = append(tables, map[string]any{
			"tableId":   tableID,
			"orders":    members,
			"total":     billing.Total(members),
			"itemCount": billing.ItemCount(members),
		})
	}

	response.Success(w, map[string]any{
		"tables":     tables,
		"orderCount": len(orders),
	})
}

func (h *Handler) StaffOrderStatusUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
		return
	}
	orderID := readPathString(r, "orderId")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	next := strings.ToLower(strings.TrimSpace(body.Status))
	if !billing.IsValidStatus(next) {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Unknown order status %q", body.Status))
		return
	}

	var (
		current     string
		tableID     pgtype.Text
		sessionCode pgtype.Text
	)
	err := h.DB.QueryRow(ctx, `
		select status, table_id, session_code from orders
		where id = $1 and restaurant_id = $2
	`, orderID, authCtx.RestaurantID).Scan(&current, &tableID, &sessionCode)
	if err != nil {
		if isNoRows(err) {
			response.Error(w, http.StatusNotFound, "VALIDATION_ERROR", "Order not found")
			return
		}
		h.Logger.Error("order status lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to update order")
		return
	}

	if !billing.CanTransition(current, next) {
		response.Error(w, http.StatusConflict, "STATUS_TRANSITION_INVALID",
			fmt.Sprintf("Cannot move an order from %s to %s", current, next))
		return
	}

	if _, err := h.DB.Exec(ctx, `update orders set status = $1 where id = $2`, next, orderID); err != nil {
		h.Logger.Error("order status update failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to update order")
		return
	}

	if tableID.Valid {
		h.notifyTableUpdate(ctx, authCtx.RestaurantID, baseTableID(tableID.String))
	}
	if sessionCode.Valid {
		h.notifySessionUpdate(ctx, authCtx.RestaurantID, sessionCode.String)
	}
	h.publishEvent(ctx, queue.RoutingKeyOrderStatusUpdated, queue.BillingEvent{
		Type:         queue.RoutingKeyOrderStatusUpdated,
		RestaurantID: authCtx.RestaurantID,
		TableID:      tableID.String,
		OrderID:      orderID,
		SessionCode:  sessionCode.String,
		Status:       next,
	})

	response.Success(w, map[string]any{
		"orderId": orderID,
		"status":  next,
	})
}

// StaffOrderItemDelete removes a single line. The order total is the amount
// agreed at placement and stays as recorded.
func (h *Handler) StaffOrderItemDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
		return
	}
	orderID := readPathString(r, "orderId")
	itemID := readPathString(r, "itemId")

	var (
		tableID     pgtype.Text
		sessionCode pgtype.Text
	)
	err := h.DB.QueryRow(ctx, `
		select table_id, session_code from orders
		where id = $1 and restaurant_id = $2
	`, orderID, authCtx.RestaurantID).Scan(&tableID, &sessionCode)
	if err != nil {
		if isNoRows(err) {
			response.Error(w, http.StatusNotFound, "VALIDATION_ERROR", "Order not found")
			return
		}
		h.Logger.Error("order lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to delete item")
		return
	}

	tag, err := h.DB.Exec(ctx, `delete from order_items where id = $1 and order_id = $2`, itemID, orderID)
	if err != nil {
		h.Logger.Error("item delete failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to delete item")
		return
	}
	if tag.RowsAffected() == 0 {
		response.Error(w, http.StatusNotFound, "VALIDATION_ERROR", "Item not found")
		return
	}

	if tableID.Valid {
		h.notifyTableUpdate(ctx, authCtx.RestaurantID, baseTableID(tableID.String))
	}
	if sessionCode.Valid {
		h.notifySessionUpdate(ctx, authCtx.RestaurantID, sessionCode.String)
	}

	response.Success(w, map[string]any{"deleted": true})
}

// StaffTableOrdersDelete clears every live order on a table and its split
// bills. Claims stay: a cleared session keeps its sub-bill identifier.
func (h *Handler) StaffTableOrdersDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
		return
	}
	tableID := baseTableID(readPathString(r, "tableId"))
	if tableID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Table ID is required")
		return
	}

	tag, err := h.DB.Exec(ctx, `
		delete from orders
		where restaurant_id = $1 and settled_at is null
		  and (table_id = $2 or table_id like $3)
	`, authCtx.RestaurantID, tableID, tableID+".%")
	if err != nil {
		h.Logger.Error("table orders delete failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to clear table")
		return
	}

	h.notifyTableUpdate(ctx, authCtx.RestaurantID, tableID)

	response.Success(w, map[string]any{
		"tableId": tableID,
		"deleted": tag.RowsAffected(),
	})
}
