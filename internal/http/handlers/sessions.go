package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tabletab-order-services/internal/billing"
	"tabletab-order-services/internal/device"
	"tabletab-order-services/pkg/response"

	"github.com/google/uuid"
)

type sessionCreateRequest struct {
	RestaurantID string  `json:"restaurantId"`
	TableID      string  `json:"tableId"`
	OwnerName    string  `json:"ownerName"`
	Code         string  `json:"code"`
	DeviceID     *string `json:"deviceId"`
}

type sessionJoinRequest struct {
	RestaurantID string  `json:"restaurantId"`
	Code         string  `json:"code"`
	DeviceID     *string `json:"deviceId"`
}

func sessionPayload(s billing.Session, now time.Time) map[string]any {
	return map[string]any{
		"id":           s.ID,
		"code":         s.Code,
		"restaurantId": s.RestaurantID,
		"tableId":      s.TableID,
		"deviceId":     s.DeviceID,
		"isActive":     s.IsActive,
		"createdAt":    s.CreatedAt,
		"expiresAt":    s.ExpiresAt,
		"expiresIn":    s.ExpiresIn(now).Milliseconds(),
	}
}

// fetchActiveSessionByCode implements the join lookup: by code alone, never
// table-scoped, so a second device can join from another sub-bill.
func (h *Handler) fetchActiveSessionByCode(ctx context.Context, restaurantID, code string) (billing.Session, bool, error) {
	var s billing.Session
	err := h.DB.QueryRow(ctx, `
		select id::text, code, restaurant_id::text, table_id, device_id, is_active, created_at, expires_at
		from bill_sessions
		where restaurant_id = $1 and code = $2 and is_active and expires_at > now()
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

func (h *Handler) PublicSessionCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	restaurantID := strings.TrimSpace(body.RestaurantID)
	if restaurantID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID is required")
		return
	}
	if strings.TrimSpace(body.OwnerName) == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Owner name is required")
		return
	}
	code := billing.NormalizeCode(body.Code)
	if err := billing.ValidateCode(code); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "A contact identifier of 4-32 characters is required as the session code")
		return
	}
	tableID := strings.TrimSpace(body.TableID)
	if err := billing.ValidateTableID(tableID); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "A valid table ID is required")
		return
	}

	deviceID := device.OrNew(body.DeviceID)
	now := time.Now()

	// Idempotent create: an unexpired session under the same code is the
	// session, whoever asks.
	if existing, found, err := h.fetchActiveSessionByCode(ctx, restaurantID, code); err != nil {
		h.Logger.Error("session lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to look up bill session")
		return
	} else if found {
		payload := sessionPayload(existing, now)
		payload["deviceId"] = deviceID
		payload["reused"] = true
		payload["ownerName"] = strings.TrimSpace(body.OwnerName)
		response.JSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    payload,
			"message": "Rejoined the existing bill session for this code",
		})
		return
	}

	session := billing.Session{
		ID:           uuid.NewString(),
		Code:         code,
		RestaurantID: restaurantID,
		TableID:      tableID,
		DeviceID:     deviceID,
		IsActive:     true,
		CreatedAt:    now,
		ExpiresAt:    now.Add(h.Config.SessionTTL),
	}

	// Retire a lapsed-but-unswept row first so it cannot block the unique
	// active-code slot this insert is about to take.
	if _, err := h.DB.Exec(ctx, `
		update bill_sessions set is_active = false
		where restaurant_id = $1 and code = $2 and is_active and expires_at <= now()
	`, restaurantID, code); err != nil {
		h.Logger.Error("stale session retire failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to create bill session")
		return
	}

	// The partial unique index on (restaurant_id, code) where is_active
	// arbitrates concurrent creates the same way the claim table arbitrates
	// split-bill slots: the loser inserts zero rows and adopts the winner.
	tag, err := h.DB.Exec(ctx, `
		insert into bill_sessions (id, code, restaurant_id, table_id, device_id, is_active, created_at, expires_at)
		values ($1, $2, $3, $4, $5, true, $6, $7)
		on conflict (restaurant_id, code) where is_active do nothing
	`, session.ID, session.Code, session.RestaurantID, session.TableID, session.DeviceID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		h.Logger.Error("session create failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to create bill session")
		return
	}
	if tag.RowsAffected() == 0 {
		winner, found, err := h.fetchActiveSessionByCode(ctx, restaurantID, code)
		if err != nil || !found {
			if err != nil {
				h.Logger.Error("session winner lookup failed", zapError(err))
			}
			response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to create bill session, please retry")
			return
		}
		payload := sessionPayload(winner, now)
		payload["deviceId"] = deviceID
		payload["reused"] = true
		payload["ownerName"] = strings.TrimSpace(body.OwnerName)
		response.JSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    payload,
			"message": "Rejoined the existing bill session for this code",
		})
		return
	}

	h.notifySessionUpdate(ctx, restaurantID, code)

	payload := sessionPayload(session, now)
	payload["reused"] = false
	payload["ownerName"] = strings.TrimSpace(body.OwnerName)
	response.JSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    payload,
		"message": "Bill session created",
	})
}

func (h *Handler) PublicSessionJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body sessionJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	restaurantID := strings.TrimSpace(body.RestaurantID)
	code := billing.NormalizeCode(body.Code)
	if restaurantID == "" || code == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Restaurant ID and session code are required")
		return
	}

	session, found, err := h.fetchActiveSessionByCode(ctx, restaurantID, code)
	if err != nil {
		h.Logger.Error("session join lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to look up bill session")
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "No active session for this code. Ask the session owner to start one first.")
		return
	}

	deviceID := device.OrNew(body.DeviceID)
	h.notifySessionUpdate(ctx, restaurantID, code)

	payload := sessionPayload(session, time.Now())
	payload["deviceId"] = deviceID
	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    payload,
		"message": "Joined the bill session",
	})
}

// PublicSessionResume short-circuits session selection: the most recent live
// session this device started at this table, if any. Clients still hold a
// cached copy locally and must discard it themselves once expired.
func (h *Handler) PublicSessionResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	restaurantID := readQueryString(r, "restaurantId")
	tableID := readQueryString(r, "tableId")
	deviceID := readQueryString(r, "deviceId")
	if restaurantID == "" || tableID == "" || deviceID == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "restaurantId, tableId and deviceId are required")
		return
	}

	var s billing.Session
	err := h.DB.QueryRow(ctx, `
		select id::text, code, restaurant_id::text, table_id, device_id, is_active, created_at, expires_at
		from bill_sessions
		where restaurant_id = $1 and table_id = $2 and device_id = $3
		  and is_active and expires_at > now()
		order by created_at desc
		limit 1
	`, restaurantID, tableID, deviceID).Scan(
		&s.ID, &s.Code, &s.RestaurantID, &s.TableID, &s.DeviceID,
		&s.IsActive, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if isNoRows(err) {
			response.Success(w, map[string]any{"session": nil})
			return
		}
		h.Logger.Error("session resume lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Failed to look up bill session")
		return
	}

	response.Success(w, map[string]any{"session": sessionPayload(s, time.Now())})
}

// FetchSessionPayloadByCode builds the realtime snapshot for a session
// channel: the newest session row for the code in one restaurant plus every
// live order placed under it. Expired sessions are still returned so
// subscribers can be told the session closed instead of silently losing the
// stream.
func FetchSessionPayloadByCode(ctx context.Context, db Querier, restaurantID, code string) (map[string]any, bool, error) {
	var s billing.Session
	err := db.QueryRow(ctx, `
		select id::text, code, restaurant_id::text, table_id, device_id, is_active, created_at, expires_at
		from bill_sessions
		where restaurant_id = $1 and code = $2
		order by created_at desc
		limit 1
	`, restaurantID, billing.NormalizeCode(code)).Scan(
		&s.ID, &s.Code, &s.RestaurantID, &s.TableID, &s.DeviceID,
		&s.IsActive, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	now := time.Now()
	orders, err := queryOrders(ctx, db, `
		select `+orderColumns+`
		from orders o
		where o.restaurant_id = $1 and o.session_code = $2 and o.settled_at is null
		order by o.created_at
	`, s.RestaurantID, s.Code)
	if err != nil {
		return nil, false, err
	}

	payload := map[string]any{
		"session":   sessionPayload(s, now),
		"isExpired": s.IsExpired(now),
		"orders":    orders,
		"total":     billing.Total(orders),
		"itemCount": billing.ItemCount(orders),
	}
	return payload, true, nil
}
