package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tabletab-order-services/internal/queue"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func zapError(err error) zap.Field {
	return zap.Error(err)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func readPathString(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

func readQueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// notifyTableUpdate pings the table-orders channel. Payload is the composite
// subscription key; listeners re-fetch their own snapshot, no delta applies.
func (h *Handler) notifyTableUpdate(ctx context.Context, restaurantID, tableID string) {
	if restaurantID == "" || tableID == "" {
		return
	}
	_, _ = h.DB.Exec(ctx, `select pg_notify('bill_order_updates', $1)`, restaurantID+"|"+tableID)
}

func (h *Handler) notifySessionUpdate(ctx context.Context, restaurantID, code string) {
	code = strings.TrimSpace(code)
	if restaurantID == "" || code == "" {
		return
	}
	_, _ = h.DB.Exec(ctx, `select pg_notify('bill_session_updates', $1)`, restaurantID+"|"+code)
}

// publishEvent is fire-and-forget: the event bus feeds downstream gateways
// and must never fail a diner-facing request.
func (h *Handler) publishEvent(ctx context.Context, routingKey string, event queue.BillingEvent) {
	if h.Queue == nil {
		return
	}
	if err := h.Queue.PublishJSON(ctx, queue.EventsExchange, routingKey, event); err != nil {
		h.Logger.Warn("event publish failed", zap.String("routingKey", routingKey), zapError(err))
	}
}

// baseTableID strips a split suffix so notifications reach everyone seated at
// the physical table, whichever sub-bill they are on.
func baseTableID(tableID string) string {
	if i := strings.IndexByte(tableID, '.'); i > 0 {
		return tableID[:i]
	}
	return tableID
}
