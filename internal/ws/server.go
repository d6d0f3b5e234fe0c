// Package ws pushes change notifications to connected diners and dashboards.
// Postgres NOTIFY drives everything: handlers ping a channel after a write,
// the listen loop re-fetches a full snapshot and fans it out. Payloads are
// always complete states, never deltas, so a missed notification costs one
// refresh and nothing else.
package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tabletab-order-services/internal/config"
	"tabletab-order-services/internal/http/handlers"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	DB     *pgxpool.Pool
	Logger *zap.Logger
	Config config.Config

	tableOrdersRealtime *tableOrdersRealtime
	sessionRealtime     *sessionRealtime
}

func New(db *pgxpool.Pool, logger *zap.Logger, cfg config.Config) *Server {
	srv := &Server{DB: db, Logger: logger, Config: cfg}
	srv.tableOrdersRealtime = newTableOrdersRealtime(db, logger)
	srv.sessionRealtime = newSessionRealtime(db, logger)
	return srv
}

type wsRealtimeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsRealtimeClient) writeJSON(value any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(value)
}

// realtimeHub is the shared subscribe/broadcast machinery for one LISTEN
// channel. Keys are channel-specific: "restaurantID|tableID" for table
// orders, "restaurantID|code" for sessions.
type realtimeHub struct {
	mu   sync.RWMutex
	subs map[string]map[*wsRealtimeClient]struct{}
}

func newRealtimeHub() *realtimeHub {
	return &realtimeHub{subs: make(map[string]map[*wsRealtimeClient]struct{})}
}

func (h *realtimeHub) subscribe(key string, client *wsRealtimeClient) (unsubscribe func()) {
	key = strings.TrimSpace(key)
	if key == "" {
		return func() {}
	}

	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*wsRealtimeClient]struct{})
	}
	h.subs[key][client] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		clients := h.subs[key]
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.subs, key)
		}
		h.mu.Unlock()
	}
}

func (h *realtimeHub) hasSubscribers(key string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key]) > 0
}

func (h *realtimeHub) broadcast(key string, message any) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	h.mu.RLock()
	clientsMap := h.subs[key]
	clients := make([]*wsRealtimeClient, 0, len(clientsMap))
	for c := range clientsMap {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(message); err != nil {
			_ = c.conn.Close()
			h.mu.Lock()
			if current := h.subs[key]; current != nil {
				delete(current, c)
				if len(current) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
		}
	}
}

// listenLoop holds one pooled connection on LISTEN and dispatches payloads.
// Connection loss backs off exponentially and re-listens; subscribers keep
// their websocket and simply miss nothing once the loop is back (their next
// snapshot is always fetched fresh).
func listenLoop(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger, channel string, dispatch func(ctx context.Context, payload string)) {
	backoff := time.Second
	for {
		conn, err := db.Acquire(ctx)
		if err != nil {
			if logger != nil {
				logger.Warn("LISTEN acquire failed", zap.String("channel", channel), zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		_, err = conn.Exec(ctx, "listen "+channel)
		if err != nil {
			conn.Release()
			if logger != nil {
				logger.Warn("LISTEN failed", zap.String("channel", channel), zap.Error(err))
			}
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, 30*time.Second)
			continue
		}

		backoff = time.Second
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				break
			}
			payload := strings.TrimSpace(n.Payload)
			if payload == "" {
				continue
			}
			dispatch(ctx, payload)
		}

		conn.Release()
		time.Sleep(backoff)
		backoff = minDuration(backoff*2, 30*time.Second)
	}
}

type tableOrdersRealtime struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	started sync.Once
	hub     *realtimeHub
}

func newTableOrdersRealtime(db *pgxpool.Pool, logger *zap.Logger) *tableOrdersRealtime {
	return &tableOrdersRealtime{db: db, logger: logger, hub: newRealtimeHub()}
}

func (tr *tableOrdersRealtime) ensureStarted() {
	tr.started.Do(func() {
		go listenLoop(context.Background(), tr.db, tr.logger, "bill_order_updates", tr.dispatch)
	})
}

func (tr *tableOrdersRealtime) dispatch(ctx context.Context, payload string) {
	// Payload is the subscription key "restaurantID|tableID".
	if !tr.hub.hasSubscribers(payload) {
		return
	}
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return
	}

	snapshot, err := handlers.FetchTableOrdersPayload(ctx, tr.db, parts[0], parts[1])
	if err != nil {
		if tr.logger != nil {
			tr.logger.Warn("table snapshot fetch failed", zap.String("key", payload), zap.Error(err))
		}
		tr.hub.broadcast(payload, map[string]any{"type": "table.refresh", "updatedAt": time.Now()})
		return
	}
	tr.hub.broadcast(payload, map[string]any{"type": "table.state", "data": snapshot})
}

type sessionRealtime struct {
	db     *pgxpool.Pool
	logger *zap.Logger

	started sync.Once
	hub     *realtimeHub
}

func newSessionRealtime(db *pgxpool.Pool, logger *zap.Logger) *sessionRealtime {
	return &sessionRealtime{db: db, logger: logger, hub: newRealtimeHub()}
}

func (sr *sessionRealtime) ensureStarted() {
	sr.started.Do(func() {
		go listenLoop(context.Background(), sr.db, sr.logger, "bill_session_updates", sr.dispatch)
	})
}

func (sr *sessionRealtime) dispatch(ctx context.Context, payload string) {
	// Payload is the subscription key "restaurantID|code"; codes are only
	// unique per restaurant, so both parts scope the channel.
	if !sr.hub.hasSubscribers(payload) {
		return
	}
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 {
		return
	}

	snapshot, found, err := handlers.FetchSessionPayloadByCode(ctx, sr.db, parts[0], parts[1])
	if err != nil {
		if sr.logger != nil {
			sr.logger.Warn("session snapshot fetch failed", zap.String("key", payload), zap.Error(err))
		}
		sr.hub.broadcast(payload, map[string]any{"type": "session.refresh", "updatedAt": time.Now()})
		return
	}
	if !found {
		sr.hub.broadcast(payload, map[string]any{"type": "session.closed"})
		return
	}
	if expired, _ := snapshot["isExpired"].(bool); expired {
		sr.hub.broadcast(payload, map[string]any{"type": "session.closed", "data": snapshot})
		return
	}
	sr.hub.broadcast(payload, map[string]any{"type": "session.state", "data": snapshot})
}

// TableOrdersWS streams the live view of one physical table: every order on
// the base table and its split bills, re-sent in full after each change.
func (s *Server) TableOrdersWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurantId"))
	tableID := strings.TrimSpace(r.URL.Query().Get("tableId"))
	if restaurantID == "" || tableID == "" {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "restaurantId and tableId are required"})
		return
	}
	if i := strings.IndexByte(tableID, '.'); i > 0 {
		tableID = tableID[:i]
	}
	key := restaurantID + "|" + tableID

	s.tableOrdersRealtime.ensureStarted()
	ctx := r.Context()
	client := &wsRealtimeClient{conn: conn}
	unsubscribe := s.tableOrdersRealtime.hub.subscribe(key, client)
	defer unsubscribe()

	snapshot, err := handlers.FetchTableOrdersPayload(ctx, s.DB, restaurantID, tableID)
	if err != nil {
		_ = client.writeJSON(map[string]any{"type": "error", "message": "failed to load table orders"})
		return
	}
	_ = client.writeJSON(map[string]any{"type": "table.state", "data": snapshot})

	s.holdConnection(ctx, conn, client)
}

// SessionWS streams one bill session: membership snapshot plus its live
// orders, keyed by the session code.
func (s *Server) SessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	restaurantID := strings.TrimSpace(r.URL.Query().Get("restaurantId"))
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if restaurantID == "" || code == "" {
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "restaurantId and code are required"})
		return
	}

	s.sessionRealtime.ensureStarted()
	ctx := r.Context()
	client := &wsRealtimeClient{conn: conn}
	unsubscribe := s.sessionRealtime.hub.subscribe(restaurantID+"|"+code, client)
	defer unsubscribe()

	snapshot, found, err := handlers.FetchSessionPayloadByCode(ctx, s.DB, restaurantID, code)
	if err != nil {
		_ = client.writeJSON(map[string]any{"type": "error", "message": "failed to load session"})
		return
	}
	if !found {
		_ = client.writeJSON(map[string]any{"type": "session.closed"})
		return
	}
	if expired, _ := snapshot["isExpired"].(bool); expired {
		_ = client.writeJSON(map[string]any{"type": "session.closed", "data": snapshot})
		return
	}
	_ = client.writeJSON(map[string]any{"type": "session.state", "data": snapshot})

	s.holdConnection(ctx, conn, client)
}

// holdConnection drains client reads and keeps the socket alive with
// heartbeats until the peer goes away or the request context ends.
func (s *Server) holdConnection(ctx context.Context, conn *websocket.Conn, client *wsRealtimeClient) {
	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	heartbeat := s.Config.WSHeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-clientClosed:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.writeJSON(map[string]any{"type": "ping", "at": time.Now()}); err != nil {
				return
			}
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
