package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"tabletab-order-services/internal/config"
	"tabletab-order-services/internal/http/handlers"
	"tabletab-order-services/internal/middleware"
	"tabletab-order-services/internal/queue"
	"tabletab-order-services/internal/storage"
	"tabletab-order-services/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func NewRouter(db *pgxpool.Pool, logger *zap.Logger, cfg config.Config, queueClient *queue.Client, store *storage.ObjectStore, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"Cache-Control",
				"Pragma",
			},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	h := &handlers.Handler{DB: db, Logger: logger, Config: cfg, Queue: queueClient, Store: store}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Post("/devices", h.PublicDeviceRegister)

		r.Post("/bill-sessions", h.PublicSessionCreate)
		r.Post("/bill-sessions/join", h.PublicSessionJoin)
		r.Get("/bill-sessions/resume", h.PublicSessionResume)

		r.Post("/orders", h.PublicOrderCreate)
		r.Get("/orders/mine", h.PublicMyOrders)
		r.Get("/restaurants/{restaurantId}/tables/{tableId}/orders", h.PublicTableOrders)
		r.Get("/restaurants/{restaurantId}/tables/{tableId}/bills", h.PublicTableBills)

		r.Post("/checkout", h.PublicCheckout)
		r.Get("/bills/{billId}", h.PublicBillGet)
		r.Get("/bills/{billId}/receipt", h.PublicBillReceipt)
	})

	r.Route("/api/staff", func(r chi.Router) {
		r.Post("/login", h.StaffLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.StaffAuth(cfg.JWTSecret))

			r.Get("/orders", h.StaffOrdersDashboard)
			r.Put("/orders/{orderId}/status", h.StaffOrderStatusUpdate)
			r.Delete("/orders/{orderId}/items/{itemId}", h.StaffOrderItemDelete)
			r.Delete("/tables/{tableId}/orders", h.StaffTableOrdersDelete)
			r.Get("/bills", h.StaffBillsList)
		})
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.CronAuth(cfg.CronSecret))
		r.Post("/sweep", h.InternalSweep)
	})

	if wsServer != nil {
		r.Get("/ws/table", wsServer.TableOrdersWS)
		r.Get("/ws/session", wsServer.SessionWS)
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
