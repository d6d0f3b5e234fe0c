package handlers

import (
	"context"

	"tabletab-order-services/internal/config"
	"tabletab-order-services/internal/queue"
	"tabletab-order-services/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Querier is the database surface the handlers use. *pgxpool.Pool satisfies
// it; tests substitute a mock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Handler struct {
	DB     Querier
	Logger *zap.Logger
	Config config.Config
	Queue  *queue.Client
	Store  *storage.ObjectStore
}
