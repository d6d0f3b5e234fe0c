package billing

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Store is the database surface the sweep needs. *pgxpool.Pool satisfies it.
type Store interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type SweepResult struct {
	SessionsClosed int64 `json:"sessionsClosed"`
	ClaimsReleased int64 `json:"claimsReleased"`
}

// SweepExpired flips stale sessions inactive and releases the table-bill
// claims they were holding. Safe to run concurrently and on every tick; a
// failed sweep is simply retried on the next one.
func SweepExpired(ctx context.Context, store Store, logger *zap.Logger) (SweepResult, error) {
	var result SweepResult

	rows, err := store.Query(ctx, `
		select distinct restaurant_id::text, code from bill_sessions
		where is_active and expires_at <= now()
	`)
	if err != nil {
		return result, err
	}
	keys := make([]string, 0)
	for rows.Next() {
		var restaurantID, code string
		if err := rows.Scan(&restaurantID, &code); err != nil {
			rows.Close()
			return result, err
		}
		keys = append(keys, restaurantID+"|"+code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, err
	}

	closed, err := store.Exec(ctx, `
		update bill_sessions set is_active = false
		where is_active and expires_at <= now()
	`)
	if err != nil {
		return result, err
	}
	result.SessionsClosed = closed.RowsAffected()

	// Release claims whose owning session has lapsed. Reclamation is
	// explicit: a suffix stays reserved while its claim row exists, no
	// matter what the order rows look like.
	released, err := store.Exec(ctx, `
		delete from table_bill_claims c
		where not exists (
			select 1 from bill_sessions s
			where s.restaurant_id = c.restaurant_id
			  and s.code = c.session_code
			  and s.is_active
			  and s.expires_at > now()
		)
	`)
	if err != nil {
		return result, err
	}
	result.ClaimsReleased = released.RowsAffected()

	for _, key := range keys {
		_, _ = store.Exec(ctx, `select pg_notify('bill_session_updates', $1)`, key)
	}

	if result.SessionsClosed > 0 || result.ClaimsReleased > 0 {
		logger.Info("expiry sweep",
			zap.Int64("sessionsClosed", result.SessionsClosed),
			zap.Int64("claimsReleased", result.ClaimsReleased),
		)
	}
	return result, nil
}
