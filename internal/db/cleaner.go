package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// purge is one cleanup statement and the cutoff it compares against.
type purge struct {
	what  string
	query string
	// retained reports whether the cutoff is now minus retention (true) or
	// simply now (false).
	retained bool
}

var purges = []purge{
	{
		what:     "read notifications",
		query:    `DELETE FROM notifications WHERE read = true AND created_at < $1`,
		retained: true,
	},
	{
		what:  "expired refresh tokens",
		query: `DELETE FROM refresh_tokens WHERE expires_at < $1`,
	},
	{
		what:  "used or expired password resets",
		query: `DELETE FROM password_resets WHERE used = true OR expires_at < $1`,
	},
}

// StartCleaner deletes read notifications older than retention, and
// expired session and reset tokens, every interval until ctx is done.
func StartCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				clean(ctx, db, retention, log)
			}
		}
	}()
}

func clean(ctx context.Context, db *sql.DB, retention time.Duration, log *zap.Logger) {
	now := time.Now().UTC()
	for _, p := range purges {
		cutoff := now
		if p.retained {
			cutoff = now.Add(-retention)
		}
		res, err := db.ExecContext(ctx, p.query, cutoff)
		if err != nil {
			log.Error("failed to clean "+p.what, zap.Error(err))
			continue
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			log.Info("cleaned "+p.what, zap.Int64("removed", rows))
		}
	}
}
