package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PGPublisher publishes events with pg_notify so every server instance
// listening on the channel sees them.
type PGPublisher struct {
	DB      *sql.DB
	Channel string
}

// NewPGPublisher creates a publisher on the default channel.
func NewPGPublisher(db *sql.DB) *PGPublisher {
	return &PGPublisher{DB: db, Channel: Channel}
}

// Publish sends e to the channel. A zero e.At is set to the current time.
func (p *PGPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := p.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.Channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// StartListener subscribes to channel through a dedicated connection and
// dispatches decoded events to broker until ctx is cancelled. After the
// connection is re-established a resync event is dispatched, since
// notifications sent while disconnected are lost.
func StartListener(ctx context.Context, dsn, channel string, broker *Broker, log *zap.Logger) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn("change feed connection event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	go func() {
		defer listener.Close()
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				if n == nil {
					broker.Dispatch(Event{Op: OpResync, At: time.Now().UTC()})
					continue
				}
				e, err := Decode(n.Extra)
				if err != nil {
					log.Warn("skipping malformed change event", zap.Error(err))
					continue
				}
				broker.Dispatch(e)
			case <-ping.C:
				go func() { _ = listener.Ping() }()
			}
		}
	}()
	return nil
}

// LocalPublisher dispatches straight to a broker. It serves single-process
// setups and tests where no database channel is available.
type LocalPublisher struct {
	Broker *Broker
}

// Publish dispatches e synchronously.
func (p LocalPublisher) Publish(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	p.Broker.Dispatch(e)
	return nil
}
