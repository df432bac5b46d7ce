package config

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// WatchOptions tunes WatchMeetings.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before reloading.
	// Default: 500ms.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *WatchOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// WatchMeetings blocks until ctx is done, reloading active meetings and
// passing them to apply whenever another connection commits to the
// database. If apply fails the change is retried on the next poll.
func WatchMeetings(ctx context.Context, db *sql.DB, opts WatchOptions, apply func([]MeetingConfig) error) error {
	opts.defaults()
	log := opts.Logger

	// data_version is per connection; pin one.
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("config: watch conn: %w", err)
	}
	defer conn.Close()

	version, err := dataVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-ticker.C:
			cur, err := dataVersion(ctx, conn)
			if err != nil {
				log.Warn("config: meetings version check failed", "error", err)
				continue
			}
			if cur == version || cur == pending {
				continue
			}
			pending = cur
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			rows, err := LoadMeetings(ctx, db)
			if err == nil {
				err = apply(rows)
			}
			if err != nil {
				log.Warn("config: meetings reload failed", "error", err)
				pending = -1
				continue
			}
			version, pending = pending, -1
			log.Info("config: meetings reloaded", "active", len(rows))
		}
	}
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var v int64
	err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
