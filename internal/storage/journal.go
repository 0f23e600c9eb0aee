// Package storage keeps a small on-device SQLite journal of operational
// events: connectivity transitions and repairs, schedule reloads, and
// screenshot archive sweeps. It exists so an outage survives a power cycle
// and can be reconstructed from the device itself.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrjrask/desk-display/internal/services/connectivity"
	"github.com/mrjrask/desk-display/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	Enabled bool
	Path    string
	// BusyTimeout bounds lock waits; 0 keeps the driver default.
	BusyTimeout time.Duration
	// Retention drops connectivity events older than this. Default 30 days.
	Retention time.Duration
}

// Journal is the SQLite-backed event log. A nil Journal is valid and
// discards everything, so callers never branch on storage being enabled.
type Journal struct {
	db  *sql.DB
	log logx.Logger

	retention  time.Duration
	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open initializes the journal. It returns (nil, nil) when disabled.
func Open(cfg Config, log logx.Logger) (*Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required when storage is enabled")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	j := &Journal{db: db, log: log, retention: retention, pruneEvery: 500}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// ConnectivityEvent appends one monitor event. Errors are logged, not
// returned: the journal must never feed back into connectivity health.
func (j *Journal) ConnectivityEvent(ctx context.Context, ev connectivity.Event) {
	if j == nil || j.db == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO connectivity_events(at, kind, state, ssid, iface, detail, outage_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		ev.At.Format(time.RFC3339Nano), ev.Kind, string(ev.State),
		nullStr(ev.SSID), nullStr(ev.Iface), nullStr(ev.Detail), ev.Outage.Milliseconds(),
	)
	if err != nil {
		j.log.Warn("journal connectivity event failed", logx.Err(err))
		return
	}
	if j.opCount.Add(1)%j.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		j.prune(pctx)
		cancel()
	}
}

// ScheduleReload records the outcome of one schedule file reload.
func (j *Journal) ScheduleReload(ctx context.Context, path string, screens int, ok bool, detail string) {
	if j == nil || j.db == nil {
		return
	}
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO schedule_reloads(at, path, screens, ok, detail) VALUES(?,?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), path, screens, okInt, nullStr(detail),
	)
	if err != nil {
		j.log.Warn("journal schedule reload failed", logx.Err(err))
	}
}

// ArchiveBatch records one screenshot archive sweep.
func (j *Journal) ArchiveBatch(ctx context.Context, screen string, moved int, dest string) {
	if j == nil || j.db == nil {
		return
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO screenshot_archives(at, screen, moved, dest) VALUES(?,?,?,?)`,
		time.Now().Format(time.RFC3339Nano), screen, moved, dest,
	)
	if err != nil {
		j.log.Warn("journal archive batch failed", logx.Err(err))
	}
}

// RecentConnectivityEvents returns the newest events, newest first.
func (j *Journal) RecentConnectivityEvents(ctx context.Context, limit int) ([]connectivity.Event, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT at, kind, state, COALESCE(ssid,''), COALESCE(iface,''), COALESCE(detail,''), outage_ms
		 FROM connectivity_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []connectivity.Event
	for rows.Next() {
		var ev connectivity.Event
		var at, state string
		var outageMS int64
		if err := rows.Scan(&at, &ev.Kind, &state, &ev.SSID, &ev.Iface, &ev.Detail, &outageMS); err != nil {
			return nil, err
		}
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		ev.State = connectivity.State(state)
		ev.Outage = time.Duration(outageMS) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (j *Journal) prune(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention).Format(time.RFC3339Nano)
	if _, err := j.db.ExecContext(ctx,
		`DELETE FROM connectivity_events WHERE at < ?`, cutoff); err != nil {
		j.log.Debug("journal prune failed", logx.Err(err))
	}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
