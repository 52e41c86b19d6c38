package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/usage"
)

const schema = `
CREATE TABLE IF NOT EXISTS panels (
	panel_id    TEXT PRIMARY KEY,
	location    TEXT NOT NULL DEFAULT '',
	floor       INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'OFFLINE',
	last_online INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_panels_floor ON panels(floor, panel_id);
`

const (
	stmtEnsure     = "ensure"
	stmtUpdateSeen = "update_seen"
	stmtList       = "list"
)

var statements = map[string]string{
	stmtEnsure: `INSERT INTO panels (panel_id, location, floor, status, last_online, created_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(panel_id) DO NOTHING`,
	stmtUpdateSeen: `UPDATE panels SET status = ?, last_online = ? WHERE panel_id = ?`,
	stmtList:       `SELECT panel_id, location, floor, status, last_online FROM panels ORDER BY floor, panel_id`,
}

// SQLite is a Registry backed by a SQLite database file.
type SQLite struct {
	db       *sql.DB
	prepared map[string]*sql.Stmt
	logger   *slog.Logger
}

var _ Registry = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and migrates the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "SQLiteRegistry", "Open", "validate path")
	}
	if logger == nil {
		logger = slog.Default().With("component", "sqlite-registry")
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.WrapFatal(err, "SQLiteRegistry", "Open", "open database")
	}
	// All access is serialized on this one connection; WAL only lets other
	// processes read during a write.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, prepared: make(map[string]*sql.Stmt), logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepare(); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("Opened panel registry", "path", path)
	return s, nil
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return errors.WrapFatal(err, "SQLiteRegistry", "migrate", "create schema")
	}
	return nil
}

func (s *SQLite) prepare() error {
	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return errors.WrapFatal(err, "SQLiteRegistry", "prepare", "prepare "+name)
		}
		s.prepared[name] = stmt
	}
	return nil
}

// UpdateLastSeen implements Registry.
func (s *SQLite) UpdateLastSeen(ctx context.Context, panelID string, status usage.Status, ts time.Time) error {
	res, err := s.prepared[stmtUpdateSeen].ExecContext(ctx, string(status), ts.UnixNano(), panelID)
	if err != nil {
		return errors.WrapTransient(err, "SQLiteRegistry", "UpdateLastSeen", "update panel "+panelID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapTransient(err, "SQLiteRegistry", "UpdateLastSeen", "read rows affected")
	}
	if n == 0 {
		return notFound("SQLiteRegistry", panelID)
	}
	return nil
}

// List implements Registry.
func (s *SQLite) List(ctx context.Context) ([]Panel, error) {
	rows, err := s.prepared[stmtList].QueryContext(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "SQLiteRegistry", "List", "query panels")
	}
	defer rows.Close()

	var panels []Panel
	for rows.Next() {
		var p Panel
		var status string
		var lastOnline int64
		if err := rows.Scan(&p.PanelID, &p.Location, &p.Floor, &status, &lastOnline); err != nil {
			return nil, errors.WrapTransient(err, "SQLiteRegistry", "List", "scan panel")
		}
		p.Status = usage.Status(status)
		if lastOnline != 0 {
			p.LastOnline = time.Unix(0, lastOnline)
		}
		panels = append(panels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "SQLiteRegistry", "List", "iterate panels")
	}
	return panels, nil
}

// Ensure implements Registry.
func (s *SQLite) Ensure(ctx context.Context, p Panel) error {
	p, err := normalize(p)
	if err != nil {
		return err
	}

	var lastOnline int64
	if !p.LastOnline.IsZero() {
		lastOnline = p.LastOnline.UnixNano()
	}
	res, err := s.prepared[stmtEnsure].ExecContext(ctx,
		p.PanelID, p.Location, p.Floor, string(p.Status), lastOnline, time.Now().UnixNano())
	if err != nil {
		return errors.WrapTransient(err, "SQLiteRegistry", "Ensure", "insert panel "+p.PanelID)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("Created panel", "panel_id", p.PanelID, "floor", p.Floor)
	}
	return nil
}

// Close releases prepared statements and the database.
func (s *SQLite) Close() error {
	var errs []error
	for name, stmt := range s.prepared {
		if err := stmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	s.prepared = map[string]*sql.Stmt{}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
