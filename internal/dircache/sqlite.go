package dircache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/binghezhouke/123/internal/pan"
)

// Embed migration SQL files for schema versioning.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a persistent Cache backed by an embedded SQLite database in
// WAL mode, shared across process restarts.
type SQLite struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger

	getStmt, putStmt, delStmt *sql.Stmt

	// now is the clock, injectable for tests.
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the cache database at dbPath and
// applies pending migrations. ttl <= 0 takes DefaultTTL.
func OpenSQLite(ctx context.Context, dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", filepath.ToSlash(dbPath))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("dircache: opening %s: %w", dbPath, err)
	}

	// Sole-writer: SQLite serializes writers anyway, one connection keeps
	// the driver from returning SQLITE_BUSY under concurrency.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db, ttl: ttl, logger: logger, now: time.Now}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("dircache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("dircache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("dircache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

func (s *SQLite) prepare(ctx context.Context) error {
	var err error

	if s.getStmt, err = s.db.PrepareContext(ctx,
		`SELECT filename, size, etag, parent_id, is_folder, category, status,
		        hidden, starred, trashed, create_at, update_at, fetched_at
		 FROM file_cache WHERE file_id = ?`); err != nil {
		return fmt.Errorf("dircache: preparing get: %w", err)
	}

	if s.putStmt, err = s.db.PrepareContext(ctx,
		`INSERT INTO file_cache
		 (file_id, filename, size, etag, parent_id, is_folder, category, status,
		  hidden, starred, trashed, create_at, update_at, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file_id) DO UPDATE SET
		  filename=excluded.filename, size=excluded.size, etag=excluded.etag,
		  parent_id=excluded.parent_id, is_folder=excluded.is_folder,
		  category=excluded.category, status=excluded.status,
		  hidden=excluded.hidden, starred=excluded.starred,
		  trashed=excluded.trashed, create_at=excluded.create_at,
		  update_at=excluded.update_at, fetched_at=excluded.fetched_at`); err != nil {
		return fmt.Errorf("dircache: preparing put: %w", err)
	}

	if s.delStmt, err = s.db.PrepareContext(ctx,
		`DELETE FROM file_cache WHERE file_id = ?`); err != nil {
		return fmt.Errorf("dircache: preparing delete: %w", err)
	}

	return nil
}

// Get returns the cached record unless absent or older than the TTL.
// Expired rows are deleted opportunistically.
func (s *SQLite) Get(ctx context.Context, fileID int64) (*pan.File, bool, error) {
	f := pan.File{FileID: fileID}

	var fetchedAt int64

	err := s.getStmt.QueryRowContext(ctx, fileID).Scan(
		&f.Filename, &f.Size, &f.Etag, &f.ParentID, &f.IsFolder, &f.Category,
		&f.Status, &f.Hidden, &f.Starred, &f.Trashed, &f.CreateAt, &f.UpdateAt,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("dircache: get %d: %w", fileID, err)
	}

	if s.now().Sub(time.Unix(fetchedAt, 0)) > s.ttl {
		if _, delErr := s.delStmt.ExecContext(ctx, fileID); delErr != nil {
			s.logger.Warn("deleting expired cache row failed",
				slog.Int64("file_id", fileID),
				slog.String("error", delErr.Error()),
			)
		}

		return nil, false, nil
	}

	return &f, true, nil
}

// Put upserts the record with the current fetch time.
func (s *SQLite) Put(ctx context.Context, f *pan.File) error {
	_, err := s.putStmt.ExecContext(ctx,
		f.FileID, f.Filename, f.Size, f.Etag, f.ParentID, f.IsFolder,
		f.Category, f.Status, f.Hidden, f.Starred, f.Trashed,
		f.CreateAt, f.UpdateAt, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("dircache: put %d: %w", f.FileID, err)
	}

	return nil
}

// Invalidate drops one record.
func (s *SQLite) Invalidate(ctx context.Context, fileID int64) error {
	if _, err := s.delStmt.ExecContext(ctx, fileID); err != nil {
		return fmt.Errorf("dircache: invalidate %d: %w", fileID, err)
	}

	return nil
}

// Clear drops every record.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_cache`); err != nil {
		return fmt.Errorf("dircache: clear: %w", err)
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (s *SQLite) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.putStmt, s.delStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}
