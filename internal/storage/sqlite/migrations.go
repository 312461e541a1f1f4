package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Manager handles schema versioning of the index database.
type Manager struct{}

const latestVersion = 2

// ErrSchemaVersion means an existing index database is not at the schema
// version this build reads.
var ErrSchemaVersion = errors.New("index db schema version mismatch")

// Open opens (creating if needed) the SQLite file at path and migrates it.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := (Manager{}).UpToLatest(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenExisting opens an index database that must already exist, for reading.
// Nothing is migrated: a schema at any version other than the latest fails
// with ErrSchemaVersion.
func OpenExisting(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	v, err := (Manager{}).readVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if v != latestVersion {
		db.Close()
		return nil, fmt.Errorf("%s is at v%d, want v%d: %w", path, v, latestVersion, ErrSchemaVersion)
	}
	return db, nil
}

// Reset rolls every migration of the database at path back to version 0,
// dropping the index tables. A missing file is not an error.
func Reset(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open index db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	m := Manager{}
	for {
		v, err := m.Version(ctx, db)
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
		if err := m.DownOne(ctx, db); err != nil {
			return fmt.Errorf("roll back v%d: %w", v, err)
		}
	}
}

func (m Manager) ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL);`)
	if err != nil {
		return err
	}
	// initialize row if empty
	var cnt int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&cnt); err != nil {
		return fmt.Errorf("count schema_migrations: %w", err)
	}
	if cnt == 0 {
		_, err = db.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES(0)`)
	}
	return err
}

// readVersion reports the applied version without creating anything. A
// database without schema_migrations is at version 0.
func (m Manager) readVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cnt int
	err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&cnt)
	if err != nil {
		return 0, fmt.Errorf("read index db schema: %w", err)
	}
	if cnt == 0 {
		return 0, nil
	}
	var v int
	err = db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Version reports the applied schema version.
func (m Manager) Version(ctx context.Context, db *sql.DB) (int, error) {
	if err := m.ensureTable(ctx, db); err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m Manager) setVersion(ctx context.Context, db *sql.DB, v int) error {
	_, err := db.ExecContext(ctx, `UPDATE schema_migrations SET version=?`, v)
	return err
}

// UpToLatest applies migrations to reach latestVersion.
func (m Manager) UpToLatest(ctx context.Context, db *sql.DB) error {
	cur, err := m.Version(ctx, db)
	if err != nil {
		return err
	}
	if cur > latestVersion {
		return fmt.Errorf("index db schema v%d is newer than supported v%d", cur, latestVersion)
	}
	for v := cur + 1; v <= latestVersion; v++ {
		if err := m.up(ctx, db, v); err != nil {
			return fmt.Errorf("migrate up to v%d: %w", v, err)
		}
		if err := m.setVersion(ctx, db, v); err != nil {
			return err
		}
	}
	return nil
}

// DownOne rolls back the last applied migration.
func (m Manager) DownOne(ctx context.Context, db *sql.DB) error {
	cur, err := m.Version(ctx, db)
	if err != nil {
		return err
	}
	if cur <= 0 {
		return nil
	}
	if err := m.down(ctx, db, cur); err != nil {
		return err
	}
	return m.setVersion(ctx, db, cur-1)
}

func (m Manager) up(ctx context.Context, db *sql.DB, v int) error {
	var stmts []string
	switch v {
	case 1:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS index_info (
                key TEXT PRIMARY KEY,
                value TEXT NOT NULL
            );`,
			// one row per vector; pos is the row id returned by search
			`CREATE TABLE IF NOT EXISTS vectors (
                pos INTEGER PRIMARY KEY,
                vector BLOB NOT NULL
            );`,
		}
	case 2:
		// citation key stored next to each vector so meta files can be validated
		stmts = []string{`ALTER TABLE vectors ADD COLUMN citation TEXT NOT NULL DEFAULT ''`}
	default:
		return fmt.Errorf("unknown migration version %d", v)
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("v%d step %d: %w", v, i, err)
		}
	}
	return nil
}

func (m Manager) down(ctx context.Context, db *sql.DB, v int) error {
	switch v {
	case 2:
		_, err := db.ExecContext(ctx, `ALTER TABLE vectors DROP COLUMN citation`)
		return err
	case 1:
		for _, s := range []string{`DROP TABLE IF EXISTS vectors;`, `DROP TABLE IF EXISTS index_info;`} {
			if _, err := db.ExecContext(ctx, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown migration version %d", v)
	}
}
