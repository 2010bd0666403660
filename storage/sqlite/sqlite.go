// Package sqlite persists storage areas in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/storage"
)

// DB holds every area in one table keyed by (area, key).
type DB struct {
	db *sql.DB
}

// Open connects to the database at path and ensures the schema exists.
// A path of ":memory:" keeps everything in memory.
func Open(ctx context.Context, path string) (*DB, error) {
	path = strings.TrimPrefix(path, "sqlite://")

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, openErr(err)
		}
	}

	dbh, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, openErr(err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	dbh.SetMaxOpenConns(1)

	if _, err := dbh.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = dbh.Close()
		return nil, openErr(err)
	}

	if err := migrate(ctx, dbh); err != nil {
		_ = dbh.Close()
		return nil, openErr(err)
	}

	return &DB{db: dbh}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS items (
  area TEXT NOT NULL,
  key TEXT NOT NULL,
  value BLOB NOT NULL,
  PRIMARY KEY(area, key)
);
`)

	return err
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// Area returns the storage area with the given name, for example "sync" or "local".
func (d *DB) Area(name string) storage.Area {
	return &area{db: d.db, name: name}
}

type area struct {
	db   *sql.DB
	name string
}

func (a *area) Get(ctx context.Context, keys ...string) (map[string]any, error) {
	q := `SELECT key, value FROM items WHERE area = ?`
	args := []any{a.name}

	if len(keys) > 0 {
		q += ` AND key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)

	for rows.Next() {
		var (
			k   string
			raw []byte
		)

		if err := rows.Scan(&k, &raw); err != nil {
			return nil, err
		}

		v, err := storage.DecodeValue(k, raw)
		if err != nil {
			return nil, err
		}

		out[k] = v
	}

	return out, rows.Err()
}

func (a *area) Set(ctx context.Context, items map[string]any) error {
	enc, err := storage.Encode(items)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for k, v := range enc {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items(area, key, value) VALUES(?,?,?)
			 ON CONFLICT(area, key) DO UPDATE SET value = excluded.value`, a.name, k, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (a *area) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	args := []any{a.name}
	for _, k := range keys {
		args = append(args, k)
	}

	_, err := a.db.ExecContext(ctx,
		`DELETE FROM items WHERE area = ? AND key IN (?`+strings.Repeat(",?", len(keys)-1)+`)`, args...)

	return err
}

func (a *area) Clear(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM items WHERE area = ?`, a.name)
	return err
}

func openErr(err error) error {
	return fmt.Errorf("sqlite open: %w", errors.Join(berr.ErrStorageFailed, err))
}
