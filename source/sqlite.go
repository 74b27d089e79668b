package source

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // registers sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tiles (
	zoom_level INTEGER NOT NULL,
	tile_column INTEGER NOT NULL,
	tile_row INTEGER NOT NULL,
	tile_data BLOB NOT NULL,
	PRIMARY KEY (zoom_level, tile_column, tile_row)
);`

// OpenSQLite opens existing tile database stored in MBTiles layout for reading.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := openSQLite(path, "ro")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "opening database %q failed", path)
	}
	return &SQLite{db: db}, nil
}

// CreateSQLite opens tile database for writing, creating the file and the MBTiles tiles table if needed.
func CreateSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := openSQLite(path, "rwc")
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating schema failed")
	}
	return &SQLite{db: db}, nil
}

func openSQLite(path, mode string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}

	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=" + mode}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLite serves tiles from MBTiles database. Locator is formatted as mbtiles:///{z}/{x}/{y}.
// Rows are stored in TMS order, so Y is flipped.
type SQLite struct {
	db *sql.DB
}

// Put stores the tile. It fails on databases opened by OpenSQLite.
func (s *SQLite) Put(ctx context.Context, a Address, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
		a.Z, a.X, tmsRow(a), data)
	return errors.WithStack(err)
}

// Fetch reads the tile.
func (s *SQLite) Fetch(ctx context.Context, locator string) ([]byte, error) {
	a, err := ParseAddress(locator)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		a.Z, a.X, tmsRow(a)).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, errors.Wrapf(ErrNotFound, "tile %s", a)
	case err != nil:
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return errors.WithStack(s.db.Close())
}

func tmsRow(a Address) uint32 {
	return uint32(1)<<a.Z - 1 - a.Y
}
