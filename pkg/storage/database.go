package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/scout/pkg/core"
)

// Connection pragmas. The journal mode is left alone: scout opens databases
// it does not own and must not rewrite their headers.
var pragmas = []string{
	"busy_timeout(30000)",
	"cache_size(-64000)", // 64MB cache
	"temp_store(memory)",
	"mmap_size(268435456)", // 256MB mmap
}

// Database is an open SQLite file.
type Database struct {
	db   *sql.DB
	path string
}

// Open opens path with the ncruces driver and checks that it is a SQLite
// database.
func Open(ctx context.Context, path string) (*Database, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, core.Internal("open", fmt.Errorf("resolving %s: %w", path, err))
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, core.NotFound("open", "database file %q not found", path)
	}
	if err != nil {
		return nil, core.Internal("open", fmt.Errorf("checking %s: %w", path, err))
	}
	if info.IsDir() {
		return nil, core.InvalidQuery("open", "%q is a directory, not a database file", path)
	}

	db, err := sql.Open("sqlite3", dsn(abs))
	if err != nil {
		return nil, core.Internal("open", fmt.Errorf("opening database: %w", err))
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.Warnf("failed to close rejected database: %v", cerr)
		}
		return nil, core.InvalidQuery("open", "%q is not a usable SQLite database: %v", path, err)
	}

	logger.Debugf("opened %s (%d schema objects)", abs, n)
	return &Database{db: db, path: abs}, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	u := url.URL{Scheme: "file", OmitHost: true, Path: path, RawQuery: q.Encode()}
	return u.String()
}

// DB returns the underlying handle.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Path returns the absolute path of the database file.
func (d *Database) Path() string {
	return d.path
}

// Size returns the size of the database file in bytes.
func (d *Database) Size() int64 {
	info, err := os.Stat(d.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (d *Database) Close() error {
	return d.db.Close()
}
