// Package duckdb stores the local sink's data streams, index templates and
// documents in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/pipecheck/internal/duckdb/migrate"
	"github.com/tinytelemetry/pipecheck/internal/model"
)

var _ model.DataStreamStore = (*Store)(nil)

// Store manages the DuckDB database connection.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	schemaVersion int

	QueryTimeout time.Duration
	// AutoCreate creates data streams on first write even when no index
	// template matches them.
	AutoCreate bool
}

// NewStore opens or creates a DuckDB database and applies migrations.
// If dbPath is empty, an in-memory database is used.
// An optional queryTimeout can be passed; it defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	runner := migrate.NewRunner(db)
	if err := runner.Run(ctx); err != nil {
		db.Close()
		return nil, err
	}
	st, err := runner.Status(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("duckdb: schema version %d", st.Current)

	return &Store{
		db:            db,
		dbPath:        dbPath,
		schemaVersion: st.Current,
		QueryTimeout:  qt,
	}, nil
}

// SchemaVersion returns the migration version the database was opened at.
func (s *Store) SchemaVersion() int {
	return s.schemaVersion
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}
