package store

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a relational GraphStore backend for hosts that would
// rather embed a schema/data graph than operate a Neo4j cluster. It models
// the same vertex/edge kinds as Neo4jStore over a handful of tables; see
// relational.go for the shared implementation.
type SQLiteStore struct {
	*relationalStore
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at dsn —
// e.g. "file:graph.db?cache=shared" or ":memory:" for a transient store —
// and ensures its schema exists.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &Failure{Kind: FailureUnavailable, Message: "failed to open sqlite database", Cause: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &Failure{Kind: FailureUnavailable, Message: "sqlite connectivity check failed", Cause: err}
	}
	rs, err := newRelationalStore(db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{relationalStore: rs}, nil
}
