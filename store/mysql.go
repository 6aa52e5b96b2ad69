package store

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the second relational GraphStore backend, for hosts
// standardized on MySQL rather than SQLite or Neo4j. See relational.go for
// the shared implementation; MySQL lacks SQLite's RETURNING clause, so
// CreatePropertyNode action bodies targeting this backend should end with a
// trailing `SELECT LAST_INSERT_ID() AS createdId` to surface the new row's
// id the same way a SQLite or Cypher body would via RETURNING.
type MySQLStore struct {
	*relationalStore
}

// NewMySQLStore opens a connection pool against dsn (the go-sql-driver/mysql
// DSN format, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true") and
// ensures its schema exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, &Failure{Kind: FailureUnavailable, Message: "failed to open mysql connection pool", Cause: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &Failure{Kind: FailureUnavailable, Message: "mysql connectivity check failed", Cause: err}
	}
	rs, err := newRelationalStore(db, mysqlDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLStore{relationalStore: rs}, nil
}
