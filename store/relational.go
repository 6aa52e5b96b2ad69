package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arclight-io/qflow/value"
)

// relationalStore is the shared GraphStore implementation backing both
// SQLiteStore and MySQLStore: it models the five vertex kinds and two edge
// kinds from spec.md §3 over five tables (nodes, edges, supplies, answers,
// completed) and recognizes the canonical queries in queries.go, executing
// them as plain SQL joins rather than Cypher pattern matches.
//
// Action bodies authored for a relational backend are plain SQL (unlike the
// Cypher bodies a schema designer would author for Neo4jStore) and are
// executed directly; see passthrough for the CreatePropertyNode convention
// each relational backend expects.
type relationalStore struct {
	db        *sql.DB
	dialect   dialect
	ownsClose bool
}

// dialect captures the handful of places SQLite and MySQL SQL differs.
type dialect struct {
	name              string
	autoIncrementType string // column type for the nodes/edges surrogate key
	placeholder       func(n int) string
}

var sqliteDialect = dialect{
	name:              "sqlite",
	autoIncrementType: "INTEGER PRIMARY KEY AUTOINCREMENT",
	placeholder:       func(int) string { return "?" },
}

var mysqlDialect = dialect{
	name:              "mysql",
	autoIncrementType: "BIGINT PRIMARY KEY AUTO_INCREMENT",
	placeholder:       func(int) string { return "?" },
}

const relationalSchemaTemplate = `
CREATE TABLE IF NOT EXISTS nodes (
	seq %[1]s,
	id VARCHAR(255) NOT NULL,
	label VARCHAR(255) NOT NULL,
	version_number INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	properties TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	seq %[1]s,
	kind VARCHAR(16) NOT NULL,
	from_id VARCHAR(255) NOT NULL,
	to_id VARCHAR(255) NOT NULL,
	order_in_form INTEGER NOT NULL,
	ask_when TEXT,
	source_node TEXT,
	properties TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS supplies (
	source_id VARCHAR(255) NOT NULL,
	datapoint_id VARCHAR(255) NOT NULL
);
CREATE TABLE IF NOT EXISTS answers (
	datapoint_id VARCHAR(255) NOT NULL,
	question_id VARCHAR(255) NOT NULL
);
CREATE TABLE IF NOT EXISTS completed (
	anchor_id VARCHAR(255) NOT NULL,
	section_id VARCHAR(255) NOT NULL
);
`

func newRelationalStore(db *sql.DB, d dialect) (*relationalStore, error) {
	schema := fmt.Sprintf(relationalSchemaTemplate, d.autoIncrementType)
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, &Failure{Kind: FailureUnavailable, Message: "failed to initialize relational schema", Cause: err}
		}
	}
	return &relationalStore{db: db, dialect: d}, nil
}

// Close releases the underlying *sql.DB's connection pool.
func (r *relationalStore) Close() error {
	return r.db.Close()
}

// RunQuery implements GraphStore.
func (r *relationalStore) RunQuery(ctx context.Context, statement string, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	qctx, cancel := context.WithTimeout(ctx, time.Duration(opts.timeoutMs())*time.Millisecond)
	defer cancel()

	switch statement {
	case QueryResolveLatestActive:
		return r.resolveLatestActive(qctx, params)
	case QueryOutgoingEdges:
		return r.outgoingEdges(qctx, params, opts, onWarning)
	case QueryAnswered:
		return r.answered(qctx, params)
	case QueryCompleted:
		return r.completed(qctx, params)
	default:
		return r.passthrough(qctx, statement, params, opts, onWarning)
	}
}

func (r *relationalStore) resolveLatestActive(ctx context.Context, params map[string]value.Value) (Result, error) {
	id, _ := stringParam(params, "id")
	row := r.db.QueryRowContext(ctx, `SELECT seq, id, label, properties FROM nodes WHERE id = ? AND active = 1 ORDER BY version_number DESC LIMIT 1`, id)
	var seq int64
	var nodeID, label, propsJSON string
	if err := row.Scan(&seq, &nodeID, &label, &propsJSON); err != nil {
		if err == sql.ErrNoRows {
			return Result{}, nil
		}
		return Result{}, classifySQLErr(err)
	}
	n, err := nodeFromRow(seq, nodeID, label, propsJSON)
	if err != nil {
		return Result{}, &Failure{Kind: FailureQueryError, Message: "corrupt node properties", Cause: err}
	}
	return Result{Rows: []Row{{"n": n}}}, nil
}

func (r *relationalStore) outgoingEdges(ctx context.Context, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	fromID, _ := stringParam(params, "fromId")
	rows, err := r.db.QueryContext(ctx, `
SELECT e.seq, e.kind, e.order_in_form, e.ask_when, e.source_node, e.properties,
       n.seq, n.id, n.label, n.properties
FROM edges e
JOIN nodes n ON n.id = e.to_id AND n.active = 1
WHERE e.from_id = ?
ORDER BY e.order_in_form ASC, e.seq ASC`, fromID)
	if err != nil {
		return Result{}, classifySQLErr(err)
	}
	defer rows.Close()

	rowCap := opts.rowCap()
	var out []Row
	truncated := false
	for rows.Next() {
		var edgeSeq int64
		var kind, askWhen, sourceNode, edgeProps string
		var nodeSeq int64
		var nodeID, label, nodeProps string
		if err := rows.Scan(&edgeSeq, &kind, new(int), &askWhen, &sourceNode, &edgeProps, &nodeSeq, &nodeID, &label, &nodeProps); err != nil {
			return Result{}, classifySQLErr(err)
		}
		if len(out) >= rowCap {
			truncated = true
			continue
		}
		props, err := propsFromJSON(edgeProps)
		if err != nil {
			return Result{}, &Failure{Kind: FailureQueryError, Message: "corrupt edge properties", Cause: err}
		}
		props["kind"] = value.String(kind)
		props["askWhen"] = value.String(askWhen)
		props["sourceNode"] = value.String(sourceNode)
		to, err := nodeFromRow(nodeSeq, nodeID, label, nodeProps)
		if err != nil {
			return Result{}, &Failure{Kind: FailureQueryError, Message: "corrupt node properties", Cause: err}
		}
		out = append(out, Row{"r": value.Map(props), "to": to, "edgeSeq": value.Int(edgeSeq)})
	}
	if err := rows.Err(); err != nil {
		return Result{}, classifySQLErr(err)
	}
	if truncated && onWarning != nil {
		onWarning(fmt.Sprintf("result truncated at row cap %d", rowCap))
	}
	return Result{Rows: out, Truncated: truncated}, nil
}

func (r *relationalStore) answered(ctx context.Context, params map[string]value.Value) (Result, error) {
	sourceID, _ := stringParam(params, "sourceId")
	questionID, _ := stringParam(params, "questionId")
	var dp string
	err := r.db.QueryRowContext(ctx, `
SELECT s.datapoint_id FROM supplies s
JOIN answers a ON a.datapoint_id = s.datapoint_id
WHERE s.source_id = ? AND a.question_id = ? LIMIT 1`, sourceID, questionID).Scan(&dp)
	if err != nil {
		if err == sql.ErrNoRows {
			return Result{}, nil
		}
		return Result{}, classifySQLErr(err)
	}
	return Result{Rows: []Row{{"dp": value.String(dp)}}}, nil
}

func (r *relationalStore) completed(ctx context.Context, params map[string]value.Value) (Result, error) {
	anchorID, _ := stringParam(params, "anchorId")
	sectionID, _ := stringParam(params, "sectionId")
	var sectionOut string
	err := r.db.QueryRowContext(ctx, `SELECT section_id FROM completed WHERE anchor_id = ? AND section_id = ? LIMIT 1`, anchorID, sectionID).Scan(&sectionOut)
	if err != nil {
		if err == sql.ErrNoRows {
			return Result{}, nil
		}
		return Result{}, classifySQLErr(err)
	}
	return Result{Rows: []Row{{"s": value.String(sectionOut)}}}, nil
}

// passthrough executes an action-authored SQL body directly. It supports
// both SELECT-shaped bodies (rows scanned generically) and INSERT/UPDATE
// bodies; for CreatePropertyNode convention, a body should end with a
// RETURNING (SQLite) or a trailing `SELECT LAST_INSERT_ID() AS createdId`
// (MySQL) clause.
func (r *relationalStore) passthrough(ctx context.Context, statement string, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	args := make([]interface{}, 0, len(params))
	// Parameters are passed only as sql.Named arguments, in map order;
	// no positional ($1, $2, ...) binding is done.
	named := make([]interface{}, 0, len(params))
	for k, v := range params {
		lit, err := toSQLParam(v)
		if err != nil {
			return Result{}, &Failure{Kind: FailureQueryError, Message: fmt.Sprintf("invalid parameter %q", k), Cause: err}
		}
		named = append(named, sql.Named(k, lit))
	}
	args = named

	rows, err := r.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return Result{}, classifySQLErr(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, classifySQLErr(err)
	}

	rowCap := opts.rowCap()
	var out []Row
	truncated := false
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		scanVals := make([]interface{}, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanVals[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, classifySQLErr(err)
		}
		if len(out) >= rowCap {
			truncated = true
			continue
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = value.FromGo(normalizeDriverValue(scanVals[i]))
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, classifySQLErr(err)
	}
	if truncated && onWarning != nil {
		onWarning(fmt.Sprintf("result truncated at row cap %d", rowCap))
	}
	return Result{Rows: out, Truncated: truncated}, nil
}

func normalizeDriverValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func stringParam(params map[string]value.Value, name string) (string, bool) {
	v, ok := params[name]
	if !ok {
		return "", false
	}
	s, ok := v.AsString()
	return s, ok
}

func propsFromJSON(raw string) (map[string]value.Value, error) {
	if raw == "" {
		return map[string]value.Value{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = value.FromGo(v)
	}
	return out, nil
}

func nodeFromRow(seq int64, id, label, propsJSON string) (value.Value, error) {
	props, err := propsFromJSON(propsJSON)
	if err != nil {
		return value.Null(), err
	}
	props["id"] = value.String(id)
	return value.NodeValue(value.Node{ID: seq, Labels: []string{label}, Properties: props}), nil
}

func toSQLParam(v value.Value) (interface{}, error) {
	switch v.Kind() {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case value.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case value.KindString:
		s, _ := v.AsString()
		return s, nil
	default:
		lit, err := v.ToJSONLiteral()
		if err != nil {
			return nil, err
		}
		return lit, nil
	}
}

func classifySQLErr(err error) error {
	if err == context.DeadlineExceeded {
		return &Failure{Kind: FailureTimeout, Message: "query exceeded timeout", Cause: err}
	}
	return &Failure{Kind: FailureQueryError, Message: "relational store query failed", Cause: err}
}
