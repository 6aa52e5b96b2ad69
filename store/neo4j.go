package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/arclight-io/qflow/value"
)

// Neo4jStore is the production GraphStore backend: it runs the canonical
// queries (and action-authored query/mutation bodies) as real Cypher
// against a Neo4j cluster.
//
// Neo4jStore never reuses a session across calls — each RunQuery opens a
// session, runs exactly one statement, and closes it, matching spec.md
// §4.1's "never reused across requests for state; each call is an
// independent transaction."
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore opens a driver against uri using basic auth and verifies
// connectivity before returning. Callers own the returned store's lifetime
// and must call Close when done.
func NewNeo4jStore(ctx context.Context, uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, &Failure{Kind: FailureUnavailable, Message: "failed to construct neo4j driver", Cause: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &Failure{Kind: FailureUnavailable, Message: "neo4j connectivity check failed", Cause: err}
	}
	return &Neo4jStore{driver: driver}, nil
}

// Close releases the underlying driver's connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// RunQuery implements GraphStore.
func (s *Neo4jStore) RunQuery(ctx context.Context, statement string, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	timeout := time.Duration(opts.timeoutMs()) * time.Millisecond
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session := s.driver.NewSession(qctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = session.Close(qctx) }()

	raw := make(map[string]interface{}, len(params))
	for k, v := range params {
		lit, err := toDriverParam(v)
		if err != nil {
			return Result{}, &Failure{Kind: FailureQueryError, Message: fmt.Sprintf("invalid parameter %q", k), Cause: err}
		}
		raw[k] = lit
	}

	result, err := session.Run(qctx, statement, raw)
	if err != nil {
		return Result{}, classifyNeo4jErr(err)
	}

	rowCap := opts.rowCap()
	var rows []Row
	truncated := false
	for result.Next(qctx) {
		if len(rows) >= rowCap {
			truncated = true
			continue // consume the remaining records before result.Err and session close
		}
		rows = append(rows, recordToRow(result.Record()))
	}
	if err := result.Err(); err != nil {
		return Result{}, classifyNeo4jErr(err)
	}
	if truncated && onWarning != nil {
		onWarning(fmt.Sprintf("result truncated at row cap %d", rowCap))
	}
	return Result{Rows: rows, Truncated: truncated}, nil
}

func classifyNeo4jErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Message: "query exceeded timeout", Cause: err}
	}
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) {
		return &Failure{Kind: FailureQueryError, Message: neoErr.Msg, Cause: err}
	}
	return &Failure{Kind: FailureUnavailable, Message: "graph store unavailable", Cause: err}
}

// recordToRow converts a neo4j.Record into a Row, collapsing nodes into
// value.Node and leaving scalars/lists/maps to value.FromGo.
func recordToRow(rec *db.Record) Row {
	row := make(Row, len(rec.Keys))
	for i, key := range rec.Keys {
		row[key] = neoValueToValue(rec.Values[i])
	}
	return row
}

func neoValueToValue(v interface{}) value.Value {
	switch t := v.(type) {
	case neo4j.Node:
		return value.NodeValue(value.Node{
			ID:         t.GetId(),
			Labels:     t.Labels,
			Properties: propsToValues(t.Props),
		})
	case neo4j.Relationship:
		return value.Map(propsToValues(t.Props))
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, item := range t {
			items[i] = neoValueToValue(item)
		}
		return value.List(items)
	case map[string]interface{}:
		return value.Map(propsToValues(t))
	default:
		return value.FromGo(v)
	}
}

func propsToValues(props map[string]interface{}) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	for k, v := range props {
		out[k] = neoValueToValue(v)
	}
	return out
}

// toDriverParam converts a value.Value into a type the Neo4j driver accepts
// as a query parameter.
func toDriverParam(v value.Value) (interface{}, error) {
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
	case value.KindList:
		list, _ := v.AsList()
		out := make([]interface{}, len(list))
		for i, item := range list {
			p, err := toDriverParam(item)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]interface{}, len(m))
		for k, item := range m {
			p, err := toDriverParam(item)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case value.KindNode:
		n, _ := v.AsNode()
		return propsToPlain(n.Properties), nil
	default:
		return nil, fmt.Errorf("store: unsupported parameter kind %v", v.Kind())
	}
}

func propsToPlain(props map[string]value.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		p, _ := toDriverParam(v)
		out[k] = p
	}
	return out
}
