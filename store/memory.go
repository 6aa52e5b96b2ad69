package store

import (
	"context"
	"sort"
	"sync"

	"github.com/arclight-io/qflow/value"
)

// memNode is one version of a vertex kept by MemoryStore.
type memNode struct {
	seq        int64
	id         string
	label      string
	version    int
	active     bool
	properties map[string]value.Value
}

// memEdge is one PRECEDES/TRIGGERS edge kept by MemoryStore.
type memEdge struct {
	seq         int64
	kind        string
	fromID      string
	toID        string
	orderInForm int
	askWhen     string
	sourceNode  string
	properties  map[string]value.Value
}

type memSupply struct {
	sourceID     string
	datapointID  string
}

type memAnswer struct {
	datapointID string
	questionID  string
}

type memCompleted struct {
	anchorID  string
	sectionID string
}

// ActionHandler answers an action body statement the engine does not
// itself issue (CreatePropertyNode/MarkSectionComplete query bodies are
// authored per schema, so MemoryStore cannot interpret them
// generically the way the relational backends interpret plain SQL).
type ActionHandler func(ctx context.Context, params map[string]value.Value) (Result, error)

// MemoryStore is the in-memory GraphStore test double: a hand-seeded graph
// plus a registry of handlers for action-authored statements, so engine and
// session tests can exercise the full traversal without a real database.
type MemoryStore struct {
	mu         sync.Mutex
	seq        int64
	nodes      []memNode
	edges      []memEdge
	supplies   []memSupply
	answers    []memAnswer
	completed  []memCompleted
	handlers   map[string]ActionHandler
}

// NewMemoryStore returns an empty MemoryStore ready to be seeded via
// AddNode/AddEdge/AddSupplies/AddAnswer/AddCompleted.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{handlers: make(map[string]ActionHandler)}
}

func (m *MemoryStore) nextSeq() int64 {
	m.seq++
	return m.seq
}

// AddNode seeds a vertex version. Properties is copied defensively.
func (m *MemoryStore) AddNode(id, label string, version int, active bool, properties map[string]value.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = append(m.nodes, memNode{
		seq:        m.nextSeq(),
		id:         id,
		label:      label,
		version:    version,
		active:     active,
		properties: copyProps(properties),
	})
}

// AddEdge seeds a PRECEDES or TRIGGERS edge.
func (m *MemoryStore) AddEdge(kind, fromID, toID string, orderInForm int, askWhen, sourceNode string, properties map[string]value.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, memEdge{
		seq:         m.nextSeq(),
		kind:        kind,
		fromID:      fromID,
		toID:        toID,
		orderInForm: orderInForm,
		askWhen:     askWhen,
		sourceNode:  sourceNode,
		properties:  copyProps(properties),
	})
}

// AddSupplies seeds a SUPPLIES edge from a source node to a datapoint.
func (m *MemoryStore) AddSupplies(sourceID, datapointID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplies = append(m.supplies, memSupply{sourceID: sourceID, datapointID: datapointID})
}

// AddAnswer seeds an ANSWERS edge from a datapoint to a question.
func (m *MemoryStore) AddAnswer(datapointID, questionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, memAnswer{datapointID: datapointID, questionID: questionID})
}

// AddCompleted seeds a COMPLETED edge from an anchor node to a section.
func (m *MemoryStore) AddCompleted(anchorID, sectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, memCompleted{anchorID: anchorID, sectionID: sectionID})
}

// RegisterHandler installs fn as the responder for an action-authored
// statement. Tests register one handler per distinct Action.Body string
// used by the schema under test.
func (m *MemoryStore) RegisterHandler(statement string, fn ActionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[statement] = fn
}

// RunQuery implements GraphStore.
func (m *MemoryStore) RunQuery(ctx context.Context, statement string, params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &Failure{Kind: FailureTimeout, Message: "query context already done", Cause: err}
	}

	m.mu.Lock()

	switch statement {
	case QueryResolveLatestActive:
		defer m.mu.Unlock()
		return m.resolveLatestActiveLocked(params)
	case QueryOutgoingEdges:
		defer m.mu.Unlock()
		return m.outgoingEdgesLocked(params, opts, onWarning)
	case QueryAnswered:
		defer m.mu.Unlock()
		return m.answeredLocked(params)
	case QueryCompleted:
		defer m.mu.Unlock()
		return m.completedLocked(params)
	default:
		// Handlers run without the store's lock held, so a handler may
		// seed the store itself (e.g. AddCompleted).
		handler, ok := m.handlers[statement]
		m.mu.Unlock()
		if !ok {
			return Result{}, &Failure{Kind: FailureQueryError, Message: "memory store: no handler registered for statement"}
		}
		return handler(ctx, params)
	}
}

func (m *MemoryStore) resolveLatestActiveLocked(params map[string]value.Value) (Result, error) {
	id, _ := stringParam(params, "id")
	var best *memNode
	for i := range m.nodes {
		n := &m.nodes[i]
		if n.id != id || !n.active {
			continue
		}
		if best == nil || n.version > best.version {
			best = n
		}
	}
	if best == nil {
		return Result{}, nil
	}
	return Result{Rows: []Row{{"n": nodeToValue(best)}}}, nil
}

func (m *MemoryStore) outgoingEdgesLocked(params map[string]value.Value, opts QueryOptions, onWarning func(string)) (Result, error) {
	fromID, _ := stringParam(params, "fromId")
	var matched []*memEdge
	for i := range m.edges {
		e := &m.edges[i]
		if e.fromID != fromID {
			continue
		}
		if !m.isLatestActiveLocked(e.toID) {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].orderInForm != matched[j].orderInForm {
			return matched[i].orderInForm < matched[j].orderInForm
		}
		return matched[i].seq < matched[j].seq
	})

	rowCap := opts.rowCap()
	truncated := len(matched) > rowCap
	if truncated {
		matched = matched[:rowCap]
	}
	rows := make([]Row, 0, len(matched))
	for _, e := range matched {
		to := m.latestActiveNodeLocked(e.toID)
		props := copyProps(e.properties)
		props["kind"] = value.String(e.kind)
		props["askWhen"] = value.String(e.askWhen)
		props["sourceNode"] = value.String(e.sourceNode)
		rows = append(rows, Row{"r": value.Map(props), "to": nodeToValue(to), "edgeSeq": value.Int(e.seq)})
	}
	if truncated && onWarning != nil {
		onWarning("result truncated at row cap")
	}
	return Result{Rows: rows, Truncated: truncated}, nil
}

func (m *MemoryStore) isLatestActiveLocked(id string) bool {
	return m.latestActiveNodeLocked(id) != nil
}

func (m *MemoryStore) latestActiveNodeLocked(id string) *memNode {
	var best *memNode
	for i := range m.nodes {
		n := &m.nodes[i]
		if n.id != id || !n.active {
			continue
		}
		if best == nil || n.version > best.version {
			best = n
		}
	}
	return best
}

func (m *MemoryStore) answeredLocked(params map[string]value.Value) (Result, error) {
	sourceID, _ := stringParam(params, "sourceId")
	questionID, _ := stringParam(params, "questionId")
	for _, s := range m.supplies {
		if s.sourceID != sourceID {
			continue
		}
		for _, a := range m.answers {
			if a.datapointID == s.datapointID && a.questionID == questionID {
				return Result{Rows: []Row{{"dp": value.String(a.datapointID)}}}, nil
			}
		}
	}
	return Result{}, nil
}

func (m *MemoryStore) completedLocked(params map[string]value.Value) (Result, error) {
	anchorID, _ := stringParam(params, "anchorId")
	sectionID, _ := stringParam(params, "sectionId")
	for _, c := range m.completed {
		if c.anchorID == anchorID && c.sectionID == sectionID {
			return Result{Rows: []Row{{"s": value.String(sectionID)}}}, nil
		}
	}
	return Result{}, nil
}

func nodeToValue(n *memNode) value.Value {
	props := copyProps(n.properties)
	props["id"] = value.String(n.id)
	return value.NodeValue(value.Node{ID: n.seq, Labels: []string{n.label}, Properties: props})
}

func copyProps(props map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
