package graph

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/arclight-io/qflow/value"
)

// Request is a single traversal invocation's input (spec.md §4.7 step 1):
// the section to resume at and the applicant-supplied input parameters.
type Request struct {
	SectionID string
	Inputs    map[string]value.Value
}

// VarEntry reports one materialised variable's parsed value alongside the
// evaluator's unprocessed return (spec.md §4.7: the vars field carries both).
type VarEntry struct {
	Value value.Value `json:"value"`
	Raw   value.Value `json:"raw"`
}

// Response is the JSON-ready shape spec.md §4.7 defines.
type Response struct {
	SectionID        string              `json:"sectionId"`
	Question         *Question           `json:"question"`
	NextSectionID    *string             `json:"nextSectionId"`
	CreatedNodeIds   []value.Value       `json:"createdNodeIds"`
	Completed        bool                `json:"completed"`
	RequestVariables map[string]value.Value `json:"requestVariables"`
	SourceNode       *value.Value        `json:"sourceNode"`
	Vars             map[string]VarEntry `json:"vars"`
	Warnings         []Warning           `json:"warnings"`
}

// Session binds an Engine to the Session/Response assembler (spec.md §4.7,
// component C6). It carries no per-request state of its own — every field
// of a request's traversal lives on the Context Run builds — so a single
// Session is safe to reuse and share across concurrent requests.
type Session struct {
	engine *Engine
}

// NewSession wraps engine for request handling.
func NewSession(engine *Engine) *Session {
	return &Session{engine: engine}
}

// Run implements spec.md §4.7's construction order: validate the request,
// build a fresh Context, invoke Traverse, and shape the response. traceID
// identifies the request for logging/emit purposes only — it never
// participates in traversal semantics. An empty traceID gets a generated
// uuid so every request is still traceable through logs and emitted events.
func (s *Session) Run(ctx context.Context, traceID string, req Request) (*Response, error) {
	return Run(ctx, s.engine, traceID, req)
}

// Run is the free-function form of Session.Run, for callers that would
// rather hold an *Engine directly than wrap it in a Session.
func Run(ctx context.Context, engine *Engine, traceID string, req Request) (*Response, error) {
	if req.SectionID == "" {
		return nil, newError(ErrorInvalidRequest, "sectionId is required", nil)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	section, err := engine.ResolveSection(ctx, req.SectionID)
	if err != nil {
		return nil, err
	}
	if err := validateInputs(section, req.Inputs); err != nil {
		return nil, err
	}

	gctx := NewContext(traceID, req.Inputs)
	question, err := engine.Traverse(ctx, req.SectionID, gctx)
	if err != nil {
		return nil, err
	}

	return shapeResponse(req, gctx, question), nil
}

// validateInputs checks that every input parameter the section declares is
// present in the request (spec.md §4.7 step 1), ahead of any traversal.
func validateInputs(section *Section, inputs map[string]value.Value) error {
	missing := make([]string, 0)
	for _, name := range section.InputParams {
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	msg := "missing required input parameter"
	if len(missing) > 1 {
		msg += "s"
	}
	for i, name := range missing {
		if i > 0 {
			msg += ","
		}
		msg += " " + name
	}
	return newError(ErrorInvalidRequest, msg, nil)
}

func shapeResponse(req Request, gctx *Context, question *Question) *Response {
	var nextSectionID *string
	if id, ok := gctx.NextSectionID(); ok {
		nextSectionID = &id
	}

	var sourceNode *value.Value
	if sn := gctx.SourceNode(); !sn.IsNull() {
		v := sn
		sourceNode = &v
	}

	materialized := gctx.MaterializedVars()
	vars := make(map[string]VarEntry, len(materialized))
	for name, entry := range materialized {
		vars[name] = VarEntry{Value: entry.value, Raw: entry.raw}
	}

	createdNodeIds := gctx.CreatedNodeIDs()
	if createdNodeIds == nil {
		createdNodeIds = []value.Value{}
	}

	warnings := gctx.Warnings()
	if warnings == nil {
		warnings = []Warning{}
	}

	return &Response{
		SectionID:        req.SectionID,
		Question:         question,
		NextSectionID:    nextSectionID,
		CreatedNodeIds:   createdNodeIds,
		Completed:        gctx.Completed(),
		RequestVariables: req.Inputs,
		SourceNode:       sourceNode,
		Vars:             vars,
		Warnings:         warnings,
	}
}
