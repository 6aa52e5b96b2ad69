package store

// Canonical queries the TraversalEngine itself issues (as opposed to
// queries authored in an Action body by a schema designer). Every
// GraphStore backend — Neo4j, SQLite, MySQL, or the in-memory test double —
// recognizes these exact statement strings and must answer them with the
// same row shape, so the engine never special-cases its backend.
//
// Parameters referenced by each query are documented inline; all backends
// bind them the same way a real Cypher/SQL driver would (named parameters,
// never string concatenation).
const (
	// QueryResolveLatestActive resolves the latest-active version of the
	// node identified by $id (spec.md §4.5 step 1, §9 "implemented as a
	// graph query predicate, not in-memory filtering").
	//
	// Returns at most one row: {"n": <node>}.
	QueryResolveLatestActive = `MATCH (n {id: $id})
WHERE coalesce(n.active, true) = true
WITH n ORDER BY n.versionNumber DESC
RETURN n LIMIT 1`

	// QueryOutgoingEdges enumerates PRECEDES/TRIGGERS edges leaving the
	// node $fromId whose target is itself a latest-active node, ordered by
	// orderInForm ascending then by the store's own creation-order column
	// (spec.md §4.5 step 3, §5 "edges ... evaluated in strict orderInForm
	// ascending order").
	//
	// Returns one row per edge: {"r": <edge properties map, incl. "kind",
	// "orderInForm", "askWhen", "sourceNode">, "to": <node>, "edgeSeq": <int>}.
	QueryOutgoingEdges = `MATCH (from {id: $fromId})-[r:PRECEDES|TRIGGERS]->(to)
WHERE coalesce(to.active, true) = true
RETURN r, to, id(r) AS edgeSeq
ORDER BY r.orderInForm ASC, edgeSeq ASC`

	// QueryAnswered is the canonical answered-ness check (spec.md §4.5 step
	// 6): does a datapoint supplied by $sourceId answer $questionId?
	//
	// Returns one row if answered, zero rows otherwise: {"dp": <node>}.
	QueryAnswered = `MATCH (source {id: $sourceId})-[:SUPPLIES]->(dp:Datapoint)-[:ANSWERS]->(q:Question {id: $questionId})
RETURN dp LIMIT 1`

	// QueryCompleted is the idempotent-completion check: the engine runs
	// it after a traversal that returned no question and ran no
	// MarkSectionComplete action, to see whether the anchor already
	// carries a COMPLETED relationship to $sectionId.
	//
	// Returns one row if a COMPLETED edge already exists, zero otherwise.
	QueryCompleted = `MATCH (anchor {id: $anchorId})-[:COMPLETED]->(s:Section {id: $sectionId})
RETURN s LIMIT 1`
)
