package query

import (
	"sync"
)

type TraceEventKind string

const (
	TraceEventState              TraceEventKind = "state"
	TraceEventResolvedEntities   TraceEventKind = "resolved_entities"
	TraceEventRetrievedDocuments TraceEventKind = "retrieved_documents"
	TraceEventSelectedDocuments  TraceEventKind = "selected_documents"
	TraceEventDegraded           TraceEventKind = "degraded"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	State     State
	Entities  []string
	Documents int
	Sources   []string

	// Step names the collaborator call that failed for TraceEventDegraded.
	Step       string
	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs or collect them in tests.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func record(t Tracer, event TraceEvent) {
	if t == nil {
		return
	}
	t.Record(event)
}

// QueryTrace collects what one Run did: the state it ended in, the
// identifiers it looked up and the collaborator calls that degraded.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	state     State
	entities  []string
	retrieved int
	selected  []string
	degraded  []string
}

type QueryTraceSnapshot struct {
	State     State
	Entities  []string
	Retrieved int
	Selected  []string
	// Degraded lists the steps that failed, in order.
	Degraded []string
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventState:
		t.state = event.State
	case TraceEventResolvedEntities:
		t.entities = append(t.entities, event.Entities...)
	case TraceEventRetrievedDocuments:
		t.retrieved += event.Documents
	case TraceEventSelectedDocuments:
		t.selected = append(t.selected, event.Sources...)
	case TraceEventDegraded:
		if event.Step != "" {
			t.degraded = append(t.degraded, event.Step)
		}
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		State:     t.state,
		Entities:  append([]string(nil), t.entities...),
		Retrieved: t.retrieved,
		Selected:  append([]string(nil), t.selected...),
		Degraded:  append([]string(nil), t.degraded...),
	}
}
