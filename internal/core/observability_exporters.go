package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

type opStats struct {
	totalMS   float64
	slowestMS float64
	succeeded int64
	failed    int64
}

// ExpvarMetricsRecorder keeps per-operation timings and outcome counts and
// exposes them on /debug/vars.
type ExpvarMetricsRecorder struct {
	name string

	mu  sync.Mutex
	ops map[string]*opStats
}

// ExpvarMetricsSnapshot is the JSON document published under the recorder name.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	SlowestMS   map[string]float64          `json:"durations_ms_max"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated gibiertrace_custody_metrics_N name when empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("gibiertrace_custody_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*opStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder. Observations without an operation are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.ops[operation]
	if !ok {
		st = &opStats{}
		r.ops[operation] = st
	}
	st.totalMS += ms
	st.slowestMS = max(st.slowestMS, ms)
	if success {
		st.succeeded++
	} else {
		st.failed++
	}
}

// Snapshot copies the current counters.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64, len(r.ops)),
		SlowestMS:   make(map[string]float64, len(r.ops)),
		Results:     make(map[string]map[string]int64, len(r.ops)),
		RecordedAt:  time.Now().UTC(),
	}
	for op, st := range r.ops {
		snap.DurationsMS[op] = st.totalMS
		snap.SlowestMS[op] = st.slowestMS
		snap.Results[op] = map[string]int64{"success": st.succeeded, "error": st.failed}
	}
	return snap
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes one JSON line per finished span and keeps the spans
// in memory. serve --trace-file points it at a file.
type JSONTraceTracer struct {
	mu      sync.Mutex
	w       io.Writer
	entries []JSONTraceEntry
}

// NewJSONTracer returns a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{w: w}
}

// Entries returns the spans finished so far.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	started := time.Now().UTC()
	return ctx, spanFunc(func(err error) {
		ended := time.Now().UTC()
		entry := JSONTraceEntry{
			Operation:  operation,
			Status:     "success",
			DurationMS: float64(ended.Sub(started)) / float64(time.Millisecond),
			StartedAt:  started,
			EndedAt:    ended,
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
		}
		t.finish(entry)
	})
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.w == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_, _ = t.w.Write(append(line, '\n'))
}

type spanFunc func(err error)

func (f spanFunc) End(err error) { f(err) }

// MultiMetricsRecorder fans each observation out to every recorder.
type MultiMetricsRecorder []MetricsRecorder

// Observe implements MetricsRecorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range m {
		if rec != nil {
			rec.Observe(ctx, operation, success, duration)
		}
	}
}

// LogAuditRecorder writes audit entries to a Logger. Failed operations are
// logged at warn level.
type LogAuditRecorder struct {
	Logger Logger
}

// Record implements AuditRecorder.
func (r LogAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	args := []any{
		"operation", entry.Operation,
		"entity", entry.Entity,
		"entity_id", entry.EntityID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"duration", entry.Duration,
	}
	if entry.Status == AuditStatusError {
		r.Logger.Warn("audit", append(args, "error", entry.Error)...)
		return
	}
	r.Logger.Info("audit", args...)
}
