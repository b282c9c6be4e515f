package ops

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows Registry.List output. Zero fields match everything.
type ListFilter struct {
	Type   string
	Status string
}

type record struct {
	op    Operation
	token *CancelToken
}

// Registry is the process-wide source of truth for operation lifecycle
// records. External pollers read copies; the one task running an operation is
// the only mutator of its record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record)}
}

// Create allocates a pending operation plus its cancellation token.
func (r *Registry) Create(opType string, meta Metadata) (Operation, *CancelToken) {
	op := Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Status:    StatusPending,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
	op.Progress.OperationID = op.ID
	token := NewCancelToken()
	r.mu.Lock()
	r.records[op.ID] = &record{op: op, token: token}
	r.mu.Unlock()
	return op.copy(), token
}

// Get returns a snapshot of the operation.
func (r *Registry) Get(id string) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Operation{}, false
	}
	return rec.op.copy(), true
}

// Token exposes the cancellation token for the owning task.
func (r *Registry) Token(id string) (*CancelToken, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.token, true
}

// RequestCancel sets the operation's token. It succeeds (and is a no-op) for
// operations that already reached a terminal state.
func (r *Registry) RequestCancel(id, reason string) error {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("operation %s not found", id)
	}
	rec.token.RequestCancel(reason)
	return nil
}

// List returns snapshots matching the filter, newest first.
func (r *Registry) List(filter ListFilter) []Operation {
	r.mu.RLock()
	out := make([]Operation, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Type != "" && rec.op.Type != filter.Type {
			continue
		}
		if filter.Status != "" && rec.op.Status != filter.Status {
			continue
		}
		out = append(out, rec.op.copy())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ActiveForKey reports whether a non-terminal operation of opType exists for
// the given symbol/timeframe. Used by the tail scheduler to avoid piling up
// duplicate loads.
func (r *Registry) ActiveForKey(opType, symbol, timeframe string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.op.Type != opType || TerminalStatus(rec.op.Status) {
			continue
		}
		if rec.op.Metadata.Symbol == symbol && rec.op.Metadata.Timeframe == timeframe {
			return true
		}
	}
	return false
}

// markRunning transitions pending -> running. Called only by the owning task.
func (r *Registry) markRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.op.Status != StatusPending {
		return
	}
	rec.op.Status = StatusRunning
	rec.op.StartedAt = time.Now()
}

// setProgress stores the latest progress snapshot. Called only by the owning
// task via the manager's sink.
func (r *Registry) setProgress(id string, state ProgressState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		rec.op.Progress = state
	}
}

// finish writes the terminal state. Terminal states are final: a second call
// is ignored.
func (r *Registry) finish(id, status string, result json.RawMessage, errMsg string) (Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || TerminalStatus(rec.op.Status) {
		return Operation{}, false
	}
	rec.op.Status = status
	rec.op.Result = result
	rec.op.Error = errMsg
	rec.op.EndedAt = time.Now()
	return rec.op.copy(), true
}
