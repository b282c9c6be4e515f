package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"tickvault/internal/logger"
)

// ErrCancelled marks a domain function that stopped because its token was
// set. The partial result returned alongside it is preserved.
var ErrCancelled = errors.New("operation cancelled")

// OperationFunc is the domain-supplied body of an operation. It must check
// the token between units of work and report through the progress manager.
type OperationFunc func(ctx context.Context, progress *ProgressManager, token *CancelToken) (any, error)

// RunSpec bundles everything a domain hands to the orchestrator for one run.
type RunSpec struct {
	Type      string
	Metadata  Metadata
	Renderer  ProgressRenderer
	Estimator Estimator
	Fn        OperationFunc
}

// FinishObserver is notified once per operation after its terminal state is
// written. Used for duration learning, archival and metrics.
type FinishObserver func(op Operation, elapsed time.Duration)

// Orchestrator owns the operation lifecycle: it wires a token and progress
// manager, runs the domain function on its own goroutine and writes the
// terminal state back to the registry. It is domain-agnostic; data loading
// and model training both run through it.
type Orchestrator struct {
	registry  *Registry
	baseCtx   context.Context
	observers []FinishObserver
}

func NewOrchestrator(registry *Registry) *Orchestrator {
	return &Orchestrator{registry: registry, baseCtx: context.Background()}
}

// SetContext injects the host context; its cancellation stops all operations.
func (o *Orchestrator) SetContext(ctx context.Context) {
	if ctx != nil {
		o.baseCtx = ctx
	}
}

// OnFinish registers an observer called after every terminal transition.
func (o *Orchestrator) OnFinish(fn FinishObserver) {
	if fn != nil {
		o.observers = append(o.observers, fn)
	}
}

// Run creates the operation record and launches the domain function as an
// independent task. It returns the pending snapshot immediately.
func (o *Orchestrator) Run(spec RunSpec) (Operation, error) {
	if spec.Fn == nil {
		return Operation{}, fmt.Errorf("operation function is required")
	}
	op, token := o.registry.Create(spec.Type, spec.Metadata)
	manager := NewProgressManager(op.ID, spec.Renderer)
	if spec.Estimator != nil {
		manager.SetEstimator(spec.Estimator)
	}
	manager.AddSink(func(state ProgressState) {
		o.registry.setProgress(op.ID, state)
	})
	go o.execute(op, manager, token, spec)
	return op, nil
}

func (o *Orchestrator) execute(op Operation, manager *ProgressManager, token *CancelToken, spec RunSpec) {
	started := time.Now()
	o.registry.markRunning(op.ID)
	logger.Infof("[ops] %s %s started (%s %s)", spec.Type, op.ID, spec.Metadata.Symbol, spec.Metadata.Timeframe)

	result, err := o.invoke(manager, token, spec)

	status := StatusCompleted
	errMsg := ""
	switch {
	case errors.Is(err, ErrCancelled) || (err == nil && token.Cancelled()):
		status = StatusCancelled
		errMsg = token.Reason()
	case err != nil:
		status = StatusFailed
		errMsg = err.Error()
	}
	payload, marshalErr := marshalResult(result)
	if marshalErr != nil && status == StatusCompleted {
		status = StatusFailed
		errMsg = marshalErr.Error()
	}
	final, ok := o.registry.finish(op.ID, status, payload, errMsg)
	if !ok {
		return
	}
	elapsed := time.Since(started)
	logger.Infof("[ops] %s %s finished status=%s elapsed=%s", spec.Type, op.ID, status, elapsed.Round(time.Millisecond))
	for _, observer := range o.observers {
		observer(final, elapsed)
	}
}

// invoke shields the registry from a panicking domain function: the panic is
// converted into a failed operation instead of taking the process down.
func (o *Orchestrator) invoke(manager *ProgressManager, token *CancelToken, spec RunSpec) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[ops] %s panic: %v\n%s", spec.Type, r, debug.Stack())
			err = fmt.Errorf("operation panic: %v", r)
		}
	}()
	return spec.Fn(o.baseCtx, manager, token)
}

func marshalResult(result any) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling operation result failed: %w", err)
	}
	return payload, nil
}
