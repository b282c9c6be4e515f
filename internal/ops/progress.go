package ops

import (
	"time"

	"tickvault/internal/logger"
)

// ProgressState is a structured snapshot of how far an operation has come.
// Percentage is clamped to [0,100] and never decreases within one operation.
type ProgressState struct {
	OperationID    string            `json:"operation_id"`
	CurrentStep    int               `json:"current_step"`
	TotalSteps     int               `json:"total_steps"`
	Percentage     float64           `json:"percentage"`
	Message        string            `json:"message"`
	StepDetail     string            `json:"step_detail,omitempty"`
	ItemsProcessed int64             `json:"items_processed"`
	ExpectedItems  int64             `json:"expected_items,omitempty"`
	Context        ProgressContext   `json:"context"`
	Extra          map[string]string `json:"extra,omitempty"`
	EstimatedLeft  time.Duration     `json:"estimated_remaining,omitempty"`
	StartTime      time.Time         `json:"start_time"`
}

// ProgressContext is the closed set of well-known optional context fields the
// renderers understand. Renderer-specific one-offs belong in ProgressState.Extra.
type ProgressContext struct {
	Symbol         string `json:"symbol,omitempty"`
	Timeframe      string `json:"timeframe,omitempty"`
	Mode           string `json:"mode,omitempty"`
	CurrentSegment int    `json:"current_segment,omitempty"`
	TotalSegments  int    `json:"total_segments,omitempty"`
	BarsFetched    int64  `json:"bars_fetched,omitempty"`
	Epoch          int    `json:"epoch,omitempty"`
	Batch          int    `json:"batch,omitempty"`
}

func (s ProgressState) copy() ProgressState {
	out := s
	if s.Extra != nil {
		out.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Estimator refreshes the remaining-time estimate from elapsed time and the
// fraction done. Implementations return ok=false when they have nothing to say.
type Estimator interface {
	Remaining(elapsed time.Duration, fraction float64) (time.Duration, bool)
}

// ProgressSink receives an immutable snapshot after every accepted update.
type ProgressSink func(ProgressState)

// ProgressUpdate is the argument bundle for ProgressManager.Update. Zero
// fields other than Percentage are merged over the previous state.
type ProgressUpdate struct {
	CurrentStep    int
	TotalSteps     int
	Percentage     float64
	Message        string
	StepDetail     string
	ItemsProcessed int64
	ExpectedItems  int64
	Context        *ProgressContext
	Extra          map[string]string
}

// ProgressManager owns the mutable ProgressState of exactly one operation.
// The task running the operation is the only writer; readers only ever see
// copies taken under the manager's lock.
type ProgressManager struct {
	state     ProgressState
	renderer  ProgressRenderer
	estimator Estimator
	sinks     []ProgressSink
}

func NewProgressManager(operationID string, renderer ProgressRenderer) *ProgressManager {
	return &ProgressManager{
		state: ProgressState{
			OperationID: operationID,
			StartTime:   time.Now(),
		},
		renderer: renderer,
	}
}

// SetEstimator wires the remaining-time source. Optional; absent estimates
// simply leave EstimatedLeft at zero.
func (m *ProgressManager) SetEstimator(e Estimator) {
	m.estimator = e
}

// AddSink registers a callback invoked with a snapshot after every accepted
// update. Sinks must not block.
func (m *ProgressManager) AddSink(sink ProgressSink) {
	if sink != nil {
		m.sinks = append(m.sinks, sink)
	}
}

// Update merges u into the state, renders the display message and fans the
// snapshot out to sinks. A percentage below the current value is rejected as
// a no-op so observed progress is monotonic.
func (m *ProgressManager) Update(u ProgressUpdate) {
	pct := u.Percentage
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct < m.state.Percentage {
		logger.Debugf("progress op=%s: ignoring regression %.1f%% -> %.1f%%",
			m.state.OperationID, m.state.Percentage, pct)
		pct = m.state.Percentage
	}
	m.state.Percentage = pct
	if u.CurrentStep > 0 {
		m.state.CurrentStep = u.CurrentStep
	}
	if u.TotalSteps > 0 {
		m.state.TotalSteps = u.TotalSteps
	}
	if u.Message != "" {
		m.state.Message = u.Message
	}
	if u.StepDetail != "" {
		m.state.StepDetail = u.StepDetail
	}
	if u.ItemsProcessed > 0 {
		m.state.ItemsProcessed = u.ItemsProcessed
	}
	if u.ExpectedItems > 0 {
		m.state.ExpectedItems = u.ExpectedItems
	}
	if u.Context != nil {
		m.state.Context = *u.Context
	}
	for k, v := range u.Extra {
		if m.state.Extra == nil {
			m.state.Extra = make(map[string]string)
		}
		m.state.Extra[k] = v
	}
	m.refreshEstimate()
	if m.renderer != nil {
		m.state = m.renderer.Enhance(m.state)
		m.state.Message = m.renderer.Render(m.state)
	}
	snap := m.state.copy()
	for _, sink := range m.sinks {
		sink(snap)
	}
}

func (m *ProgressManager) refreshEstimate() {
	if m.estimator == nil || m.state.Percentage <= 0 {
		return
	}
	elapsed := time.Since(m.state.StartTime)
	if left, ok := m.estimator.Remaining(elapsed, m.state.Percentage/100); ok {
		m.state.EstimatedLeft = left
	}
}

// Snapshot returns a copy of the current state.
func (m *ProgressManager) Snapshot() ProgressState {
	return m.state.copy()
}
