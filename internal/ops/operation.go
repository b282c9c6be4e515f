package ops

import (
	"encoding/json"
	"time"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	TypeDataLoad = "data_load"
	TypeTraining = "training"
)

// TerminalStatus reports whether status is one of the three final states.
func TerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Metadata carries the request parameters an operation was created with.
// Free-form per-domain extras go into Extra.
type Metadata struct {
	Symbol    string            `json:"symbol,omitempty"`
	Timeframe string            `json:"timeframe,omitempty"`
	Mode      string            `json:"mode,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Operation is one tracked unit of long-running, cancellable work. Records
// are mutated only by the owning orchestrator task; everything handed out of
// the registry is a copy.
type Operation struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Metadata  Metadata        `json:"metadata"`
	Progress  ProgressState   `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	EndedAt   time.Time       `json:"ended_at,omitempty"`
}

func (o Operation) copy() Operation {
	out := o
	if o.Result != nil {
		out.Result = append(json.RawMessage(nil), o.Result...)
	}
	out.Progress = o.Progress.copy()
	return out
}
