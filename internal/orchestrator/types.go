package orchestrator

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Phase names, in execution order.
const (
	PhaseLock     = "lock"
	PhaseIndex    = "index"
	PhaseAnnounce = "announce"
)

// BootstrapResult is the aggregate result of a bootstrap run.
type BootstrapResult struct {
	RunID  string                 `json:"runId"`
	Status string                 `json:"status"` // "ok", "error", "in-progress"
	Phases map[string]PhaseResult `json:"phases"`
	Index  *IndexResult           `json:"index,omitempty"`
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "error", "skipped"
	Error  string `json:"error,omitempty"`
}

// IndexResult describes the vector index once it has been ensured.
type IndexResult struct {
	Name      string `json:"name"`
	Host      string `json:"host,omitempty"`
	Dimension int32  `json:"dimension"`
	Metric    string `json:"metric"`
	Cloud     string `json:"cloud,omitempty"`
	Region    string `json:"region,omitempty"`
	Created   bool   `json:"created"`
	Ready     bool   `json:"ready"`
}

// IndexEvent is published once the index is ready to be used.
type IndexEvent struct {
	RunID     string `json:"runId"`
	Index     string `json:"index"`
	Host      string `json:"host,omitempty"`
	Created   bool   `json:"created"`
	Timestamp int64  `json:"timestamp"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
