package models

import "time"

// EngineState is the lifecycle state of the signal engine.
type EngineState string

const (
	EngineStopped  EngineState = "STOPPED"
	EngineStarting EngineState = "STARTING"
	EngineRunning  EngineState = "RUNNING"
	EngineStopping EngineState = "STOPPING"
)

// EngineStatus is the single process-wide status record. It is mutated only
// inside controller transitions.
type EngineStatus struct {
	State           EngineState `json:"state"`
	LastWindowStart time.Time   `json:"last_window_start"`
	LastError       string      `json:"last_error,omitempty"`
	TrackedTokens   int         `json:"tracked_tokens"`
}
