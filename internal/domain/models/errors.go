package models

import "fmt"

// ConfigurationError is fatal to engine startup: missing sink structures or
// invalid threshold configuration. Never retried automatically.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransientIOError wraps sink write failures and feed disconnects. Retried
// with bounded backoff, never stops the engine.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient io: %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// DataError marks a token or sample that was skipped locally: unknown token,
// malformed sample, zero-baseline percent. Never propagated as a crash.
type DataError struct {
	Token  string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data: token %s: %s", e.Token, e.Reason)
}

// StateError reports a redundant lifecycle call. Callers receive the current
// status alongside it; it is informational, not a failure.
type StateError struct {
	Op    string
	State EngineState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state: %s ignored in state %s", e.Op, e.State)
}
