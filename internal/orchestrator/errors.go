package orchestrator

// CriticalCallError is the only error that escapes an [Orchestrator]. It
// means the call cannot continue: the transport has been closed and the
// caller should report the failure to the global call policy.
type CriticalCallError struct {
	// Reason is a short description of the failure, e.g.
	// "config_load_failed: ...".
	Reason string

	// CallID is the persistence id of the call, if one was created.
	CallID string

	// Err is the underlying failure, if any.
	Err error
}

func (e *CriticalCallError) Error() string {
	return "critical call error: " + e.Reason
}

func (e *CriticalCallError) Unwrap() error { return e.Err }
