package ruletree

import "fmt"

// ValidationError reports a malformed rule tree submitted by a client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// CorruptionError reports stored records that cannot form a single tree.
type CorruptionError struct {
	JobID  string
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.JobID == "" {
		return "corrupt rule tree: " + e.Reason
	}
	return fmt.Sprintf("corrupt rule tree for job %s: %s", e.JobID, e.Reason)
}
