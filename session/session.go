// Package session holds the identity and execution state of a kernel
// session.
package session

// Status is the execution state broadcast to front-ends.
type Status string

const (
	Starting Status = "starting"
	Idle     Status = "idle"
	Busy     Status = "busy"
)

// Session holds the identity, signing key and execution counter of one kernel
// process. Implementations must be safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// Username is reported in the header of every kernel message.
	Username() string
	// Key returns the message signing key.
	Key() []byte
	// ExecutionCount returns the count of the most recent execution.
	ExecutionCount() int
	// NextExecutionCount increments the counter and returns the new value.
	NextExecutionCount() int
	Status() Status
	SetStatus(status Status)
}
