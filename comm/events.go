package comm

import "github.com/tailored-agentic-units/nbkernel/observability"

// Comm event types.
const (
	EventOpen          observability.EventType = "comm.open"
	EventClose         observability.EventType = "comm.close"
	EventTargetUnknown observability.EventType = "comm.target.unknown"
	EventUnknownComm   observability.EventType = "comm.unknown"
	EventHandlerError  observability.EventType = "comm.handler.error"
)
