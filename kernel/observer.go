package kernel

import "github.com/tailored-agentic-units/nbkernel/observability"

// Kernel event types.
const (
	EventStarting        observability.EventType = "kernel.starting"
	EventShutdown        observability.EventType = "kernel.shutdown"
	EventRequest         observability.EventType = "kernel.request"
	EventExecuteStart    observability.EventType = "kernel.execute.start"
	EventExecuteComplete observability.EventType = "kernel.execute.complete"
	EventExecuteAbort    observability.EventType = "kernel.execute.abort"
	EventInterrupt       observability.EventType = "kernel.interrupt"
	EventMessageDropped  observability.EventType = "kernel.message.dropped"
	EventDispatchUnknown observability.EventType = "kernel.dispatch.unknown"
	EventInternalError   observability.EventType = "kernel.internal.error"
	EventHistoryError    observability.EventType = "kernel.history.error"
	EventInputUnmatched  observability.EventType = "kernel.input.unmatched"
)
