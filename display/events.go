package display

import "github.com/tailored-agentic-units/nbkernel/observability"

// EventFormatterError is emitted when a formatter fails and is skipped.
const EventFormatterError observability.EventType = "display.formatter.error"
