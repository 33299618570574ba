// Package backend defines the contract between the kernel and an interpreter
// session.
//
// A Backend owns interpreter state and is never called concurrently: the
// kernel serializes every call. Cursor positions are offsets in Unicode code
// points, matching what front-ends send.
package backend

import (
	"context"
	"io"

	"github.com/tailored-agentic-units/nbkernel/comm"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Backend is an interpreter session.
type Backend interface {
	LanguageInfo() protocol.LanguageInfo
	Banner() string

	// Execute evaluates code and returns the value of the cell, or nil when
	// there is nothing to display. Failures in user code are reported as
	// *Error. Execute must return promptly once ctx is cancelled.
	Execute(ctx context.Context, env Env, code string) (any, error)

	Complete(ctx context.Context, code string, cursor int) (Completion, error)
	Inspect(ctx context.Context, code string, cursor, detail int) (Inspection, error)
	IsComplete(ctx context.Context, code string) (Completeness, error)
	ObjectInfo(ctx context.Context, code string, cursor int) (ObjectInfo, error)
}

// Env is the kernel side of one execution. It is only valid until Execute
// returns.
type Env interface {
	Stdout() io.Writer
	Stderr() io.Writer

	// Display renders value through the kernel's formatters and publishes it.
	Display(ctx context.Context, value any, opts DisplayOptions) error
	ClearOutput(ctx context.Context, wait bool) error

	// Input asks the requesting front-end for a line of text. It returns
	// ErrStdinNotAllowed when the request did not allow stdin.
	Input(ctx context.Context, prompt string, password bool) (string, error)

	Comms() *comm.Manager
}

// DisplayOptions control how Env.Display publishes a value.
type DisplayOptions struct {
	// DisplayID tags the output so it can be updated later.
	DisplayID string
	// Update replaces the output previously published with DisplayID.
	Update   bool
	Metadata map[string]any
}

// Completion is the result of a completion request. CursorStart and CursorEnd
// delimit the text the matches replace.
type Completion struct {
	Matches     []string
	CursorStart int
	CursorEnd   int
	Metadata    map[string]any
}

// Inspection is the documentation found for the name at the cursor.
type Inspection struct {
	Found    bool
	Data     map[string]any
	Metadata map[string]any
}

// Completeness statuses.
const (
	Complete   = "complete"
	Incomplete = "incomplete"
	Invalid    = "invalid"
	Unknown    = "unknown"
)

// Completeness reports whether code is ready to run. Indent is a hint for the
// next line when the code is incomplete.
type Completeness struct {
	Status string
	Indent string
}

// ObjectInfo is structured metadata about the name at the cursor.
type ObjectInfo struct {
	Name       string
	Found      bool
	TypeName   string
	StringForm string
	Docstring  string
	Definition string
}
