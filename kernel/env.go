package kernel

import (
	"context"
	"errors"
	"io"
	"maps"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/comm"
	"github.com/tailored-agentic-units/nbkernel/iostream"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

var errNoDisplayID = errors.New("display update requires a display id")

// execEnv is the backend.Env of one execute_request. Output is published on
// iopub with the request as parent.
type execEnv struct {
	k          *Kernel
	req        *protocol.Message
	allowStdin bool
	streams    *iostream.Capture
}

func (k *Kernel) newEnv(ctx context.Context, req *protocol.Message, allowStdin bool) *execEnv {
	return &execEnv{
		k:          k,
		req:        req,
		allowStdin: allowStdin,
		streams: iostream.New(ctx, func(ctx context.Context, name, text string) error {
			return k.publish(ctx, protocol.StreamMsg, protocol.StreamContent{Name: name, Text: text}, nil, nil)
		}),
	}
}

func (e *execEnv) Stdout() io.Writer { return e.streams.Stdout() }
func (e *execEnv) Stderr() io.Writer { return e.streams.Stderr() }

func (e *execEnv) Display(ctx context.Context, value any, opts backend.DisplayOptions) error {
	msgType := protocol.DisplayData
	if opts.Update {
		if opts.DisplayID == "" {
			return errNoDisplayID
		}
		msgType = protocol.UpdateDisplayData
	}

	bundle := e.k.formatters.Format(ctx, value)
	metadata := bundle.Metadata
	if len(opts.Metadata) > 0 {
		metadata = maps.Clone(metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		maps.Copy(metadata, opts.Metadata)
	}

	content := protocol.DisplayDataContent{
		Data:      bundle.Data,
		Metadata:  metadata,
		Transient: map[string]any{},
	}
	if opts.DisplayID != "" {
		content.Transient["display_id"] = opts.DisplayID
	}
	return e.k.publish(ctx, msgType, content, nil, nil)
}

func (e *execEnv) ClearOutput(ctx context.Context, wait bool) error {
	return e.k.publish(ctx, protocol.ClearOutput, protocol.ClearOutputContent{Wait: wait}, nil, nil)
}

func (e *execEnv) Input(ctx context.Context, prompt string, password bool) (string, error) {
	if !e.allowStdin {
		return "", backend.ErrStdinNotAllowed
	}
	return e.k.requestInput(ctx, e.req, prompt, password)
}

func (e *execEnv) Comms() *comm.Manager {
	return e.k.comms
}

func (e *execEnv) close() error {
	return e.streams.Close()
}

// quietEnv evaluates user_expressions: output is discarded and input is
// refused.
type quietEnv struct {
	comms *comm.Manager
}

func (quietEnv) Stdout() io.Writer { return io.Discard }
func (quietEnv) Stderr() io.Writer { return io.Discard }

func (quietEnv) Display(context.Context, any, backend.DisplayOptions) error { return nil }
func (quietEnv) ClearOutput(context.Context, bool) error                    { return nil }

func (quietEnv) Input(context.Context, string, bool) (string, error) {
	return "", backend.ErrStdinNotAllowed
}

func (q quietEnv) Comms() *comm.Manager { return q.comms }

var (
	_ backend.Env = (*execEnv)(nil)
	_ backend.Env = quietEnv{}
)
