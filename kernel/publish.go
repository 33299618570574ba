package kernel

import (
	"context"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/session"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

// handler serves one request that arrived on ch.
type handler func(ctx context.Context, ch transport.Channel, msg *protocol.Message) error

func (k *Kernel) bound() *transport.Transport {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.transport
}

// send transmits msg on ch. Sends are not cancelled with ctx: replies and
// idle status must still go out while the kernel stops.
func (k *Kernel) send(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	tr := k.bound()
	if tr == nil {
		return ErrNotServing
	}
	return tr.Send(context.WithoutCancel(ctx), ch, msg)
}

// publish broadcasts on iopub with the request carried by ctx as parent.
func (k *Kernel) publish(ctx context.Context, msgType string, content any, metadata map[string]any, buffers [][]byte) error {
	msg := protocol.NewMessage(k.session.ID(), k.session.Username(), msgType, content).
		Parent(protocol.ParentHeader(ctx)).
		Metadata(metadata).
		Buffers(buffers).
		Build()
	return k.send(ctx, transport.IOPub, msg)
}

func (k *Kernel) reply(ctx context.Context, ch transport.Channel, req *protocol.Message, content any) error {
	msg := protocol.NewReply(req, k.session.ID(), k.session.Username(), content).Build()
	return k.send(ctx, ch, msg)
}

func (k *Kernel) setStatus(ctx context.Context, status session.Status) {
	k.session.SetStatus(status)
	k.publish(ctx, protocol.StatusMsg, protocol.StatusContent{ExecutionState: string(status)}, nil, nil)
}

// errorReply is the content of an error-status reply to a request whose
// own reply type could not be built.
type errorReply struct {
	Status string `json:"status"`
	protocol.ErrorContent
}

// decode reads msg content into v. On failure a request gets an error reply
// and the returned error is a protocol error.
func (k *Kernel) decode(ctx context.Context, ch transport.Channel, msg *protocol.Message, v any) error {
	err := msg.DecodeContent(v)
	if err == nil {
		return nil
	}

	kerr := &Error{Kind: KindProtocol, Op: "decode " + msg.Type(), Err: err}
	if protocol.IsRequest(msg.Type()) {
		k.reply(ctx, ch, msg, errorReply{
			Status: protocol.StatusError,
			ErrorContent: protocol.ErrorContent{
				EName:     KindProtocol.String(),
				EValue:    err.Error(),
				Traceback: []string{},
			},
		})
	}
	return kerr
}

func errorContent(be *backend.Error) protocol.ErrorContent {
	tb := be.Traceback
	if tb == nil {
		tb = []string{}
	}
	return protocol.ErrorContent{EName: be.Name, EValue: be.Value, Traceback: tb}
}
