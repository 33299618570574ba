package kernel

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

// pendingInputs correlates input_reply messages with the input_request
// they answer, keyed by the request's msg_id.
type pendingInputs struct {
	mu      sync.Mutex
	waiting map[string]chan string
}

func newPendingInputs() *pendingInputs {
	return &pendingInputs{waiting: make(map[string]chan string)}
}

func (p *pendingInputs) add(id string) <-chan string {
	ch := make(chan string, 1)
	p.mu.Lock()
	p.waiting[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingInputs) remove(id string) {
	p.mu.Lock()
	delete(p.waiting, id)
	p.mu.Unlock()
}

// deliver hands value to the waiter for id and reports whether there was one.
func (p *pendingInputs) deliver(id, value string) bool {
	p.mu.Lock()
	ch, ok := p.waiting[id]
	delete(p.waiting, id)
	p.mu.Unlock()

	if ok {
		ch <- value
	}
	return ok
}

// cancelAll releases every waiter without a value.
func (p *pendingInputs) cancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.waiting {
		close(ch)
		delete(p.waiting, id)
	}
}

// requestInput asks the front-end that sent req for a line of input and
// waits for the answer or for the execution to be interrupted.
func (k *Kernel) requestInput(ctx context.Context, req *protocol.Message, prompt string, password bool) (string, error) {
	msg := protocol.NewMessage(k.session.ID(), k.session.Username(), protocol.InputRequest,
		protocol.InputRequestContent{Prompt: prompt, Password: password}).
		Parent(&req.Header).
		Identities(req.Identities).
		Build()

	answer := k.stdin.add(msg.Header.MsgID)
	defer k.stdin.remove(msg.Header.MsgID)

	if err := k.send(ctx, transport.Stdin, msg); err != nil {
		return "", err
	}

	select {
	case value, ok := <-answer:
		if !ok {
			return "", backend.ErrInterrupted
		}
		return value, nil
	case <-ctx.Done():
		return "", backend.ErrInterrupted
	}
}

func (k *Kernel) handleInputReply(ctx context.Context, msg *protocol.Message) {
	var reply protocol.InputReplyContent
	if err := msg.DecodeContent(&reply); err != nil {
		k.emit(ctx, EventMessageDropped, observability.LevelWarning, map[string]any{
			"channel": string(transport.Stdin),
			"kind":    KindProtocol.String(),
			"error":   err.Error(),
		})
		return
	}

	if msg.ParentHeader.IsZero() || !k.stdin.deliver(msg.ParentHeader.MsgID, reply.Value) {
		k.emit(ctx, EventInputUnmatched, observability.LevelWarning, map[string]any{
			"msg_id": msg.Header.MsgID,
		})
	}
}
