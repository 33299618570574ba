package protocol

import (
	"slices"
	"time"
)

type MessageBuilder struct {
	message *Message
}

// NewMessage starts a message of the given type owned by the session.
func NewMessage(session, username, msgType string, content any) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			Header: Header{
				MsgID:    NewID(),
				Session:  session,
				Username: username,
				Date:     time.Now().UTC(),
				MsgType:  msgType,
				Version:  ProtocolVersion,
			},
			Metadata: map[string]any{},
			Content:  content,
		},
	}
}

// NewReply starts the reply to req. The reply type is the request type with
// the "_reply" suffix, the parent is the request header and the routing
// identities are copied so the reply reaches the requesting client.
func NewReply(req *Message, session, username string, content any) *MessageBuilder {
	return NewMessage(session, username, ReplyType(req.Header.MsgType), content).
		Parent(&req.Header).
		Identities(req.Identities)
}

func (mb *MessageBuilder) Parent(parent *Header) *MessageBuilder {
	if parent.IsZero() {
		mb.message.ParentHeader = nil
		return mb
	}
	p := *parent
	mb.message.ParentHeader = &p
	return mb
}

func (mb *MessageBuilder) Identities(ids [][]byte) *MessageBuilder {
	mb.message.Identities = slices.Clone(ids)
	return mb
}

func (mb *MessageBuilder) Metadata(metadata map[string]any) *MessageBuilder {
	if metadata == nil {
		metadata = map[string]any{}
	}
	mb.message.Metadata = metadata
	return mb
}

func (mb *MessageBuilder) Buffers(buffers [][]byte) *MessageBuilder {
	mb.message.Buffers = buffers
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}
