package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the notebook messaging protocol version spoken by the kernel.
const ProtocolVersion = "5.3"

// Header identifies a single protocol message.
type Header struct {
	MsgID    string    `json:"msg_id"`
	Session  string    `json:"session"`
	Username string    `json:"username"`
	Date     time.Time `json:"date"`
	MsgType  string    `json:"msg_type"`
	Version  string    `json:"version"`
}

// UnmarshalJSON accepts dates with or without a zone and tolerates an
// empty or missing date, which older front-ends send.
func (h *Header) UnmarshalJSON(data []byte) error {
	type plain Header
	var raw struct {
		plain
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*h = Header(raw.plain)
	h.Date = parseDate(raw.Date)
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// IsZero reports whether h is an empty header, as carried by initiating requests.
func (h *Header) IsZero() bool {
	return h == nil || h.MsgID == ""
}

// Message is one protocol message. Identities are the routing prefix frames
// used by request/reply sockets and are never serialized into the JSON parts.
//
// Content holds the typed payload for outgoing messages. Messages decoded from
// the wire keep their content as json.RawMessage; use DecodeContent to read it.
type Message struct {
	Identities   [][]byte
	Header       Header
	ParentHeader *Header
	Metadata     map[string]any
	Content      any
	Buffers      [][]byte
}

// Type returns the message type from the header.
func (msg *Message) Type() string {
	return msg.Header.MsgType
}

// DecodeContent unmarshals the message content into v.
func (msg *Message) DecodeContent(v any) error {
	var raw []byte
	switch c := msg.Content.(type) {
	case nil:
		raw = []byte("{}")
	case json.RawMessage:
		raw = c
	case []byte:
		raw = c
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode content: %w", err)
		}
		raw = data
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s content: %w", msg.Header.MsgType, err)
	}
	return nil
}

func (msg *Message) String() string {
	parent := ""
	if !msg.ParentHeader.IsZero() {
		parent = msg.ParentHeader.MsgID
	}
	return fmt.Sprintf(
		"Message{ID: %s, Type: %s, Session: %s, Parent: %s}",
		msg.Header.MsgID,
		msg.Header.MsgType,
		msg.Header.Session,
		parent,
	)
}

// NewID returns a fresh message identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
