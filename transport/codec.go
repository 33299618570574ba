package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Delimiter separates routing identities from the signed message parts.
const Delimiter = "<IDS|MSG>"

var (
	delimiter   = []byte(Delimiter)
	emptyObject = []byte("{}")
)

// Encode serializes msg into wire frames:
//
//	[identities..., <IDS|MSG>, signature, header, parent_header, metadata, content, buffers...]
func Encode(msg *protocol.Message, signer *Signer) ([][]byte, error) {
	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	parent := emptyObject
	if !msg.ParentHeader.IsZero() {
		if parent, err = json.Marshal(msg.ParentHeader); err != nil {
			return nil, fmt.Errorf("encode parent header: %w", err)
		}
	}

	metadata := emptyObject
	if len(msg.Metadata) > 0 {
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
	}

	content, err := encodeContent(msg.Content)
	if err != nil {
		return nil, fmt.Errorf("encode %s content: %w", msg.Header.MsgType, err)
	}

	frames := make([][]byte, 0, len(msg.Identities)+6+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames,
		delimiter,
		signer.Sign(header, parent, metadata, content),
		header,
		parent,
		metadata,
		content,
	)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

func encodeContent(content any) ([]byte, error) {
	switch c := content.(type) {
	case nil:
		return emptyObject, nil
	case json.RawMessage:
		if len(c) == 0 {
			return emptyObject, nil
		}
		return c, nil
	default:
		return json.Marshal(c)
	}
}

// Decode parses and verifies wire frames. Malformed input is reported as
// ErrProtocol and a bad signature as ErrAuth; both leave the caller free to
// drop the message and keep reading.
func Decode(frames [][]byte, signer *Signer, cfg Config) (*protocol.Message, error) {
	split := slices.IndexFunc(frames, func(f []byte) bool {
		return bytes.Equal(f, delimiter)
	})
	if split < 0 {
		return nil, fmt.Errorf("%w: missing %s delimiter", ErrProtocol, Delimiter)
	}

	parts := frames[split+1:]
	if len(parts) < 5 {
		return nil, fmt.Errorf("%w: expected at least 5 frames after delimiter, got %d", ErrProtocol, len(parts))
	}
	if cfg.MaxBuffers > 0 && len(parts)-5 > cfg.MaxBuffers {
		return nil, fmt.Errorf("%w: %d buffers exceeds limit %d", ErrProtocol, len(parts)-5, cfg.MaxBuffers)
	}
	if cfg.MaxFrameBytes > 0 {
		for _, p := range parts {
			if len(p) > cfg.MaxFrameBytes {
				return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrProtocol, len(p), cfg.MaxFrameBytes)
			}
		}
	}

	signature, header, parent, metadata, content := parts[0], parts[1], parts[2], parts[3], parts[4]
	if !signer.Verify(signature, header, parent, metadata, content) {
		return nil, ErrAuth
	}

	msg := &protocol.Message{
		Identities: cloneFrames(frames[:split]),
		Buffers:    cloneFrames(parts[5:]),
	}

	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrProtocol, err)
	}
	if msg.Header.MsgType == "" {
		return nil, fmt.Errorf("%w: header has no msg_type", ErrProtocol)
	}

	var ph protocol.Header
	if err := json.Unmarshal(parent, &ph); err != nil {
		return nil, fmt.Errorf("%w: parent header: %v", ErrProtocol, err)
	}
	if !ph.IsZero() {
		msg.ParentHeader = &ph
	}

	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrProtocol, err)
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}

	if !json.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrProtocol)
	}
	msg.Content = json.RawMessage(slices.Clone(content))

	return msg, nil
}

func cloneFrames(frames [][]byte) [][]byte {
	if len(frames) == 0 {
		return nil
	}
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = slices.Clone(f)
	}
	return out
}
