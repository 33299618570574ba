package protocol_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/nbkernel/protocol"
)

func TestReplyType(t *testing.T) {
	tests := []struct {
		request string
		want    string
	}{
		{protocol.ExecuteRequest, protocol.ExecuteReply},
		{protocol.CompleteRequest, protocol.CompleteReply},
		{protocol.InspectRequest, protocol.InspectReply},
		{protocol.ObjectInfoRequest, protocol.ObjectInfoReply},
		{protocol.IsCompleteRequest, protocol.IsCompleteReply},
		{protocol.KernelInfoRequest, protocol.KernelInfoReply},
		{protocol.HistoryRequest, protocol.HistoryReply},
		{protocol.ShutdownRequest, protocol.ShutdownReply},
		{protocol.InterruptRequest, protocol.InterruptReply},
		{protocol.CommInfoRequest, protocol.CommInfoReply},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.ReplyType(tt.request))
			assert.True(t, protocol.IsRequest(tt.request))
		})
	}

	assert.False(t, protocol.IsRequest(protocol.CommMsg))
}

func TestNewMessage(t *testing.T) {
	msg := protocol.NewMessage("session-1", "alice", protocol.StatusMsg,
		protocol.StatusContent{ExecutionState: protocol.StateIdle}).Build()

	assert.NotEmpty(t, msg.Header.MsgID)
	assert.Equal(t, "session-1", msg.Header.Session)
	assert.Equal(t, "alice", msg.Header.Username)
	assert.Equal(t, protocol.StatusMsg, msg.Type())
	assert.Equal(t, protocol.ProtocolVersion, msg.Header.Version)
	assert.False(t, msg.Header.Date.IsZero())
	assert.Nil(t, msg.ParentHeader)
	assert.NotNil(t, msg.Metadata)
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg := protocol.NewMessage("s", "u", protocol.StatusMsg, nil).Build()
		require.False(t, seen[msg.Header.MsgID], "duplicate id %s", msg.Header.MsgID)
		seen[msg.Header.MsgID] = true
	}
}

func TestNewReply(t *testing.T) {
	req := protocol.NewMessage("client", "bob", protocol.ExecuteRequest,
		protocol.ExecuteRequestContent{Code: "1+1"}).
		Identities([][]byte{[]byte("router-id")}).
		Build()

	reply := protocol.NewReply(req, "kernel", "kernel", protocol.ExecuteReplyContent{
		Status: protocol.StatusOK,
	}).Build()

	assert.Equal(t, protocol.ExecuteReply, reply.Type())
	require.NotNil(t, reply.ParentHeader)
	assert.Equal(t, req.Header.MsgID, reply.ParentHeader.MsgID)
	assert.Equal(t, req.Identities, reply.Identities)
	assert.Equal(t, "kernel", reply.Header.Session)

	// Parent header is a copy.
	req.Header.MsgID = "changed"
	assert.NotEqual(t, "changed", reply.ParentHeader.MsgID)
}

func TestBuilder_ZeroParent(t *testing.T) {
	msg := protocol.NewMessage("s", "u", protocol.StatusMsg, nil).Parent(&protocol.Header{}).Build()
	assert.Nil(t, msg.ParentHeader)
	assert.True(t, msg.ParentHeader.IsZero())
}

func TestDecodeContent(t *testing.T) {
	t.Run("raw content", func(t *testing.T) {
		msg := &protocol.Message{
			Header:  protocol.Header{MsgType: protocol.ExecuteRequest},
			Content: json.RawMessage(`{"code":"x = 1","silent":true,"store_history":false}`),
		}

		var content protocol.ExecuteRequestContent
		require.NoError(t, msg.DecodeContent(&content))
		assert.Equal(t, "x = 1", content.Code)
		assert.True(t, content.Silent)
		assert.False(t, content.StoreHistory)
	})

	t.Run("typed content", func(t *testing.T) {
		msg := protocol.NewMessage("s", "u", protocol.CompleteRequest,
			protocol.CompleteRequestContent{Code: "pri", CursorPos: 3}).Build()

		var content protocol.CompleteRequestContent
		require.NoError(t, msg.DecodeContent(&content))
		assert.Equal(t, 3, content.CursorPos)
	})

	t.Run("nil content", func(t *testing.T) {
		msg := &protocol.Message{Header: protocol.Header{MsgType: protocol.KernelInfoRequest}}
		var content map[string]any
		require.NoError(t, msg.DecodeContent(&content))
		assert.Empty(t, content)
	})

	t.Run("invalid content", func(t *testing.T) {
		msg := &protocol.Message{Content: json.RawMessage(`{"code": 12}`)}
		var content protocol.ExecuteRequestContent
		assert.Error(t, msg.DecodeContent(&content))
	})
}

func TestReplyContent_OmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(protocol.ExecuteReplyContent{Status: protocol.StatusOK, ExecutionCount: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ename")

	data, err = json.Marshal(protocol.ExecuteReplyContent{
		Status:       protocol.StatusError,
		ErrorContent: &protocol.ErrorContent{EName: "RuntimeError", EValue: "boom", Traceback: []string{}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ename":"RuntimeError"`)
}

func TestParentContext(t *testing.T) {
	assert.Nil(t, protocol.ParentFrom(context.Background()))
	assert.Nil(t, protocol.ParentHeader(context.Background()))

	req := protocol.NewMessage("s", "u", protocol.ExecuteRequest, nil).Build()
	ctx := protocol.WithParent(context.Background(), req)

	assert.Same(t, req, protocol.ParentFrom(ctx))
	assert.Equal(t, req.Header.MsgID, protocol.ParentHeader(ctx).MsgID)
}
