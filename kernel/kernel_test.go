package kernel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/comm"
	"github.com/tailored-agentic-units/nbkernel/kernel"
	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

const waitFor = 5 * time.Second

func memoryInfo() transport.ConnectionInfo {
	return transport.ConnectionInfo{
		Transport:       "memory",
		IP:              "kernel",
		ShellPort:       1,
		ControlPort:     2,
		IOPubPort:       3,
		StdinPort:       4,
		HBPort:          5,
		SignatureScheme: "hmac-sha256",
		Key:             "secret",
	}
}

// frontend is a test client connected to every kernel channel.
type frontend struct {
	t       *testing.T
	k       *kernel.Kernel
	events  *observability.Recorder
	signer  *transport.Signer
	session string
	conns   map[transport.Channel]*transport.MemoryClient
	done    chan error
	cancel  context.CancelFunc
}

func start(t *testing.T, opts ...kernel.Option) *frontend {
	t.Helper()

	provider := transport.NewMemoryProvider(256)
	events := observability.NewRecorder()
	opts = append([]kernel.Option{
		kernel.WithProviders(provider),
		kernel.WithObserver(events),
	}, opts...)

	k, err := kernel.New(nil, memoryInfo(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f := &frontend{
		t:       t,
		k:       k,
		events:  events,
		session: "frontend-session",
		conns:   make(map[transport.Channel]*transport.MemoryClient),
		done:    make(chan error, 1),
		cancel:  cancel,
	}
	go func() { f.done <- k.Serve(ctx) }()

	select {
	case <-k.Ready():
	case err := <-f.done:
		t.Fatalf("Serve returned before ready: %v", err)
	case <-time.After(waitFor):
		t.Fatal("kernel did not become ready")
	}

	f.signer, err = transport.NewSigner("hmac-sha256", []byte("secret"))
	require.NoError(t, err)

	for _, ch := range transport.Channels {
		endpoint, err := memoryInfo().Endpoint(ch)
		require.NoError(t, err)
		c, err := provider.Dial(endpoint)
		require.NoError(t, err)
		f.conns[ch] = c
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(waitFor):
			t.Error("Serve did not stop")
		}
	})

	starting := f.recv(transport.IOPub)
	require.Equal(t, protocol.StatusMsg, starting.Type())
	assert.Equal(t, protocol.StateStarting, f.status(starting))
	assert.Nil(t, starting.ParentHeader)

	return f
}

func (f *frontend) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	f.t.Cleanup(cancel)
	return ctx
}

func (f *frontend) send(ch transport.Channel, msg *protocol.Message) {
	f.t.Helper()
	frames, err := transport.Encode(msg, f.signer)
	require.NoError(f.t, err)
	require.NoError(f.t, f.conns[ch].Send(f.ctx(), frames...))
}

func (f *frontend) request(ch transport.Channel, msgType string, content any) *protocol.Message {
	f.t.Helper()
	msg := protocol.NewMessage(f.session, "tester", msgType, content).
		Identities([][]byte{[]byte("client-1")}).
		Build()
	f.send(ch, msg)
	return msg
}

func (f *frontend) recv(ch transport.Channel) *protocol.Message {
	f.t.Helper()
	frames, err := f.conns[ch].Recv(f.ctx())
	require.NoError(f.t, err, "waiting on %s", ch)
	msg, err := transport.Decode(frames, f.signer, transport.DefaultConfig())
	require.NoError(f.t, err)
	return msg
}

// reply reads the next message on ch and checks it answers req.
func (f *frontend) reply(ch transport.Channel, req *protocol.Message, content any) *protocol.Message {
	f.t.Helper()
	msg := f.recv(ch)
	require.Equal(f.t, protocol.ReplyType(req.Type()), msg.Type())
	require.NotNil(f.t, msg.ParentHeader)
	require.Equal(f.t, req.Header.MsgID, msg.ParentHeader.MsgID)
	assert.Equal(f.t, [][]byte{[]byte("client-1")}, msg.Identities)
	if content != nil {
		require.NoError(f.t, msg.DecodeContent(content))
	}
	return msg
}

// iopub collects broadcasts caused by req up to and including its idle
// status.
func (f *frontend) iopub(req *protocol.Message) []*protocol.Message {
	f.t.Helper()
	var out []*protocol.Message
	for {
		msg := f.recv(transport.IOPub)
		require.NotNil(f.t, msg.ParentHeader, "iopub %s without parent", msg.Type())
		require.Equal(f.t, req.Header.MsgID, msg.ParentHeader.MsgID)
		out = append(out, msg)
		if msg.Type() == protocol.StatusMsg && f.status(msg) == protocol.StateIdle {
			return out
		}
	}
}

func (f *frontend) status(msg *protocol.Message) string {
	var s protocol.StatusContent
	require.NoError(f.t, msg.DecodeContent(&s))
	return s.ExecutionState
}

func (f *frontend) execute(code string, mutate ...func(*protocol.ExecuteRequestContent)) *protocol.Message {
	content := protocol.ExecuteRequestContent{Code: code, StoreHistory: true}
	for _, m := range mutate {
		m(&content)
	}
	return f.request(transport.Shell, protocol.ExecuteRequest, content)
}

func types(msgs []*protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type()
	}
	return out
}

func find(t *testing.T, msgs []*protocol.Message, msgType string, content any) *protocol.Message {
	t.Helper()
	for _, m := range msgs {
		if m.Type() == msgType {
			if content != nil {
				require.NoError(t, m.DecodeContent(content))
			}
			return m
		}
	}
	t.Fatalf("no %s in %v", msgType, types(msgs))
	return nil
}

func TestKernel_KernelInfo(t *testing.T) {
	f := start(t)

	req := f.request(transport.Shell, protocol.KernelInfoRequest, struct{}{})
	var info protocol.KernelInfoReplyContent
	f.reply(transport.Shell, req, &info)

	assert.Equal(t, protocol.StatusOK, info.Status)
	assert.Equal(t, protocol.ProtocolVersion, info.ProtocolVersion)
	assert.Equal(t, kernel.Implementation, info.Implementation)
	assert.Equal(t, "calc", info.LanguageInfo.Name)
	assert.NotEmpty(t, info.Banner)

	assert.Equal(t, []string{protocol.StatusMsg, protocol.StatusMsg}, types(f.iopub(req)))
}

func TestKernel_ExecuteScenario(t *testing.T) {
	f := start(t)

	req := f.execute("1+1")
	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 1, reply.ExecutionCount)
	assert.Nil(t, reply.ErrorContent)

	msgs := f.iopub(req)
	require.Equal(t, []string{
		protocol.StatusMsg,
		protocol.ExecuteInput,
		protocol.ExecuteResult,
		protocol.StatusMsg,
	}, types(msgs))
	assert.Equal(t, protocol.StateBusy, f.status(msgs[0]))

	var input protocol.ExecuteInputContent
	require.NoError(t, msgs[1].DecodeContent(&input))
	assert.Equal(t, "1+1", input.Code)
	assert.Equal(t, 1, input.ExecutionCount)

	var result protocol.ExecuteResultContent
	require.NoError(t, msgs[2].DecodeContent(&result))
	assert.Equal(t, 1, result.ExecutionCount)
	assert.Equal(t, "2", result.Data["text/plain"])
}

func TestKernel_ExecutionCount(t *testing.T) {
	f := start(t)

	for want := 1; want <= 3; want++ {
		req := f.execute("x = 1")
		var reply protocol.ExecuteReplyContent
		f.reply(transport.Shell, req, &reply)
		assert.Equal(t, want, reply.ExecutionCount)

		var input protocol.ExecuteInputContent
		find(t, f.iopub(req), protocol.ExecuteInput, &input)
		assert.Equal(t, want, input.ExecutionCount)
	}

	req := f.execute("40 + 2", func(c *protocol.ExecuteRequestContent) { c.Silent = true })
	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 3, reply.ExecutionCount)
	assert.Equal(t, []string{protocol.StatusMsg, protocol.StatusMsg}, types(f.iopub(req)))
	assert.Equal(t, 3, f.k.Session().ExecutionCount())
}

func TestKernel_ExecuteError(t *testing.T) {
	f := start(t)

	req := f.execute("raise 'boom'")
	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, 1, reply.ExecutionCount)
	require.NotNil(t, reply.ErrorContent)
	assert.Equal(t, "boom", reply.EValue)

	msgs := f.iopub(req)
	assert.Equal(t, []string{
		protocol.StatusMsg,
		protocol.ExecuteInput,
		protocol.ErrorMsg,
		protocol.StatusMsg,
	}, types(msgs))

	var content protocol.ErrorContent
	find(t, msgs, protocol.ErrorMsg, &content)
	assert.Equal(t, "RuntimeError", content.EName)
	assert.Equal(t, "boom", content.EValue)
	assert.NotEmpty(t, content.Traceback)

	// The kernel keeps serving.
	req = f.execute("1")
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 2, reply.ExecutionCount)
}

func TestKernel_Streams(t *testing.T) {
	f := start(t)

	req := f.execute(`print("hello")` + "\n" + `eprint("oops")`)
	f.reply(transport.Shell, req, nil)

	var streams []protocol.StreamContent
	for _, m := range f.iopub(req) {
		if m.Type() == protocol.StreamMsg {
			var s protocol.StreamContent
			require.NoError(t, m.DecodeContent(&s))
			streams = append(streams, s)
		}
	}
	assert.Equal(t, []protocol.StreamContent{
		{Name: protocol.Stdout, Text: "hello\n"},
		{Name: protocol.Stderr, Text: "oops\n"},
	}, streams)
}

func TestKernel_Display(t *testing.T) {
	f := start(t)

	req := f.execute(`display(html("<b>x</b>"), "slot")` + "\n" + `update("y", "slot")` + "\n" + `clear(true)`)
	f.reply(transport.Shell, req, nil)
	msgs := f.iopub(req)

	var shown protocol.DisplayDataContent
	find(t, msgs, protocol.DisplayData, &shown)
	assert.Equal(t, "<b>x</b>", shown.Data["text/html"])
	assert.Contains(t, shown.Data, "text/plain")
	assert.Equal(t, "slot", shown.Transient["display_id"])

	var updated protocol.DisplayDataContent
	find(t, msgs, protocol.UpdateDisplayData, &updated)
	assert.Equal(t, "y", updated.Data["text/plain"])
	assert.Equal(t, "slot", updated.Transient["display_id"])

	var clear protocol.ClearOutputContent
	find(t, msgs, protocol.ClearOutput, &clear)
	assert.True(t, clear.Wait)
}

func TestKernel_Input(t *testing.T) {
	f := start(t)

	req := f.execute(`"hello " + input("name? ")`, func(c *protocol.ExecuteRequestContent) { c.AllowStdin = true })

	prompt := f.recv(transport.Stdin)
	require.Equal(t, protocol.InputRequest, prompt.Type())
	require.Equal(t, req.Header.MsgID, prompt.ParentHeader.MsgID)
	var ask protocol.InputRequestContent
	require.NoError(t, prompt.DecodeContent(&ask))
	assert.Equal(t, "name? ", ask.Prompt)
	assert.False(t, ask.Password)

	answer := protocol.NewMessage(f.session, "tester", protocol.InputReply, protocol.InputReplyContent{Value: "ada"}).
		Parent(&prompt.Header).
		Identities(prompt.Identities).
		Build()
	f.send(transport.Stdin, answer)

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)

	var result protocol.ExecuteResultContent
	find(t, f.iopub(req), protocol.ExecuteResult, &result)
	assert.Equal(t, "hello ada", result.Data["text/plain"])
}

func TestKernel_InputNotAllowed(t *testing.T) {
	f := start(t)

	req := f.execute(`input()`)
	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, 0, f.conns[transport.Stdin].Pending())
}

func TestKernel_UnmatchedInputReply(t *testing.T) {
	f := start(t)

	stray := protocol.NewMessage(f.session, "tester", protocol.InputReply, protocol.InputReplyContent{Value: "x"}).Build()
	f.send(transport.Stdin, stray)

	require.Eventually(t, func() bool {
		return len(f.events.Of(kernel.EventInputUnmatched)) == 1
	}, waitFor, 10*time.Millisecond)
}

func TestKernel_Interrupt(t *testing.T) {
	f := start(t)

	req := f.execute("sleep(30)")
	require.Eventually(t, f.k.Interrupt, waitFor, 10*time.Millisecond)

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, backend.InterruptName, reply.EName)

	msgs := f.iopub(req)
	assert.Equal(t, protocol.StatusMsg, msgs[len(msgs)-1].Type())

	// interrupt_request with nothing running still replies.
	ireq := f.request(transport.Control, protocol.InterruptRequest, struct{}{})
	var ireply protocol.InterruptReplyContent
	f.reply(transport.Control, ireq, &ireply)
	assert.Equal(t, protocol.StatusOK, ireply.Status)
}

func TestKernel_InterruptRequestDuringExecution(t *testing.T) {
	f := start(t)

	req := f.execute("sleep(30)")
	find(t, []*protocol.Message{f.recv(transport.IOPub), f.recv(transport.IOPub)}, protocol.ExecuteInput, nil)

	deadline := time.Now().Add(waitFor)
	for f.conns[transport.Shell].Pending() == 0 && time.Now().Before(deadline) {
		ireq := f.request(transport.Control, protocol.InterruptRequest, struct{}{})
		f.reply(transport.Control, ireq, nil)
		time.Sleep(20 * time.Millisecond)
	}

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, backend.InterruptName, reply.EName)
}

func TestKernel_StopOnErrorAbortsQueued(t *testing.T) {
	f := start(t)

	failing := f.execute("sleep(0.3)\nraise 'stop'", func(c *protocol.ExecuteRequestContent) { c.StopOnError = true })
	queued := []*protocol.Message{f.execute("1"), f.execute("2")}

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, failing, &reply)
	assert.Equal(t, protocol.StatusError, reply.Status)

	for _, req := range queued {
		var aborted protocol.ExecuteReplyContent
		f.reply(transport.Shell, req, &aborted)
		assert.Equal(t, protocol.StatusAbort, aborted.Status)
	}
	assert.Equal(t, 1, f.k.Session().ExecutionCount())
	assert.Len(t, f.events.Of(kernel.EventExecuteAbort), 2)

	req := f.execute("3")
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 2, reply.ExecutionCount)
}

func TestKernel_StopOnErrorAbortsUnreadRequests(t *testing.T) {
	f := start(t)

	failing := f.execute("sleep(0.3)\nraise 'stop'", func(c *protocol.ExecuteRequestContent) { c.StopOnError = true })

	// Sent while the failing cell runs but only read by the kernel after the
	// failure.
	late := protocol.NewMessage(f.session, "tester", protocol.ExecuteRequest,
		protocol.ExecuteRequestContent{Code: "1", StoreHistory: true}).
		Identities([][]byte{[]byte("client-1")}).
		Build()
	late.Header.Date = failing.Header.Date.Add(50 * time.Millisecond)

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, failing, &reply)
	require.Equal(t, protocol.StatusError, reply.Status)

	f.send(transport.Shell, late)
	var aborted protocol.ExecuteReplyContent
	f.reply(transport.Shell, late, &aborted)
	assert.Equal(t, protocol.StatusAbort, aborted.Status)

	req := f.execute("2")
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, 2, reply.ExecutionCount)
}

func TestKernel_ControlNotBlockedByBackendRequests(t *testing.T) {
	f := start(t)

	req := f.execute("sleep(30)")
	find(t, []*protocol.Message{f.recv(transport.IOPub), f.recv(transport.IOPub)}, protocol.ExecuteInput, nil)

	complete := f.request(transport.Control, protocol.CompleteRequest, protocol.CompleteRequestContent{Code: "sl", CursorPos: 2})

	var completed *protocol.Message
	awaitInterrupt := func(ireq *protocol.Message) {
		t.Helper()
		for {
			msg := f.recv(transport.Control)
			if msg.Type() == protocol.CompleteReply {
				completed = msg
				continue
			}
			require.Equal(t, protocol.InterruptReply, msg.Type())
			require.Equal(t, ireq.Header.MsgID, msg.ParentHeader.MsgID)
			return
		}
	}

	deadline := time.Now().Add(waitFor)
	for f.conns[transport.Shell].Pending() == 0 && time.Now().Before(deadline) {
		sent := time.Now()
		awaitInterrupt(f.request(transport.Control, protocol.InterruptRequest, struct{}{}))
		assert.Less(t, time.Since(sent), time.Second, "interrupt_reply waited behind complete_request")
		time.Sleep(20 * time.Millisecond)
	}

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	assert.Equal(t, protocol.StatusError, reply.Status)
	assert.Equal(t, backend.InterruptName, reply.EName)

	if completed == nil {
		completed = f.recv(transport.Control)
	}
	require.Equal(t, protocol.CompleteReply, completed.Type())
	assert.Equal(t, complete.Header.MsgID, completed.ParentHeader.MsgID)
	var c protocol.CompleteReplyContent
	require.NoError(t, completed.DecodeContent(&c))
	assert.Contains(t, c.Matches, "sleep")
}

func TestKernel_UserExpressions(t *testing.T) {
	f := start(t)

	req := f.execute("x = 5", func(c *protocol.ExecuteRequestContent) {
		c.UserExpressions = map[string]string{"double": "x * 2", "bad": "nope"}
	})

	var reply protocol.ExecuteReplyContent
	f.reply(transport.Shell, req, &reply)
	require.Contains(t, reply.UserExpressions, "double")

	double := reply.UserExpressions["double"].(map[string]any)
	assert.Equal(t, protocol.StatusOK, double["status"])
	assert.Equal(t, "10", double["data"].(map[string]any)["text/plain"])

	bad := reply.UserExpressions["bad"].(map[string]any)
	assert.Equal(t, protocol.StatusError, bad["status"])
	assert.Equal(t, "NameError", bad["ename"])
}

func TestKernel_UnknownMessageType(t *testing.T) {
	f := start(t)

	bogus := f.request(transport.Shell, "bogus_request", struct{}{})
	var content protocol.ErrorContent
	find(t, f.iopub(bogus), protocol.ErrorMsg, &content)
	assert.Equal(t, "DispatchError", content.EName)
	assert.Contains(t, content.EValue, "bogus_request")

	req := f.request(transport.Shell, protocol.KernelInfoRequest, struct{}{})
	f.reply(transport.Shell, req, nil)
	assert.Len(t, f.events.Of(kernel.EventDispatchUnknown), 1)
}

func TestKernel_DropsBadMessages(t *testing.T) {
	f := start(t)

	forger, err := transport.NewSigner("hmac-sha256", []byte("wrong"))
	require.NoError(t, err)
	forged, err := transport.Encode(protocol.NewMessage(f.session, "x", protocol.KernelInfoRequest, nil).Build(), forger)
	require.NoError(t, err)
	require.NoError(t, f.conns[transport.Shell].Send(f.ctx(), forged...))
	require.NoError(t, f.conns[transport.Shell].Send(f.ctx(), []byte("garbage")))

	req := f.request(transport.Shell, protocol.KernelInfoRequest, struct{}{})
	f.reply(transport.Shell, req, nil)

	dropped := f.events.Of(kernel.EventMessageDropped)
	require.Len(t, dropped, 2)
	assert.Equal(t, "AuthError", dropped[0].Data["kind"])
	assert.Equal(t, "ProtocolError", dropped[1].Data["kind"])
}

func TestKernel_Comms(t *testing.T) {
	f := start(t)

	opened := make(chan string, 1)
	require.NoError(t, f.k.Comms().RegisterTarget("echo", func(ctx context.Context, c *comm.Comm, data map[string]any) error {
		c.OnMsg(func(ctx context.Context, c *comm.Comm, m comm.Message) error {
			return c.Send(ctx, m.Data, nil, nil)
		})
		opened <- c.ID()
		return nil
	}))

	open := f.request(transport.Shell, protocol.CommOpen, protocol.CommOpenContent{CommID: "c-1", TargetName: "echo", Data: map[string]any{}})
	f.iopub(open)
	assert.Equal(t, "c-1", <-opened)

	info := f.request(transport.Shell, protocol.CommInfoRequest, protocol.CommInfoRequestContent{})
	var infoReply protocol.CommInfoReplyContent
	f.reply(transport.Shell, info, &infoReply)
	assert.Equal(t, map[string]protocol.CommInfo{"c-1": {TargetName: "echo"}}, infoReply.Comms)
	f.iopub(info)

	msg := f.request(transport.Shell, protocol.CommMsg, protocol.CommMsgContent{CommID: "c-1", Data: map[string]any{"n": 1.0}})
	var echo protocol.CommMsgContent
	find(t, f.iopub(msg), protocol.CommMsg, &echo)
	assert.Equal(t, "c-1", echo.CommID)
	assert.Equal(t, map[string]any{"n": 1.0}, echo.Data)

	// Unknown comm ids are reported, not fatal.
	stray := f.request(transport.Shell, protocol.CommMsg, protocol.CommMsgContent{CommID: "missing"})
	assert.Equal(t, []string{protocol.StatusMsg, protocol.StatusMsg}, types(f.iopub(stray)))
	assert.Len(t, f.events.Of(comm.EventUnknownComm), 1)

	req := f.request(transport.Shell, protocol.KernelInfoRequest, struct{}{})
	f.reply(transport.Shell, req, nil)
}

func TestKernel_CommFromCode(t *testing.T) {
	f := start(t)

	req := f.execute("id = comm('widgets', {'v': 1})\ncomm_close(id)")
	f.reply(transport.Shell, req, nil)

	msgs := f.iopub(req)
	var open protocol.CommOpenContent
	find(t, msgs, protocol.CommOpen, &open)
	assert.Equal(t, "widgets", open.TargetName)

	var closed protocol.CommCloseContent
	find(t, msgs, protocol.CommClose, &closed)
	assert.Equal(t, open.CommID, closed.CommID)
}

func TestKernel_Introspection(t *testing.T) {
	f := start(t)

	req := f.execute("alpha = 1")
	f.reply(transport.Shell, req, nil)
	f.iopub(req)

	complete := f.request(transport.Shell, protocol.CompleteRequest, protocol.CompleteRequestContent{Code: "al", CursorPos: 2})
	var c protocol.CompleteReplyContent
	f.reply(transport.Shell, complete, &c)
	assert.Equal(t, protocol.StatusOK, c.Status)
	assert.Contains(t, c.Matches, "alpha")
	assert.Equal(t, 0, c.CursorStart)
	assert.Equal(t, 2, c.CursorEnd)

	inspect := f.request(transport.Shell, protocol.InspectRequest, protocol.InspectRequestContent{Code: "alpha", CursorPos: 1})
	var in protocol.InspectReplyContent
	f.reply(transport.Shell, inspect, &in)
	assert.True(t, in.Found)
	assert.Equal(t, "alpha: int = 1", in.Data["text/plain"])

	isComplete := f.request(transport.Shell, protocol.IsCompleteRequest, protocol.IsCompleteRequestContent{Code: "[1,"})
	var ic protocol.IsCompleteReplyContent
	f.reply(transport.Shell, isComplete, &ic)
	assert.Equal(t, backend.Incomplete, ic.Status)

	objectInfo := f.request(transport.Shell, protocol.ObjectInfoRequest, protocol.ObjectInfoRequestContent{OName: "alpha"})
	var oi protocol.ObjectInfoReplyContent
	f.reply(transport.Shell, objectInfo, &oi)
	assert.True(t, oi.Found)
	assert.Equal(t, "alpha", oi.Name)
	assert.Equal(t, "int", oi.TypeName)
}

func TestKernel_History(t *testing.T) {
	f := start(t)

	for _, code := range []string{"1+1", "y = 3"} {
		req := f.execute(code)
		f.reply(transport.Shell, req, nil)
		f.iopub(req)
	}
	silent := f.execute("9", func(c *protocol.ExecuteRequestContent) { c.Silent = true })
	f.reply(transport.Shell, silent, nil)
	f.iopub(silent)

	req := f.request(transport.Shell, protocol.HistoryRequest, protocol.HistoryRequestContent{
		HistAccessType: protocol.HistoryTail,
		N:              10,
		Output:         true,
	})
	var reply protocol.HistoryReplyContent
	f.reply(transport.Shell, req, &reply)

	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.Equal(t, []any{
		[]any{1.0, 1.0, []any{"1+1", "2"}},
		[]any{1.0, 2.0, []any{"y = 3", nil}},
	}, reply.History)

	search := f.request(transport.Shell, protocol.HistoryRequest, protocol.HistoryRequestContent{
		HistAccessType: protocol.HistorySearch,
		Pattern:        "y*",
	})
	f.reply(transport.Shell, search, &reply)
	assert.Equal(t, []any{[]any{1.0, 2.0, "y = 3"}}, reply.History)
}

func TestKernel_Heartbeat(t *testing.T) {
	f := start(t)

	hb := f.conns[transport.Heartbeat]
	require.NoError(t, hb.Send(f.ctx(), []byte("ping")))
	frames, err := hb.Recv(f.ctx())
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("ping")}, frames)
}

func TestKernel_Shutdown(t *testing.T) {
	f := start(t)

	req := f.request(transport.Control, protocol.ShutdownRequest, protocol.ShutdownRequestContent{Restart: true})
	var reply protocol.ShutdownReplyContent
	f.reply(transport.Control, req, &reply)
	assert.Equal(t, protocol.StatusOK, reply.Status)
	assert.True(t, reply.Restart)

	echo := f.recv(transport.IOPub)
	assert.Equal(t, protocol.ShutdownReply, echo.Type())

	select {
	case err := <-f.done:
		assert.NoError(t, err)
		f.done <- err
	case <-time.After(waitFor):
		t.Fatal("Serve did not return after shutdown")
	}
	assert.True(t, f.k.RestartRequested())
	assert.ErrorIs(t, f.k.Close(), kernel.ErrNotServing)
}

func TestKernel_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := start(t, kernel.WithMetrics(reg))

	req := f.execute("1")
	f.reply(transport.Shell, req, nil)
	f.iopub(req)

	n, err := testutil.GatherAndCount(reg, "nbkernel_events_total", "nbkernel_event_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestKernel_ServeTwice(t *testing.T) {
	f := start(t)
	assert.ErrorIs(t, f.k.Serve(context.Background()), kernel.ErrServing)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := kernel.New(&kernel.Config{Backend: "cobol"}, memoryInfo())
	require.Error(t, err)
	assert.ErrorIs(t, err, kernel.ErrConfiguration)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestServe_NoProvider(t *testing.T) {
	k, err := kernel.New(nil, memoryInfo())
	require.NoError(t, err)

	err = k.Serve(context.Background())
	assert.ErrorIs(t, err, kernel.ErrConfiguration)
	assert.ErrorIs(t, err, transport.ErrConfiguration)
}

func TestError_Kinds(t *testing.T) {
	err := &kernel.Error{Kind: kernel.KindDispatch, Op: "dispatch", Err: errors.New("unknown")}
	assert.ErrorIs(t, err, kernel.ErrDispatch)
	assert.NotErrorIs(t, err, kernel.ErrInternal)
	assert.Equal(t, "DispatchError: dispatch: unknown", err.Error())
	assert.Equal(t, "UserCodeError", kernel.KindUserCode.String())
}
