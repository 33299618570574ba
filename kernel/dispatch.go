package kernel

import (
	"context"
	"unicode/utf8"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/history"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

var helpLinks = []protocol.HelpLink{
	{Text: "Notebook messaging protocol", URL: "https://jupyter-client.readthedocs.io/en/stable/messaging.html"},
}

func (k *Kernel) dispatchTable() map[string]handler {
	return map[string]handler{
		protocol.ExecuteRequest:    k.handleExecute,
		protocol.CompleteRequest:   k.handleComplete,
		protocol.InspectRequest:    k.handleInspect,
		protocol.ObjectInfoRequest: k.handleObjectInfo,
		protocol.IsCompleteRequest: k.handleIsComplete,
		protocol.KernelInfoRequest: k.handleKernelInfo,
		protocol.HistoryRequest:    k.handleHistory,
		protocol.ShutdownRequest:   k.handleShutdown,
		protocol.InterruptRequest:  k.handleInterrupt,
		protocol.CommOpen:          k.handleCommOpen,
		protocol.CommMsg:           k.handleCommMsg,
		protocol.CommClose:         k.handleCommClose,
		protocol.CommInfoRequest:   k.handleCommInfo,
	}
}

func (k *Kernel) handleComplete(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.CompleteRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	var c backend.Completion
	_, err := k.run(ctx, func(ctx context.Context) (any, error) {
		var err error
		c, err = k.backend.Complete(ctx, req.Code, req.CursorPos)
		return nil, err
	})

	reply := protocol.CompleteReplyContent{
		Status:      protocol.StatusOK,
		Matches:     c.Matches,
		CursorStart: c.CursorStart,
		CursorEnd:   c.CursorEnd,
		Metadata:    c.Metadata,
	}
	if err != nil {
		content := errorContent(backend.AsError(err))
		reply = protocol.CompleteReplyContent{
			Status:       protocol.StatusError,
			CursorStart:  req.CursorPos,
			CursorEnd:    req.CursorPos,
			ErrorContent: &content,
		}
	}
	if reply.Matches == nil {
		reply.Matches = []string{}
	}
	if reply.Metadata == nil {
		reply.Metadata = map[string]any{}
	}
	return k.reply(ctx, ch, msg, reply)
}

func (k *Kernel) handleInspect(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.InspectRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	var in backend.Inspection
	_, err := k.run(ctx, func(ctx context.Context) (any, error) {
		var err error
		in, err = k.backend.Inspect(ctx, req.Code, req.CursorPos, req.DetailLevel)
		return nil, err
	})

	reply := protocol.InspectReplyContent{
		Status:   protocol.StatusOK,
		Found:    in.Found,
		Data:     in.Data,
		Metadata: in.Metadata,
	}
	if err != nil {
		content := errorContent(backend.AsError(err))
		reply = protocol.InspectReplyContent{Status: protocol.StatusError, ErrorContent: &content}
	}
	if reply.Data == nil {
		reply.Data = map[string]any{}
	}
	if reply.Metadata == nil {
		reply.Metadata = map[string]any{}
	}
	return k.reply(ctx, ch, msg, reply)
}

// handleObjectInfo serves the legacy introspection request. Front-ends
// that only send oname are answered as if the cursor sat at its end.
func (k *Kernel) handleObjectInfo(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.ObjectInfoRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	code, cursor := req.Code, req.CursorPos
	if code == "" {
		code, cursor = req.OName, utf8.RuneCountInString(req.OName)
	}

	var info backend.ObjectInfo
	_, err := k.run(ctx, func(ctx context.Context) (any, error) {
		var err error
		info, err = k.backend.ObjectInfo(ctx, code, cursor)
		return nil, err
	})
	if err != nil {
		info = backend.ObjectInfo{}
	}
	if info.Name == "" {
		info.Name = req.OName
	}

	return k.reply(ctx, ch, msg, protocol.ObjectInfoReplyContent{
		Name:       info.Name,
		Found:      info.Found,
		TypeName:   info.TypeName,
		StringForm: info.StringForm,
		Docstring:  info.Docstring,
		Definition: info.Definition,
	})
}

func (k *Kernel) handleIsComplete(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.IsCompleteRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	var c backend.Completeness
	_, err := k.run(ctx, func(ctx context.Context) (any, error) {
		var err error
		c, err = k.backend.IsComplete(ctx, req.Code)
		return nil, err
	})
	if err != nil {
		c = backend.Completeness{Status: backend.Unknown}
	}

	return k.reply(ctx, ch, msg, protocol.IsCompleteReplyContent{Status: c.Status, Indent: c.Indent})
}

func (k *Kernel) handleKernelInfo(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	return k.reply(ctx, ch, msg, protocol.KernelInfoReplyContent{
		Status:                protocol.StatusOK,
		ProtocolVersion:       protocol.ProtocolVersion,
		Implementation:        Implementation,
		ImplementationVersion: Version,
		LanguageInfo:          k.backend.LanguageInfo(),
		Banner:                k.backend.Banner(),
		HelpLinks:             helpLinks,
	})
}

func (k *Kernel) handleHistory(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.HistoryRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	var (
		entries []history.Entry
		err     error
	)
	switch req.HistAccessType {
	case protocol.HistoryRange:
		entries = k.history.Range(req.Session, req.Start, req.Stop)
	case protocol.HistorySearch:
		entries, err = k.history.Search(req.Pattern, req.N, req.Unique)
	default:
		entries = k.history.Tail(req.N)
	}

	reply := protocol.HistoryReplyContent{Status: protocol.StatusOK, History: make([]any, 0, len(entries))}
	if err != nil {
		reply.Status = protocol.StatusError
	}
	for _, e := range entries {
		reply.History = append(reply.History, e.Tuple(req.Output))
	}
	return k.reply(ctx, ch, msg, reply)
}

// handleShutdown replies, echoes the reply on iopub and marks the kernel
// stopping. Serve ends once the current request finishes.
func (k *Kernel) handleShutdown(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.ShutdownRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	k.restart.Store(req.Restart)
	k.stopping.Store(true)

	content := protocol.ShutdownReplyContent{Status: protocol.StatusOK, Restart: req.Restart}
	if err := k.reply(ctx, ch, msg, content); err != nil {
		return err
	}
	return k.publish(ctx, protocol.ShutdownReply, content, nil, nil)
}

func (k *Kernel) handleInterrupt(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	k.Interrupt()
	return k.reply(ctx, ch, msg, protocol.InterruptReplyContent{Status: protocol.StatusOK})
}

func (k *Kernel) handleCommOpen(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var content protocol.CommOpenContent
	if err := k.decode(ctx, ch, msg, &content); err != nil {
		return err
	}
	k.comms.HandleOpen(ctx, content)
	return nil
}

func (k *Kernel) handleCommMsg(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var content protocol.CommMsgContent
	if err := k.decode(ctx, ch, msg, &content); err != nil {
		return err
	}
	k.comms.HandleMsg(ctx, content, msg.Metadata, msg.Buffers)
	return nil
}

func (k *Kernel) handleCommClose(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var content protocol.CommCloseContent
	if err := k.decode(ctx, ch, msg, &content); err != nil {
		return err
	}
	k.comms.HandleClose(ctx, content)
	return nil
}

func (k *Kernel) handleCommInfo(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	var req protocol.CommInfoRequestContent
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	comms := make(map[string]protocol.CommInfo)
	for id, target := range k.comms.Info(req.TargetName) {
		comms[id] = protocol.CommInfo{TargetName: target}
	}
	return k.reply(ctx, ch, msg, protocol.CommInfoReplyContent{Status: protocol.StatusOK, Comms: comms})
}
