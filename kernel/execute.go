package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/display"
	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

func (k *Kernel) handleExecute(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	req := protocol.ExecuteRequestContent{StoreHistory: true}
	if err := k.decode(ctx, ch, msg, &req); err != nil {
		return err
	}

	count := k.session.ExecutionCount()
	if !req.Silent {
		count = k.session.NextExecutionCount()
		k.publish(ctx, protocol.ExecuteInput, protocol.ExecuteInputContent{
			Code:           req.Code,
			ExecutionCount: count,
		}, nil, nil)
	}

	storeHistory := req.StoreHistory && !req.Silent
	if storeHistory {
		if err := k.history.Append(ctx, count, req.Code); err != nil {
			k.emit(ctx, EventHistoryError, observability.LevelWarning, map[string]any{"error": err.Error()})
		}
	}

	k.emit(ctx, EventExecuteStart, observability.LevelVerbose, map[string]any{
		"execution_count": count,
		"silent":          req.Silent,
	})
	start := time.Now()

	env := k.newEnv(ctx, msg, req.AllowStdin)
	result, err := k.run(ctx, func(ctx context.Context) (any, error) {
		return k.backend.Execute(ctx, env, req.Code)
	})
	env.close()

	reply := protocol.ExecuteReplyContent{
		Status:          protocol.StatusOK,
		ExecutionCount:  count,
		Payload:         []any{},
		UserExpressions: map[string]any{},
	}

	if err != nil {
		content := errorContent(backend.AsError(err))
		k.publish(ctx, protocol.ErrorMsg, content, nil, nil)

		reply.Status = protocol.StatusError
		reply.ErrorContent = &content

		if req.StopOnError && ch == transport.Shell {
			k.markAbort(msg)
		}
	} else {
		if result != nil && !req.Silent {
			bundle := k.formatters.Format(ctx, result)
			k.publish(ctx, protocol.ExecuteResult, protocol.ExecuteResultContent{
				ExecutionCount: count,
				Data:           bundle.Data,
				Metadata:       bundle.Metadata,
			}, nil, nil)

			if storeHistory {
				text, _ := bundle.Data[display.MIMEPlain].(string)
				if err := k.history.SetOutput(ctx, count, text); err != nil {
					k.emit(ctx, EventHistoryError, observability.LevelWarning, map[string]any{"error": err.Error()})
				}
			}
		}
		reply.UserExpressions = k.userExpressions(ctx, req.UserExpressions)
	}

	k.emit(ctx, EventExecuteComplete, observability.LevelInfo, map[string]any{
		"execution_count":         count,
		"status":                  reply.Status,
		observability.DurationKey: time.Since(start),
	})

	return k.reply(ctx, ch, msg, reply)
}

// abortExecute answers an execute_request skipped after a stop_on_error
// failure.
func (k *Kernel) abortExecute(ctx context.Context, ch transport.Channel, msg *protocol.Message) error {
	k.emit(ctx, EventExecuteAbort, observability.LevelInfo, map[string]any{"msg_id": msg.Header.MsgID})
	return k.reply(ctx, ch, msg, protocol.ExecuteReplyContent{
		Status:         protocol.StatusAbort,
		ExecutionCount: k.session.ExecutionCount(),
	})
}

// userExpressions evaluates each expression after a successful execution and
// returns its display bundle or error, keyed by the caller's name.
func (k *Kernel) userExpressions(ctx context.Context, exprs map[string]string) map[string]any {
	out := make(map[string]any, len(exprs))
	env := quietEnv{comms: k.comms}

	for name, code := range exprs {
		value, err := k.run(ctx, func(ctx context.Context) (any, error) {
			return k.backend.Execute(ctx, env, code)
		})
		if err != nil {
			content := errorContent(backend.AsError(err))
			out[name] = map[string]any{
				"status":    protocol.StatusError,
				"ename":     content.EName,
				"evalue":    content.EValue,
				"traceback": content.Traceback,
			}
			continue
		}

		bundle := k.formatters.Format(ctx, value)
		out[name] = map[string]any{
			"status":   protocol.StatusOK,
			"data":     bundle.Data,
			"metadata": bundle.Metadata,
		}
	}
	return out
}

// run calls into the backend. Calls are serialized; the one in flight can be
// cancelled by Interrupt, and a panic becomes an InternalError result.
func (k *Kernel) run(ctx context.Context, fn func(ctx context.Context) (any, error)) (result any, err error) {
	k.execMu.Lock()
	defer k.execMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	k.cancelExec = cancel
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.cancelExec = nil
		k.mu.Unlock()
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &backend.Error{
				Name:      KindInternal.String(),
				Value:     fmt.Sprint(r),
				Traceback: panicTrace(r),
			}
		}
	}()

	return fn(ctx)
}

func panicTrace(r any) []string {
	lines := []string{fmt.Sprintf("%s: %v", KindInternal, r)}
	for _, l := range strings.Split(strings.TrimSpace(string(debug.Stack())), "\n") {
		lines = append(lines, "  "+l)
	}
	return lines
}
