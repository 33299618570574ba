package calc

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/display"
)

// DefaultBuiltins returns the standard builtin set: output, rich display,
// input, comms and a few utilities.
func DefaultBuiltins() *Builtins {
	b := NewBuiltins()
	for _, builtin := range []Builtin{
		{Name: "print", Signature: "print(values...)", Doc: "Write values to stdout separated by spaces.", Fn: printTo(false)},
		{Name: "eprint", Signature: "eprint(values...)", Doc: "Write values to stderr separated by spaces.", Fn: printTo(true)},
		{Name: "display", Signature: "display(value, [display_id])", Doc: "Show a value now, optionally tagged for later update.", Fn: displayValue(false)},
		{Name: "update", Signature: "update(value, display_id)", Doc: "Replace an output previously shown with display_id.", Fn: displayValue(true)},
		{Name: "clear", Signature: "clear([wait])", Doc: "Clear the cell output; with wait, when the next output arrives.", Fn: clearOutput},
		{Name: "input", Signature: "input([prompt])", Doc: "Read a line from the front-end.", Fn: readInput(false)},
		{Name: "password", Signature: "password([prompt])", Doc: "Read a line from the front-end without echo.", Fn: readInput(true)},
		{Name: "html", Signature: "html(source)", Doc: "Render source as HTML.", Fn: wrapString(func(s string) any { return display.HTML(s) })},
		{Name: "markdown", Signature: "markdown(source)", Doc: "Render source as Markdown.", Fn: wrapString(func(s string) any { return display.Markdown(s) })},
		{Name: "latex", Signature: "latex(source)", Doc: "Render source as LaTeX.", Fn: wrapString(func(s string) any { return display.Latex(s) })},
		{Name: "svg", Signature: "svg(source)", Doc: "Render source as an SVG image.", Fn: wrapString(func(s string) any { return display.SVG(s) })},
		{Name: "json", Signature: "json(value)", Doc: "Render value as a JSON tree.", Fn: jsonValue},
		{Name: "table", Signature: "table(rows, [columns])", Doc: "Render a list of maps as a table.", Fn: tableValue},
		{Name: "sleep", Signature: "sleep(seconds)", Doc: "Pause; stops early when the kernel is interrupted.", Fn: sleep},
		{Name: "vars", Signature: "vars()", Doc: "Return the session variables.", Fn: varsValue},
		{Name: "comm", Signature: "comm(target, [data])", Doc: "Open a comm to the front-end and return its id.", Fn: commOpen},
		{Name: "comm_send", Signature: "comm_send(id, data)", Doc: "Send data on an open comm.", Fn: commSend},
		{Name: "comm_close", Signature: "comm_close(id)", Doc: "Close a comm.", Fn: commClose},
	} {
		b.Register(builtin)
	}

	b.Register(Builtin{
		Name:      "help",
		Signature: "help([name])",
		Doc:       "List builtins, or describe one.",
		Fn:        helpFor(b),
	})
	return b
}

func printTo(stderr bool) Func {
	return func(call *Call, args ...any) (any, error) {
		if err := requireEnv(call); err != nil {
			return nil, err
		}
		w := call.Env.Stdout()
		if stderr {
			w = call.Env.Stderr()
		}
		if _, err := fmt.Fprintln(w, args...); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func displayValue(update bool) Func {
	return func(call *Call, args ...any) (any, error) {
		if err := requireEnv(call); err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, typeErrorf("display expects a value")
		}

		opts := backend.DisplayOptions{Update: update}
		if len(args) > 1 {
			id, err := stringArg(args, 1, "display_id")
			if err != nil {
				return nil, err
			}
			opts.DisplayID = id
		} else if update {
			return nil, typeErrorf("update requires a display_id")
		}

		return nil, call.Env.Display(call.Ctx, args[0], opts)
	}
}

func clearOutput(call *Call, args ...any) (any, error) {
	if err := requireEnv(call); err != nil {
		return nil, err
	}
	wait := false
	if len(args) > 0 {
		b, ok := args[0].(bool)
		if !ok {
			return nil, typeErrorf("clear expects a bool, got %T", args[0])
		}
		wait = b
	}
	return nil, call.Env.ClearOutput(call.Ctx, wait)
}

func readInput(password bool) Func {
	return func(call *Call, args ...any) (any, error) {
		if err := requireEnv(call); err != nil {
			return nil, err
		}
		prompt := ""
		if len(args) > 0 {
			prompt = fmt.Sprint(args[0])
		}

		value, err := call.Env.Input(call.Ctx, prompt, password)
		if errors.Is(err, backend.ErrStdinNotAllowed) {
			return nil, backend.Errorf(RuntimeError, "input is not supported by this front-end")
		}
		return value, err
	}
}

func wrapString(wrap func(string) any) Func {
	return func(call *Call, args ...any) (any, error) {
		s, err := stringArg(args, 0, "source")
		if err != nil {
			return nil, err
		}
		return wrap(s), nil
	}
}

func jsonValue(call *Call, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, typeErrorf("json expects 1 argument, got %d", len(args))
	}
	return display.JSON{Value: args[0]}, nil
}

func tableValue(call *Call, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, typeErrorf("table expects rows")
	}

	items, ok := args[0].([]any)
	if !ok {
		return nil, typeErrorf("table expects a list of maps, got %T", args[0])
	}
	records := make([]map[string]any, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, typeErrorf("table row %d is %T, not a map", i, item)
		}
		records[i] = rec
	}

	var columns []string
	if len(args) > 1 {
		cols, ok := args[1].([]any)
		if !ok {
			return nil, typeErrorf("table columns must be a list")
		}
		for _, c := range cols {
			columns = append(columns, fmt.Sprint(c))
		}
	}
	return display.Records(records, columns...), nil
}

func sleep(call *Call, args ...any) (any, error) {
	if len(args) != 1 {
		return nil, typeErrorf("sleep expects 1 argument, got %d", len(args))
	}
	seconds, ok := toFloat(args[0])
	if !ok {
		return nil, typeErrorf("sleep expects a number, got %T", args[0])
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-call.Ctx.Done():
		return nil, backend.Errorf(backend.InterruptName, "%s", backend.ErrInterrupted.Error())
	}
}

func varsValue(call *Call, args ...any) (any, error) {
	return maps.Clone(call.Vars), nil
}

func commOpen(call *Call, args ...any) (any, error) {
	if err := requireEnv(call); err != nil {
		return nil, err
	}
	target, err := stringArg(args, 0, "target")
	if err != nil {
		return nil, err
	}
	data, err := mapArg(args, 1)
	if err != nil {
		return nil, err
	}

	c, err := call.Env.Comms().Open(call.Ctx, target, data, nil)
	if err != nil {
		return nil, err
	}
	return c.ID(), nil
}

func commSend(call *Call, args ...any) (any, error) {
	if err := requireEnv(call); err != nil {
		return nil, err
	}
	id, err := stringArg(args, 0, "id")
	if err != nil {
		return nil, err
	}
	data, err := mapArg(args, 1)
	if err != nil {
		return nil, err
	}
	return nil, call.Env.Comms().Send(call.Ctx, id, data)
}

func commClose(call *Call, args ...any) (any, error) {
	if err := requireEnv(call); err != nil {
		return nil, err
	}
	id, err := stringArg(args, 0, "id")
	if err != nil {
		return nil, err
	}
	return nil, call.Env.Comms().Close(call.Ctx, id, nil)
}

func helpFor(b *Builtins) Func {
	return func(call *Call, args ...any) (any, error) {
		if len(args) > 0 {
			name, err := stringArg(args, 0, "name")
			if err != nil {
				return nil, err
			}
			builtin, ok := b.Get(name)
			if !ok {
				return nil, backend.Errorf(NameError, "no builtin named %q", name)
			}
			return builtin.Signature + "\n    " + builtin.Doc, nil
		}

		var sb strings.Builder
		for _, builtin := range b.List() {
			fmt.Fprintf(&sb, "%-28s %s\n", builtin.Signature, builtin.Doc)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}
}

func requireEnv(call *Call) error {
	if call.Env == nil {
		return backend.Errorf(RuntimeError, "no kernel environment")
	}
	return nil
}

func typeErrorf(format string, args ...any) *backend.Error {
	return backend.Errorf(TypeError, format, args...)
}

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", typeErrorf("missing argument %q", name)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", typeErrorf("%s must be a string, got %T", name, args[i])
	}
	return s, nil
}

func mapArg(args []any, i int) (map[string]any, error) {
	if i >= len(args) || args[i] == nil {
		return nil, nil
	}
	m, ok := args[i].(map[string]any)
	if !ok {
		return nil, typeErrorf("data must be a map, got %T", args[i])
	}
	return m, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
