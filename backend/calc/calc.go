// Package calc is a small expression language backend built on expr-lang.
//
// A cell is a sequence of statements, one per line:
//
//	x = 2 * 21          assign
//	del x               remove variables
//	raise "message"     raise a RuntimeError
//	x + 1               evaluate; the last one is the cell's value
//
// Expressions use the expr language (https://expr-lang.org) plus the
// builtins in a Builtins set.
package calc

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Name is the backend name calc registers under.
const Name = "calc"

const version = "1.0.0"

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithBuiltins replaces the default builtin set.
func WithBuiltins(b *Builtins) Option {
	return func(i *Interpreter) { i.builtins = b }
}

// Interpreter is a calc session. Variables persist across executions.
type Interpreter struct {
	builtins *Builtins

	mu   sync.Mutex
	vars map[string]any
}

// New creates an interpreter with the default builtins.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		builtins: DefaultBuiltins(),
		vars:     make(map[string]any),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Register adds calc to a backend registry.
func Register(r *backend.Registry) error {
	return r.Register(Name, func() (backend.Backend, error) {
		return New(), nil
	})
}

func (i *Interpreter) LanguageInfo() protocol.LanguageInfo {
	return protocol.LanguageInfo{
		Name:           Name,
		Version:        version,
		MIMEType:       "text/x-calc",
		FileExtension:  ".calc",
		PygmentsLexer:  "javascript",
		CodemirrorMode: "javascript",
	}
}

func (i *Interpreter) Banner() string {
	return "calc " + version + ": expressions, variables and rich output. Try help()."
}

// Vars returns a copy of the session variables.
func (i *Interpreter) Vars() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return maps.Clone(i.vars)
}

func (i *Interpreter) Execute(ctx context.Context, env backend.Env, code string) (any, error) {
	stmts, state := splitStatements(code)
	if state.open() || state.unbalanced {
		return nil, raise(SyntaxError, "unbalanced brackets or unterminated string", 1, code)
	}

	var result any
	for idx := range stmts {
		st := &stmts[idx]
		classify(st)

		if ctx.Err() != nil {
			return nil, interrupted(st.line, st.source)
		}

		value, err := i.run(ctx, env, st)
		if err != nil {
			return nil, err
		}
		result = value
	}
	return result, nil
}

func (i *Interpreter) run(ctx context.Context, env backend.Env, st *statement) (any, error) {
	switch st.kind {
	case delStmt:
		i.mu.Lock()
		defer i.mu.Unlock()
		for _, name := range st.names {
			if _, ok := i.vars[name]; !ok {
				return nil, raise(NameError, fmt.Sprintf("name %q is not defined", name), st.line, st.source)
			}
		}
		for _, name := range st.names {
			delete(i.vars, name)
		}
		return nil, nil

	case raiseStmt:
		msg := "exception raised"
		if st.expr != "" {
			value, err := i.eval(ctx, env, st)
			if err != nil {
				return nil, err
			}
			msg = fmt.Sprint(value)
		}
		return nil, raise(RuntimeError, msg, st.line, st.source)

	case assignStmt:
		name := st.names[0]
		if reserved[name] {
			return nil, raise(SyntaxError, fmt.Sprintf("cannot assign to keyword %q", name), st.line, st.source)
		}
		if _, ok := i.builtins.Get(name); ok {
			return nil, raise(SyntaxError, fmt.Sprintf("cannot assign to builtin %q", name), st.line, st.source)
		}
		value, err := i.eval(ctx, env, st)
		if err != nil {
			return nil, err
		}
		i.mu.Lock()
		i.vars[name] = value
		i.mu.Unlock()
		return nil, nil

	default:
		return i.eval(ctx, env, st)
	}
}

// execution collects the first error raised by a builtin during one
// evaluation, since expr reports builtin failures as formatted text.
type execution struct {
	call *Call

	mu     sync.Mutex
	raised error
}

func (x *execution) bind(b Builtin) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if err := x.call.Ctx.Err(); err != nil {
			return nil, x.raise(backend.Errorf(backend.InterruptName, "%s", backend.ErrInterrupted.Error()))
		}
		v, err := b.Fn(x.call, params...)
		if err != nil {
			return nil, x.raise(err)
		}
		return v, nil
	}
}

func (x *execution) raise(err error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.raised == nil {
		x.raised = err
	}
	return err
}

func (x *execution) err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.raised
}

type outcome struct {
	value any
	err   error
}

// eval compiles and runs one expression against a snapshot of the
// variables. The run happens on its own goroutine so cancellation returns
// immediately even when the expression does not check ctx.
func (i *Interpreter) eval(ctx context.Context, env backend.Env, st *statement) (any, error) {
	snapshot := i.Vars()
	x := &execution{call: &Call{Ctx: ctx, Env: env, Vars: snapshot}}

	program, err := expr.Compile(st.expr, i.options(snapshot, x)...)
	if err != nil {
		return nil, compileError(err, st)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%v", r)}
			}
		}()
		v, err := expr.Run(program, snapshot)
		done <- outcome{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, interrupted(st.line, st.source)
	case o := <-done:
		if o.err == nil {
			return o.value, nil
		}
		if ctx.Err() != nil {
			return nil, interrupted(st.line, st.source)
		}
		if raised := x.err(); raised != nil {
			be := backend.AsError(raised)
			if be.Name == "Error" {
				be = &backend.Error{Name: RuntimeError, Value: be.Value}
			}
			return nil, locate(be, st.line, st.source)
		}
		return nil, raise(RuntimeError, summary(o.err.Error()), st.line, st.source)
	}
}

func (i *Interpreter) options(env map[string]any, x *execution) []expr.Option {
	opts := []expr.Option{expr.Env(env)}
	for _, b := range i.builtins.List() {
		opts = append(opts, expr.Function(b.Name, x.bind(b)))
	}
	return opts
}

var unknownName = regexp.MustCompile(`unknown name ([A-Za-z_][A-Za-z0-9_]*)`)

func compileError(err error, st *statement) *backend.Error {
	msg := err.Error()
	if m := unknownName.FindStringSubmatch(msg); m != nil {
		return raise(NameError, fmt.Sprintf("name %q is not defined", m[1]), st.line, st.source)
	}
	return raise(SyntaxError, strings.TrimSpace(summary(msg)), st.line, st.source)
}
