package calc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/tailored-agentic-units/nbkernel/backend"
)

var completionKeywords = []string{"true", "false", "nil", "del", "raise", "not", "and", "or", "in", "let"}

func (i *Interpreter) Complete(_ context.Context, code string, cursor int) (backend.Completion, error) {
	runes, cursor := runesAt(code, cursor)
	start := cursor
	for start > 0 && isIdentRune(runes[start-1]) {
		start--
	}
	prefix := string(runes[start:cursor])

	matches := []string{}
	for _, name := range i.names() {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}

	return backend.Completion{
		Matches:     matches,
		CursorStart: start,
		CursorEnd:   cursor,
		Metadata:    map[string]any{},
	}, nil
}

func (i *Interpreter) Inspect(_ context.Context, code string, cursor, detail int) (backend.Inspection, error) {
	name := nameAt(code, cursor)
	info := i.describe(name)
	if !info.Found {
		return backend.Inspection{Found: false, Data: map[string]any{}, Metadata: map[string]any{}}, nil
	}

	var text string
	if info.Definition != "" {
		text = info.Definition + "\n    " + info.Docstring
	} else {
		text = fmt.Sprintf("%s: %s = %s", info.Name, info.TypeName, info.StringForm)
	}
	if detail > 0 && info.Definition == "" {
		text += fmt.Sprintf("\n%#v", i.Vars()[name])
	}

	return backend.Inspection{
		Found:    true,
		Data:     map[string]any{"text/plain": text},
		Metadata: map[string]any{},
	}, nil
}

func (i *Interpreter) IsComplete(_ context.Context, code string) (backend.Completeness, error) {
	stmts, state := splitStatements(code)
	switch {
	case state.unbalanced:
		return backend.Completeness{Status: backend.Invalid}, nil
	case state.open():
		return backend.Completeness{Status: backend.Incomplete, Indent: "    "}, nil
	}

	for idx := range stmts {
		st := &stmts[idx]
		classify(st)
		if st.expr == "" {
			continue
		}
		if _, err := expr.Compile(st.expr, expr.AllowUndefinedVariables()); err != nil {
			if strings.Contains(err.Error(), "EOF") {
				return backend.Completeness{Status: backend.Incomplete, Indent: ""}, nil
			}
			return backend.Completeness{Status: backend.Invalid}, nil
		}
	}
	return backend.Completeness{Status: backend.Complete}, nil
}

func (i *Interpreter) ObjectInfo(_ context.Context, code string, cursor int) (backend.ObjectInfo, error) {
	return i.describe(nameAt(code, cursor)), nil
}

func (i *Interpreter) describe(name string) backend.ObjectInfo {
	info := backend.ObjectInfo{Name: name}
	if name == "" {
		return info
	}

	if b, ok := i.builtins.Get(name); ok {
		info.Found = true
		info.TypeName = "builtin"
		info.StringForm = "<builtin " + name + ">"
		info.Docstring = b.Doc
		info.Definition = b.Signature
		return info
	}

	if v, ok := i.Vars()[name]; ok {
		info.Found = true
		info.TypeName = fmt.Sprintf("%T", v)
		info.StringForm = fmt.Sprint(v)
	}
	return info
}

func (i *Interpreter) names() []string {
	var names []string
	for _, b := range i.builtins.List() {
		names = append(names, b.Name)
	}
	for name := range i.Vars() {
		names = append(names, name)
	}
	names = append(names, completionKeywords...)
	sort.Strings(names)
	return names
}

// nameAt returns the identifier under or just before the cursor.
func nameAt(code string, cursor int) string {
	runes, cursor := runesAt(code, cursor)
	start, end := cursor, cursor
	for start > 0 && isIdentRune(runes[start-1]) {
		start--
	}
	for end < len(runes) && isIdentRune(runes[end]) {
		end++
	}
	name := string(runes[start:end])
	if !isIdent(name) {
		return ""
	}
	return name
}

// runesAt returns code as runes with cursor clamped to its bounds.
func runesAt(code string, cursor int) ([]rune, int) {
	runes := []rune(code)
	cursor = max(0, min(cursor, len(runes)))
	return runes, cursor
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
