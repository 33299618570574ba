package calc

import (
	"strings"
	"unicode"
)

type stmtKind int

const (
	exprStmt stmtKind = iota
	assignStmt
	delStmt
	raiseStmt
)

type statement struct {
	line   int
	source string
	kind   stmtKind
	names  []string
	expr   string
}

// scanState reports how a piece of source ends: open brackets, an open
// string, or a stray closing bracket.
type scanState struct {
	depth      int
	quote      rune
	unbalanced bool
}

func (s scanState) open() bool {
	return s.depth > 0 || s.quote != 0
}

// splitStatements breaks code into statements, one per line, except that a
// line ending inside brackets or a string continues onto the next. Blank
// lines and comment lines are dropped.
func splitStatements(code string) ([]statement, scanState) {
	var (
		stmts []statement
		state scanState
		buf   strings.Builder
		start = 1
		line  = 1
	)

	flush := func() {
		src := strings.TrimSpace(buf.String())
		buf.Reset()
		if src != "" && !isComment(src) {
			stmts = append(stmts, statement{line: start, source: src})
		}
	}

	runes := []rune(code)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			if state.open() {
				buf.WriteRune(r)
				continue
			}
			flush()
			start = line
			continue
		}
		buf.WriteRune(r)

		if state.quote != 0 {
			switch {
			case r == '\\' && state.quote != '`' && i+1 < len(runes):
				i++
				buf.WriteRune(runes[i])
			case r == state.quote:
				state.quote = 0
			}
			continue
		}

		switch r {
		case '"', '\'', '`':
			state.quote = r
		case '(', '[', '{':
			state.depth++
		case ')', ']', '}':
			state.depth--
			if state.depth < 0 {
				state.unbalanced = true
				state.depth = 0
			}
		case '#', '/':
			if isCommentStart(buf.String(), runes, i) {
				for i+1 < len(runes) && runes[i+1] != '\n' {
					i++
					buf.WriteRune(runes[i])
				}
			}
		}
	}
	flush()

	return stmts, state
}

// isCommentStart reports whether the rune at i, just written to buf, opens a
// comment line.
func isCommentStart(buf string, runes []rune, i int) bool {
	switch strings.TrimSpace(buf) {
	case "#":
		return true
	case "/":
		return i+1 < len(runes) && runes[i+1] == '/'
	}
	return false
}

func isComment(src string) bool {
	return strings.HasPrefix(src, "#") || strings.HasPrefix(src, "//")
}

var reserved = map[string]bool{
	"true": true, "false": true, "nil": true, "let": true, "in": true,
	"not": true, "and": true, "or": true, "if": true, "else": true,
	"matches": true, "contains": true, "startsWith": true, "endsWith": true,
	"del": true, "raise": true,
}

// classify fills in the statement kind from its source.
func classify(st *statement) {
	src := st.source

	if rest, ok := keyword(src, "del"); ok {
		st.kind = delStmt
		for _, name := range strings.Split(rest, ",") {
			st.names = append(st.names, strings.TrimSpace(name))
		}
		return
	}

	if rest, ok := keyword(src, "raise"); ok {
		st.kind = raiseStmt
		st.expr = rest
		return
	}

	if name, rest, ok := assignment(src); ok {
		st.kind = assignStmt
		st.names = []string{name}
		st.expr = rest
		return
	}

	st.kind = exprStmt
	st.expr = src
}

// keyword matches src starting with word followed by whitespace or nothing.
func keyword(src, word string) (string, bool) {
	if !strings.HasPrefix(src, word) {
		return "", false
	}
	rest := src[len(word):]
	if rest == "" {
		return "", true
	}
	if !unicode.IsSpace(rune(rest[0])) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// assignment matches "name = expr", rejecting comparisons like "name == x".
func assignment(src string) (string, string, bool) {
	end := identEnd(src, 0)
	if end == 0 {
		return "", "", false
	}
	name := src[:end]

	rest := strings.TrimLeft(src[end:], " \t")
	if !strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, "==") {
		return "", "", false
	}
	return name, strings.TrimSpace(rest[1:]), true
}

func isIdent(s string) bool {
	return s != "" && identEnd(s, 0) == len(s)
}

// identEnd returns the byte offset where the identifier starting at i ends,
// or i when there is none.
func identEnd(s string, i int) int {
	j := i
	for j < len(s) {
		c := s[j]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (j > i && c >= '0' && c <= '9') {
			j++
			continue
		}
		break
	}
	return j
}
