package history

// Entry is one executed input. Session numbers start at 1 and increase with
// each kernel start; Line is the execution count within the session.
type Entry struct {
	Session int    `json:"session"`
	Line    int    `json:"line"`
	Input   string `json:"input"`
	Output  string `json:"output,omitempty"`
}

// Tuple returns the entry in history_reply form: [session, line, input], or
// [session, line, [input, output]] when output is requested.
func (e Entry) Tuple(output bool) []any {
	if output {
		var out any
		if e.Output != "" {
			out = e.Output
		}
		return []any{e.Session, e.Line, []any{e.Input, out}}
	}
	return []any{e.Session, e.Line, e.Input}
}
