package display

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"text/tabwriter"
)

// HTML is rendered as text/html.
type HTML string

func (h HTML) MimeBundle() (Bundle, error) {
	b := Plain(string(h))
	b.Set(MIMEHTML, string(h))
	return b, nil
}

// Markdown is rendered as text/markdown.
type Markdown string

func (m Markdown) MimeBundle() (Bundle, error) {
	b := Plain(string(m))
	b.Set(MIMEMarkdown, string(m))
	return b, nil
}

// Latex is rendered as text/latex.
type Latex string

func (l Latex) MimeBundle() (Bundle, error) {
	b := Plain(string(l))
	b.Set(MIMELatex, string(l))
	return b, nil
}

// SVG is rendered as image/svg+xml.
type SVG string

func (s SVG) MimeBundle() (Bundle, error) {
	b := Plain("<SVG image>")
	b.Set(MIMESVG, string(s))
	return b, nil
}

// JavaScript is rendered as application/javascript.
type JavaScript string

func (j JavaScript) MimeBundle() (Bundle, error) {
	b := Plain("<JavaScript>")
	b.Set(MIMEJavaScript, string(j))
	return b, nil
}

// JSON renders Value as application/json with an indented text/plain form.
type JSON struct {
	Value any
}

func (j JSON) MimeBundle() (Bundle, error) {
	data, err := json.MarshalIndent(j.Value, "", "  ")
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: json: %v", ErrFormatter, err)
	}

	var structured any
	if err := json.Unmarshal(data, &structured); err != nil {
		return Bundle{}, fmt.Errorf("%w: json: %v", ErrFormatter, err)
	}

	b := Plain(string(data))
	b.Set(MIMEJSON, structured)
	return b, nil
}

// Image is an encoded image. An empty MIME is detected from Data; zero
// Width and Height are read from the image header when possible.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

func (i Image) MimeBundle() (Bundle, error) {
	return imageBundle(i.Data, i.MIME, i.Width, i.Height)
}

// Table renders rows as an HTML table with a text/plain fallback.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Records builds a Table from maps, using the keys of the first record as
// columns when none are given.
func Records(records []map[string]any, columns ...string) Table {
	if len(columns) == 0 && len(records) > 0 {
		columns = sortedKeys(records[0])
	}

	t := Table{Columns: columns, Rows: make([][]any, len(records))}
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = rec[col]
		}
		t.Rows[i] = row
	}
	return t
}

func (t Table) MimeBundle() (Bundle, error) {
	var h strings.Builder
	h.WriteString("<table>\n")
	if len(t.Columns) > 0 {
		h.WriteString("<thead><tr>")
		for _, col := range t.Columns {
			fmt.Fprintf(&h, "<th>%s</th>", html.EscapeString(col))
		}
		h.WriteString("</tr></thead>\n")
	}
	h.WriteString("<tbody>\n")
	for _, row := range t.Rows {
		h.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(&h, "<td>%s</td>", html.EscapeString(fmt.Sprint(cell)))
		}
		h.WriteString("</tr>\n")
	}
	h.WriteString("</tbody>\n</table>")

	var p bytes.Buffer
	w := tabwriter.NewWriter(&p, 0, 0, 2, ' ', 0)
	if len(t.Columns) > 0 {
		fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	}
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = fmt.Sprint(cell)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	b := Plain(strings.TrimRight(p.String(), "\n"))
	b.Set(MIMEHTML, h.String())
	return b, nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
