// Package display turns evaluated values into MIME bundles: alternative
// renderings of one value keyed by MIME type.
package display

// MIME types produced by the built-in formatters.
const (
	MIMEPlain      = "text/plain"
	MIMEHTML       = "text/html"
	MIMEMarkdown   = "text/markdown"
	MIMELatex      = "text/latex"
	MIMEJSON       = "application/json"
	MIMEJavaScript = "application/javascript"
	MIMEPNG        = "image/png"
	MIMEJPEG       = "image/jpeg"
	MIMEGIF        = "image/gif"
	MIMESVG        = "image/svg+xml"
)

// Bundle is a set of renderings of one value. Data maps MIME type to the
// representation: a string, base64 text for binary formats, or JSON-ready
// structured data. Metadata holds per-type details such as image size.
type Bundle struct {
	Data     map[string]any
	Metadata map[string]any
}

// NewBundle creates an empty bundle.
func NewBundle() Bundle {
	return Bundle{
		Data:     map[string]any{},
		Metadata: map[string]any{},
	}
}

// Plain creates a bundle holding only text/plain.
func Plain(text string) Bundle {
	b := NewBundle()
	b.Data[MIMEPlain] = text
	return b
}

// Set adds a representation.
func (b *Bundle) Set(mime string, value any) {
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	b.Data[mime] = value
}

// SetMetadata adds metadata for one representation.
func (b *Bundle) SetMetadata(mime string, meta map[string]any) {
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	b.Metadata[mime] = meta
}

// IsEmpty reports whether the bundle has no representations.
func (b Bundle) IsEmpty() bool {
	return len(b.Data) == 0
}

// Ensure guarantees a non-empty bundle carries text/plain, using plain when
// it does not.
func (b *Bundle) Ensure(plain string) {
	if b.IsEmpty() {
		return
	}
	if _, ok := b.Data[MIMEPlain]; !ok {
		b.Data[MIMEPlain] = plain
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
}

// MimeBundler is implemented by values that render themselves. It takes
// precedence over every registered formatter.
type MimeBundler interface {
	MimeBundle() (Bundle, error)
}
