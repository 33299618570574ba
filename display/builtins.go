package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

func registerBuiltins(r *Registry) error {
	return errors.Join(
		RegisterType(r, "image", formatImage, WithPriority(PriorityBuiltin)),
		RegisterType(r, "bytes", formatBytes, WithPriority(PriorityBuiltin)),
		RegisterType(r, "error", formatError, WithPriority(PriorityBuiltin)),
		RegisterType(r, "records", formatRecords(r), WithPriority(PriorityBuiltin)),
		RegisterType(r, "stringer", formatStringer, WithPriority(PriorityStringer)),
		r.Register("json", isCollection, formatCollection(r), WithPriority(PriorityGeneric)),
	)
}

func formatImage(img image.Image) (Bundle, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Bundle{}, fmt.Errorf("%w: png: %v", ErrFormatter, err)
	}
	bounds := img.Bounds()
	return imageBundle(buf.Bytes(), MIMEPNG, bounds.Dx(), bounds.Dy())
}

func formatBytes(data []byte) (Bundle, error) {
	mime := detect(data)

	switch {
	case strings.HasPrefix(mime, "image/"):
		return imageBundle(data, mime, 0, 0)
	case strings.HasPrefix(mime, "text/") && utf8.Valid(data):
		return Plain(string(data)), nil
	default:
		return Plain(fmt.Sprintf("<%d bytes, %s>", len(data), mime)), nil
	}
}

func formatError(err error) (Bundle, error) {
	return Plain(err.Error()), nil
}

func formatStringer(s fmt.Stringer) (Bundle, error) {
	return Plain(s.String()), nil
}

func formatRecords(r *Registry) func([]map[string]any) (Bundle, error) {
	return func(records []map[string]any) (Bundle, error) {
		b, err := Records(records).MimeBundle()
		if err != nil {
			return Bundle{}, err
		}
		if !r.cfg.DisableJSON {
			b.Set(MIMEJSON, records)
		}
		return b, nil
	}
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}

// formatCollection renders maps and slices as JSON. The text/plain form is
// compact JSON so it reads the same as the structured form.
func formatCollection(r *Registry) Formatter {
	return func(v any) (Bundle, error) {
		data, err := json.Marshal(v)
		if err != nil {
			// Not JSON-encodable; leave it to the fallback.
			return Bundle{}, nil
		}

		b := Plain(string(data))
		if r.cfg.DisableJSON {
			return b, nil
		}

		var structured any
		if err := json.Unmarshal(data, &structured); err != nil {
			return Bundle{}, fmt.Errorf("%w: json: %v", ErrFormatter, err)
		}
		b.Set(MIMEJSON, structured)
		return b, nil
	}
}

func imageBundle(data []byte, mime string, width, height int) (Bundle, error) {
	if len(data) == 0 {
		return Bundle{}, fmt.Errorf("%w: empty image", ErrFormatter)
	}
	if mime == "" {
		mime = detect(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return Bundle{}, fmt.Errorf("%w: %s is not an image", ErrFormatter, mime)
	}

	if mime == MIMESVG {
		b := Plain("<SVG image>")
		b.Set(MIMESVG, string(data))
		return b, nil
	}

	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}

	b := NewBundle()
	b.Set(mime, encodeBase64(data))
	if width > 0 && height > 0 {
		b.Set(MIMEPlain, fmt.Sprintf("<%s image %dx%d>", mime, width, height))
		b.SetMetadata(mime, map[string]any{"width": width, "height": height})
	} else {
		b.Set(MIMEPlain, fmt.Sprintf("<%s image>", mime))
	}
	return b, nil
}

// detect sniffs the MIME type of data, dropping any parameters.
func detect(data []byte) string {
	mime := mimetype.Detect(data).String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
