package dot

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Writer emits DOT text. The first write error is kept and returned by Err;
// later calls are no-ops.
type Writer struct {
	w      io.Writer
	indent int
	err    error
}

// NewWriter returns a Writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error
func (w *Writer) Err() error {
	return w.err
}

// Line writes one indented line
func (w *Writer) Line(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, "%s%s\n", strings.Repeat("\t", w.indent), fmt.Sprintf(format, args...))
}

// Open writes an opening line ending in "{" and indents
func (w *Writer) Open(format string, args ...any) {
	w.Line(format+" {", args...)
	w.indent++
}

// Close dedents and writes "}"
func (w *Writer) Close() {
	if w.indent > 0 {
		w.indent--
	}
	w.Line("}")
}

// KV is one attribute to be written
type KV struct {
	Key   string
	Value string
	Bare  bool // write the value without quotes
}

// Q returns a quoted KV
func Q(key, value string) KV { return KV{Key: key, Value: value} }

// N returns an unquoted KV, used for numerals
func N(key string, value any) KV {
	var s string
	switch v := value.(type) {
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	return KV{Key: key, Value: s, Bare: true}
}

// FormatAttrs renders an attribute list including brackets, or "" if empty
func FormatAttrs(kvs []KV) string {
	if len(kvs) == 0 {
		return ""
	}
	parts := make([]string, len(kvs))
	for i, kv := range kvs {
		if kv.Bare {
			parts[i] = kv.Key + "=" + kv.Value
		} else {
			parts[i] = kv.Key + "=" + Quote(kv.Value)
		}
	}
	return " [" + strings.Join(parts, ", ") + "]"
}

// Quote returns s as a DOT string literal
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
