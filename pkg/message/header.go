package message

import (
	"io"
	"mime"
	"strings"
)

// HeaderField is a single header line: a name as registered and its unfolded value.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered multimap of header fields.  Names are matched
// case-insensitively, while the casing and order of every field is kept for
// serialization.
type Header struct {
	fields []HeaderField
	// version counts mutations through Add, Set and Del.
	version int
}

// NewHeader returns a Header holding copies of the provided fields, in order.
func NewHeader(fields ...HeaderField) *Header {
	h := &Header{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

// Get returns the value of the first field named name, or "" if there is none.
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns the values of every field named name, in header order.
func (h *Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	var vals []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Has reports whether at least one field named name exists.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Add appends a field, leaving existing fields of the same name in place.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
	h.version++
}

// Set replaces all fields named name with exactly one field.  The new field takes
// the position of the first field it replaces, or is appended when there was none.
func (h *Header) Set(name, value string) {
	pos := -1
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			if pos < 0 {
				pos = len(kept)
				kept = append(kept, HeaderField{Name: f.Name, Value: value})
			}
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if pos < 0 {
		h.Add(name, value)
		return
	}
	h.version++
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
	h.version++
}

// Len returns the number of fields.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Fields returns a copy of all fields in header order.
func (h *Header) Fields() []HeaderField {
	if h == nil {
		return nil
	}
	return append([]HeaderField(nil), h.fields...)
}

// Map returns the header as a map keyed by canonical field name, in the style of
// textproto.MIMEHeader.
func (h *Header) Map() map[string][]string {
	m := make(map[string][]string, h.Len())
	for _, f := range h.Fields() {
		key := canonicalName(f.Name)
		m[key] = append(m[key], f.Value)
	}
	return m
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	if h == nil {
		return &Header{}
	}
	return &Header{fields: h.Fields(), version: h.version}
}

// unstructured headers are RFC 2047 encoded on output when they carry non-ASCII text.
var unstructured = map[string]bool{
	"subject":             true,
	"comments":            true,
	"content-description": true,
}

// writeTo writes the header block, without the terminating blank line.  override, when
// not nil, supplies replacement values for single fields.
func (h *Header) writeTo(w io.Writer, override func(HeaderField) string) error {
	for _, f := range h.Fields() {
		value := f.Value
		if override != nil {
			value = override(f)
		}
		if unstructured[strings.ToLower(f.Name)] && !isASCII(value) {
			value = mime.QEncoding.Encode("utf-8", value)
		}
		if _, err := io.WriteString(w, foldLine(f.Name+": "+value)+"\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// canonicalName formats a header name in the customary Mixed-Case form.
func canonicalName(name string) string {
	upper := true
	b := []byte(strings.ToLower(name))
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
		upper = c == '-'
	}
	return string(b)
}

const foldLimit = 78

// foldLine folds an over-long header line at single spaces.  Folding only ever inserts
// CRLF in front of a lone space, so unfolding restores the original value.
func foldLine(line string) string {
	if len(line) <= foldLimit {
		return line
	}
	var b strings.Builder
	start := 0
	lastFold := -1
	for i := 1; i < len(line)-1; i++ {
		if line[i] != ' ' || line[i-1] == ' ' || line[i-1] == '\t' ||
			line[i+1] == ' ' || line[i+1] == '\t' {
			continue
		}
		if i-start > foldLimit && lastFold > start {
			b.WriteString(line[start:lastFold])
			b.WriteString("\r\n")
			start = lastFold
		}
		lastFold = i
	}
	if len(line)-start > foldLimit && lastFold > start {
		b.WriteString(line[start:lastFold])
		b.WriteString("\r\n")
		start = lastFold
	}
	b.WriteString(line[start:])
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
