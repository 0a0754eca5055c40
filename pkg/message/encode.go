package message

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Encode writes the message in RFC 5322 wire format.  Multiparts without a boundary
// parameter get one derived from their content, so encoding the same tree twice yields
// identical output.  Leaf content is written exactly as stored.
func (m *Message) Encode(w io.Writer) error {
	b := &bytes.Buffer{}
	m.encode(b)
	_, err := w.Write(b.Bytes())
	return err
}

// Bytes returns the encoded message.
func (m *Message) Bytes() []byte {
	b := &bytes.Buffer{}
	m.encode(b)
	return b.Bytes()
}

// String returns the encoded message as text.
func (m *Message) String() string {
	return string(m.Bytes())
}

func (m *Message) encode(b *bytes.Buffer) {
	if m.kind == KindEncapsulated && m.inner != nil && m.inner.treeVersion() != m.innerVersion {
		m.encodeModifiedInner(b)
		return
	}
	if m.kind != KindMultipart {
		_ = m.header.writeTo(b, nil)
		b.WriteString("\r\n")
		b.Write(m.body)
		return
	}

	parts := make([][]byte, len(m.children))
	for i, c := range m.children {
		cb := &bytes.Buffer{}
		c.encode(cb)
		parts[i] = cb.Bytes()
	}
	ct := m.ContentType()
	if !ct.IsMultipart() {
		ct = MediaType{Type: "multipart/mixed"}
	}
	boundary := ct.Param("boundary")
	if boundary == "" || collides(boundary, m.preamble, m.epilogue, parts) {
		boundary = makeBoundary(m.preamble, m.epilogue, parts)
	}

	wrote := false
	_ = m.header.writeTo(b, func(f HeaderField) string {
		if wrote || !strings.EqualFold(f.Name, "Content-Type") {
			return f.Value
		}
		wrote = true
		if ct.Param("boundary") == boundary {
			return f.Value
		}
		return withBoundary(f.Value, ct, boundary)
	})
	if !wrote {
		b.WriteString(foldLine("Content-Type: " +
			formatParams(ct.Type, param{"boundary", boundary})))
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	if len(m.preamble) > 0 {
		b.Write(m.preamble)
		b.WriteString("\r\n")
	}
	for _, part := range parts {
		b.WriteString("--" + boundary + "\r\n")
		b.Write(part)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	b.Write(m.epilogue)
}

// encodeModifiedInner writes an encapsulated entity whose nested message has had
// headers changed since it was parsed.  The stored body is stale, so the nested message
// is encoded afresh and carried as 7bit or 8bit.
func (m *Message) encodeModifiedInner(b *bytes.Buffer) {
	inner := m.inner.Bytes()
	cte := cte7Bit
	if !sevenBitSafe(inner) {
		cte = cte8Bit
	}
	_ = m.header.writeTo(b, func(f HeaderField) string {
		if strings.EqualFold(f.Name, "Content-Transfer-Encoding") {
			return cte
		}
		return f.Value
	})
	b.WriteString("\r\n")
	b.Write(inner)
}

// withBoundary returns a Content-Type value carrying boundary.  Values without a
// boundary get it appended; otherwise the value is rebuilt from its parsed form.
func withBoundary(value string, ct MediaType, boundary string) string {
	if ct.Param("boundary") == "" {
		return formatParams(strings.TrimRight(strings.TrimSpace(value), ";"),
			param{"boundary", boundary})
	}
	names := make([]string, 0, len(ct.Params))
	for k := range ct.Params {
		if k != "boundary" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	params := make([]param, 0, len(names)+1)
	for _, k := range names {
		params = append(params, param{k, ct.Params[k]})
	}
	params = append(params, param{"boundary", boundary})
	return formatParams(ct.Type, params...)
}

// makeBoundary derives a boundary from the content it will separate, re-deriving until
// it occurs in none of the parts, nor the preamble or epilogue.
func makeBoundary(preamble, epilogue []byte, parts [][]byte) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	for i := 0; ; i++ {
		boundary := fmt.Sprintf("=_%x", sum[:12])
		if !collides(boundary, preamble, epilogue, parts) {
			return boundary
		}
		next := sha1.Sum(append(sum, byte(i)))
		sum = next[:]
	}
}

func collides(boundary string, preamble, epilogue []byte, parts [][]byte) bool {
	delim := []byte("--" + boundary)
	if bytes.Contains(preamble, delim) || bytes.Contains(epilogue, delim) {
		return true
	}
	for _, p := range parts {
		if bytes.Contains(p, delim) {
			return true
		}
	}
	return false
}
