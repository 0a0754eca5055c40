// Package message contains the MIME document model used for inbound mail: a tree of
// entities that can be parsed from raw bytes, constructed from structured arguments,
// and serialized back to RFC 5322 wire format.
package message

import (
	"strings"
)

// Kind identifies which payload variant a Message carries.
type Kind int

const (
	// KindLeaf is a terminal entity holding transfer-encoded content.
	KindLeaf Kind = iota
	// KindMultipart is a multipart/* entity holding child entities.
	KindMultipart
	// KindEncapsulated is a message/rfc822 entity holding a complete nested message.
	KindEncapsulated
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindMultipart:
		return "multipart"
	case KindEncapsulated:
		return "encapsulated"
	}
	return "unknown"
}

// Message is a single MIME entity: either a whole message or one part of one.
//
// Header mutation is not synchronized; a tree shared between goroutines must only be
// read.
type Message struct {
	// EnvelopeRecipient is the SMTP envelope recipient, when known to the caller.  It is
	// never derived from headers.
	EnvelopeRecipient string

	header   *Header
	kind     Kind
	body     []byte     // Raw transfer-encoded content; leaf and encapsulated only.
	children []*Message // Multipart only.
	preamble []byte
	epilogue []byte
	inner    *Message // Encapsulated only.
	// innerVersion is inner's treeVersion when body was last in sync with it.
	innerVersion int
	parent   *Message
	defects  []Defect

	defaultCharset string
}

// New returns an empty message: no headers and an empty text/plain body.
func New() *Message {
	return &Message{header: &Header{}}
}

// Header returns the header of this entity.  Changes made through it are reflected in
// the message.
func (m *Message) Header() *Header {
	if m.header == nil {
		m.header = &Header{}
	}
	return m.header
}

// Get returns the first value of the named header, or "".
func (m *Message) Get(name string) string {
	return m.header.Get(name)
}

// Values returns every value of the named header in order.
func (m *Message) Values(name string) []string {
	return m.header.Values(name)
}

// Has reports whether the named header is present.
func (m *Message) Has(name string) bool {
	return m.header.Has(name)
}

// Set replaces every instance of the named header with a single value.
func (m *Message) Set(name, value string) {
	m.Header().Set(name, value)
}

// Add appends a header instance.
func (m *Message) Add(name, value string) {
	m.Header().Add(name, value)
}

// Del removes every instance of the named header.
func (m *Message) Del(name string) {
	m.Header().Del(name)
}

// Kind returns the payload variant.
func (m *Message) Kind() Kind {
	return m.kind
}

// IsMultipart reports whether this entity holds child entities.
func (m *Message) IsMultipart() bool {
	return m.kind == KindMultipart
}

// ContentType returns the parsed Content-Type, defaulting to text/plain; charset=us-ascii.
func (m *Message) ContentType() MediaType {
	ct, _ := parseContentType(m.Get("Content-Type"))
	return ct
}

// MediaType returns the lower-case type/subtype of this entity.
func (m *Message) MediaType() string {
	return m.ContentType().Type
}

// Children returns the child entities of a multipart, or nil.
func (m *Message) Children() []*Message {
	if m.kind != KindMultipart {
		return nil
	}
	return append([]*Message(nil), m.children...)
}

// Child returns the i'th child entity, or nil when out of range.
func (m *Message) Child(i int) *Message {
	if m.kind != KindMultipart || i < 0 || i >= len(m.children) {
		return nil
	}
	return m.children[i]
}

// Message returns the nested message carried by a message/rfc822 entity, or nil.
func (m *Message) Message() *Message {
	return m.inner
}

// Parent returns the multipart containing this entity, or nil for a root.
func (m *Message) Parent() *Message {
	return m.parent
}

// Defects returns the anomalies recorded while parsing this entity.
func (m *Message) Defects() []Defect {
	return append([]Defect(nil), m.defects...)
}

// RawContent returns the content exactly as it would be transmitted, still transfer
// encoded.  It is nil for multiparts.
func (m *Message) RawContent() []byte {
	if m.kind == KindMultipart {
		return nil
	}
	return m.body
}

// ContentBytes returns the content with its transfer encoding removed.  Undecodable
// input yields whatever could be recovered.
func (m *Message) ContentBytes() []byte {
	if m.kind == KindMultipart {
		return nil
	}
	b, _ := decodeTransfer(m.Get("Content-Transfer-Encoding"), m.body)
	return b
}

// ContentText returns the content decoded with its declared charset.  Invalid
// sequences are replaced with U+FFFD.
func (m *Message) ContentText() string {
	if m.kind == KindMultipart {
		return ""
	}
	s, _ := decodeCharset(m.charset(), m.ContentBytes())
	return s
}

// charset returns the declared charset, or the configured default.
func (m *Message) charset() string {
	if m.Has("Content-Type") {
		if cs := m.ContentType().Param("charset"); cs != "" {
			return cs
		}
	}
	if m.defaultCharset != "" {
		return m.defaultCharset
	}
	return defaultCharset
}

// Disposition returns the lower-case Content-Disposition type, e.g. "attachment", or
// "" if absent.
func (m *Message) Disposition() string {
	disp, _ := parseDisposition(m.Get("Content-Disposition"))
	return disp
}

// ContentID returns the Content-ID without angle brackets, or "".
func (m *Message) ContentID() string {
	return unquoteContentID(m.Get("Content-ID"))
}

// Filename returns the filename suggested by the sender, taken from the
// Content-Disposition filename or the Content-Type name parameter.  The value is not
// sanitized and may contain path components; see AsUploadedFile.
func (m *Message) Filename() string {
	_, params := parseDisposition(m.Get("Content-Disposition"))
	name := params["filename"]
	if name == "" {
		name = m.ContentType().Param("name")
	}
	return decodeHeaderValue(name)
}

// Walk calls fn for this entity and each of its descendants in depth-first order.  It
// does not descend into encapsulated messages.  Walking stops at the first error.
func (m *Message) Walk(fn func(*Message) error) error {
	if err := fn(m); err != nil {
		return err
	}
	for _, c := range m.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// IsAttachment reports whether this entity is an attachment rather than part of the
// message body or an inline resource.
func (m *Message) IsAttachment() bool {
	if m.kind == KindMultipart {
		return false
	}
	if m.Disposition() == "attachment" {
		return true
	}
	if m.parent == nil {
		return false
	}
	return !m.IsInlineAttachment() && !m.isBodyPart()
}

// IsInlineAttachment reports whether this entity is an inline resource addressed by
// Content-ID, such as an image referenced from HTML with a cid: URL.
func (m *Message) IsInlineAttachment() bool {
	if m.kind == KindMultipart || m.ContentID() == "" {
		return false
	}
	switch m.Disposition() {
	case "attachment":
		return false
	case "inline":
	default:
		if m.parent == nil || m.parent.MediaType() != "multipart/related" {
			return false
		}
	}
	return !m.isBodyPart()
}

// isBodyPart reports whether this entity is a candidate for the text or HTML body.
func (m *Message) isBodyPart() bool {
	if m.kind != KindLeaf {
		return false
	}
	switch m.MediaType() {
	case "text/plain", "text/html":
	default:
		return false
	}
	if m.Disposition() == "attachment" || m.Filename() != "" {
		return false
	}
	if m.ContentID() != "" && !m.isRelatedRoot() {
		return false
	}
	return true
}

// isRelatedRoot reports whether this entity is the root (first) part of a
// multipart/related.
func (m *Message) isRelatedRoot() bool {
	p := m.parent
	return p != nil && p.MediaType() == "multipart/related" && len(p.children) > 0 &&
		p.children[0] == m
}

// setInner stores the message parsed from body.
func (m *Message) setInner(inner *Message) {
	m.inner = inner
	m.innerVersion = inner.treeVersion()
}

// treeVersion sums the header versions of m and everything below it, including
// encapsulated messages.  It grows with every header mutation in the tree.
func (m *Message) treeVersion() int {
	v := 0
	if m.header != nil {
		v = m.header.version
	}
	for _, c := range m.children {
		v += c.treeVersion()
	}
	if m.inner != nil {
		v += m.inner.treeVersion()
	}
	return v
}

// clone copies the structure of m and its headers.  Content bytes are shared, since
// they are never modified in place.
func (m *Message) clone() *Message {
	c := *m
	c.header = m.header.Clone()
	c.parent = nil
	c.defects = append([]Defect(nil), m.defects...)
	c.children = nil
	for _, child := range m.children {
		c.appendChild(child.clone())
	}
	if m.inner != nil {
		c.inner = m.inner.clone()
	}
	return &c
}

func (m *Message) appendChild(c *Message) {
	c.parent = m
	m.children = append(m.children, c)
}

func unquoteContentID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}
