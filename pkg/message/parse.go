package message

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// Parser converts raw MIME into Message trees.  The zero value is not useful; use
// NewParser for the defaults.
type Parser struct {
	// MaxDepth limits nesting of multiparts and encapsulated messages.  Deeper entities
	// are kept unparsed and a DepthExceeded defect is recorded.
	MaxDepth int
	// MaxParts limits the number of entities created for one input.
	MaxParts int
	// DefaultCharset is used to decode text that does not declare a charset.
	DefaultCharset string
	// PreserveFoldingWhitespace keeps the whitespace that starts a header continuation
	// line.  By default it collapses to a single space.
	PreserveFoldingWhitespace bool
}

// NewParser returns a Parser with default limits.
func NewParser() *Parser {
	return &Parser{
		MaxDepth:       32,
		MaxParts:       10000,
		DefaultCharset: defaultCharset,
	}
}

var defaultParser = NewParser()

// Parse parses raw MIME using the default Parser.
func Parse(raw []byte) *Message {
	return defaultParser.Parse(raw)
}

// ParseString parses raw MIME text using the default Parser.
func ParseString(raw string) *Message {
	return defaultParser.Parse([]byte(raw))
}

// ParseString parses raw MIME text.
func (p *Parser) ParseString(raw string) *Message {
	return p.Parse([]byte(raw))
}

// ParseReader reads r to the end and parses it.  Only read errors are returned.
func (p *Parser) ParseReader(r io.Reader) (*Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return p.Parse(raw), nil
}

// Parse parses raw MIME into a Message tree.  It never fails: problems are recorded as
// defects on the affected entity and parsing continues with a best-effort result.
func (p *Parser) Parse(raw []byte) *Message {
	st := &parseState{}
	m := p.parseEntity(st, raw, 0, "")
	log.Debug().Str("module", "message").Int("parts", len(st.nodes)).
		Int("defects", st.defects).Msg("Parsed MIME message")
	return m
}

// parseState is shared by every entity of one Parse call.  nodes holds each entity in
// creation order and bounds the total work done.
type parseState struct {
	nodes   []*Message
	defects int
}

func (p *Parser) full(st *parseState) bool {
	return p.MaxParts > 0 && len(st.nodes) >= p.MaxParts
}

func (p *Parser) newEntity(st *parseState) *Message {
	m := &Message{header: &Header{}, defaultCharset: p.DefaultCharset}
	st.nodes = append(st.nodes, m)
	return m
}

func (p *Parser) defect(st *parseState, m *Message, kind DefectKind, format string,
	args ...interface{}) {
	d := Defect{Kind: kind, Detail: fmt.Sprintf(format, args...)}
	m.defects = append(m.defects, d)
	st.defects++
	log.Debug().Str("module", "message").Str("defect", kind.String()).
		Str("detail", d.Detail).Msg("MIME defect")
}

// parseEntity parses one entity.  defaultType applies when the entity has no
// Content-Type, as for the parts of a multipart/digest.
func (p *Parser) parseEntity(st *parseState, raw []byte, depth int, defaultType string) *Message {
	m := p.newEntity(st)
	body := p.readHeader(st, m, raw, depth == 0)
	if defaultType != "" && !m.Has("Content-Type") {
		m.header.Add("Content-Type", defaultType)
	}
	ct, err := parseContentType(m.Get("Content-Type"))
	if err != nil {
		p.defect(st, m, InvalidContentType, "%v", err)
	}

	switch {
	case ct.IsMultipart():
		if p.MaxDepth > 0 && depth >= p.MaxDepth {
			p.defect(st, m, DepthExceeded, "multipart nested deeper than %d", p.MaxDepth)
			p.opaqueMultipart(st, m, body)
			return m
		}
		boundary := ct.Param("boundary")
		if boundary == "" {
			p.defect(st, m, MissingBoundary, "%s without boundary parameter", ct.Type)
			p.opaqueMultipart(st, m, body)
			return m
		}
		childType := ""
		if ct.Sub() == "digest" {
			childType = "message/rfc822"
		}
		p.parseMultipart(st, m, body, boundary, depth, childType)

	case ct.IsEncapsulated():
		m.body = body
		content := p.checkTransfer(st, m)
		if p.MaxDepth > 0 && depth >= p.MaxDepth {
			p.defect(st, m, DepthExceeded, "message nested deeper than %d", p.MaxDepth)
			return m
		}
		if p.full(st) {
			p.defect(st, m, TooManyParts, "limit of %d parts reached", p.MaxParts)
			return m
		}
		m.kind = KindEncapsulated
		m.setInner(p.parseEntity(st, content, depth+1, ""))

	default:
		m.body = body
		p.checkTransfer(st, m)
		if ct.Main() == "text" {
			if cs := ct.Param("charset"); cs != "" && !knownCharset(cs) {
				p.defect(st, m, UnknownCharset, "charset %q", cs)
			}
		}
	}
	return m
}

// checkTransfer decodes the body once to record transfer encoding defects, returning the
// decoded content.
func (p *Parser) checkTransfer(st *parseState, m *Message) []byte {
	cte := m.Get("Content-Transfer-Encoding")
	content, err := decodeTransfer(cte, m.body)
	if err != nil {
		switch strings.ToLower(strings.TrimSpace(cte)) {
		case cteBase64:
			p.defect(st, m, InvalidBase64, "%v", err)
		case cteQuotedPrintable:
			p.defect(st, m, InvalidQuotedPrintable, "%v", err)
		default:
			p.defect(st, m, UnknownTransferEncoding, "%v", err)
		}
	}
	return content
}

// opaqueMultipart turns m into a multipart holding a single unparsed leaf with body.
func (p *Parser) opaqueMultipart(st *parseState, m *Message, body []byte) {
	m.kind = KindMultipart
	leaf := p.newEntity(st)
	leaf.body = body
	m.appendChild(leaf)
}

// parseMultipart splits body on boundary delimiter lines and parses each part.
func (p *Parser) parseMultipart(st *parseState, m *Message, body []byte, boundary string,
	depth int, childType string) {
	m.kind = KindMultipart
	delim := []byte("--" + boundary)
	var parts [][]byte
	partStart := -1
	closed := false
	pos := 0
	for pos < len(body) {
		lineEnd, next := nextLine(body, pos)
		isDelim, isClose := delimiterLine(body[pos:lineEnd], delim)
		if isDelim {
			end := trimLineBreak(body, pos)
			if partStart < 0 {
				m.preamble = body[:end]
			} else {
				parts = append(parts, body[partStart:max(end, partStart)])
			}
			if isClose {
				m.epilogue = body[next:]
				closed = true
				break
			}
			partStart = next
		}
		pos = next
	}

	switch {
	case partStart < 0 && !closed:
		p.defect(st, m, BoundaryNotFound, "boundary %q not found", boundary)
		m.preamble = nil
		leaf := p.newEntity(st)
		leaf.body = body
		m.appendChild(leaf)
		return
	case !closed:
		p.defect(st, m, MissingClosingBoundary, "no closing delimiter for %q", boundary)
		parts = append(parts, body[partStart:])
	}

	for i, raw := range parts {
		if p.full(st) {
			p.defect(st, m, TooManyParts, "limit of %d parts reached", p.MaxParts)
			leaf := &Message{header: &Header{}, defaultCharset: p.DefaultCharset}
			leaf.body = bytes.Join(parts[i:], []byte("\r\n"+string(delim)+"\r\n"))
			m.appendChild(leaf)
			return
		}
		m.appendChild(p.parseEntity(st, raw, depth+1, childType))
	}
}

// delimiterLine reports whether line is a boundary delimiter, and whether it is the
// closing delimiter.  Trailing whitespace is permitted.
func delimiterLine(line, delim []byte) (isDelim, isClose bool) {
	if !bytes.HasPrefix(line, delim) {
		return false, false
	}
	rest := line[len(delim):]
	if bytes.HasPrefix(rest, []byte("--")) {
		isClose = true
		rest = rest[2:]
	}
	if len(bytes.TrimRight(rest, " \t")) != 0 {
		return false, false
	}
	return true, isClose
}

// readHeader parses the header block at the start of raw into m and returns the body.
// An mbox separator line is only recognized at the top of the whole message.
func (p *Parser) readHeader(st *parseState, m *Message, raw []byte, top bool) []byte {
	pos := 0
	if top && bytes.HasPrefix(raw, []byte("From ")) {
		// mbox separator line.
		_, pos = nextLine(raw, 0)
	}
	last := -1
	for pos < len(raw) {
		lineEnd, next := nextLine(raw, pos)
		line := raw[pos:lineEnd]
		if len(line) == 0 {
			p.trimLast(m, last)
			return raw[next:]
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last < 0 {
				p.defect(st, m, ContinuationWithoutHeader, "%.40q", line)
				pos = next
				continue
			}
			f := &m.header.fields[last]
			if p.PreserveFoldingWhitespace {
				f.Value += string(line)
			} else {
				f.Value += " " + string(bytes.TrimLeft(line, " \t"))
			}
			pos = next
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			p.defect(st, m, MissingHeaderBodySeparator, "%.40q", line)
			p.trimLast(m, last)
			return raw[pos:]
		}
		name := bytes.TrimRight(line[:colon], " \t")
		if !validFieldName(name) {
			p.defect(st, m, MissingHeaderBodySeparator, "%.40q", line)
			p.trimLast(m, last)
			return raw[pos:]
		}
		if len(name) != colon {
			p.defect(st, m, MalformedHeader, "whitespace before colon in %q", name)
		}
		p.trimLast(m, last)
		m.header.Add(string(name), string(bytes.TrimLeft(line[colon+1:], " \t")))
		last = m.header.Len() - 1
		pos = next
	}
	p.trimLast(m, last)
	return nil
}

// trimLast strips whitespace left around the value of field i by unfolding.
func (p *Parser) trimLast(m *Message, i int) {
	if i < 0 {
		return
	}
	f := &m.header.fields[i]
	f.Value = strings.TrimRight(f.Value, " \t")
	if !p.PreserveFoldingWhitespace {
		f.Value = strings.TrimLeft(f.Value, " \t")
	}
}

// validFieldName reports whether name consists of printable ASCII other than colon.
func validFieldName(name []byte) bool {
	if len(name) == 0 {
		return false
	}
	for _, c := range name {
		if c < 33 || c > 126 || c == ':' {
			return false
		}
	}
	return true
}

// nextLine returns the end of the line starting at pos, excluding its line break, and
// the start of the following line.
func nextLine(b []byte, pos int) (lineEnd, next int) {
	i := bytes.IndexByte(b[pos:], '\n')
	if i < 0 {
		return len(b), len(b)
	}
	lineEnd = pos + i
	next = lineEnd + 1
	if lineEnd > pos && b[lineEnd-1] == '\r' {
		lineEnd--
	}
	return lineEnd, next
}

// trimLineBreak returns pos moved back over the line break that precedes it, which
// belongs to the following delimiter.
func trimLineBreak(b []byte, pos int) int {
	if pos > 0 && b[pos-1] == '\n' {
		pos--
		if pos > 0 && b[pos-1] == '\r' {
			pos--
		}
	}
	return pos
}

// parseHeaderBlock parses a standalone header block, as supplied to Construct.
func (p *Parser) parseHeaderBlock(raw string) *Header {
	st := &parseState{}
	m := p.newEntity(st)
	p.readHeader(st, m, []byte(raw), false)
	return m.header
}
