package message

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/inbucket/inbound/pkg/address"
)

// ConstructArgs describes a message to Construct.  Empty strings and nil slices mean
// absent.
type ConstructArgs struct {
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	Subject string

	// Headers are added in order; a name may repeat.
	Headers []HeaderField
	// RawHeaders is an RFC 5322 header block applied before everything else.  Folded
	// lines are unfolded and any Content-Type is ignored.
	RawHeaders string

	Text string
	HTML string
	// Charset for Text and HTML, default utf-8.
	Charset string

	// Attachments are copied into the tree, so one part may be reused across calls.
	Attachments []*Message
}

// structural headers are derived from the tree and may not be supplied by callers.
var structural = []string{"Content-Type", "Content-Transfer-Encoding"}

// Construct builds a message from structured arguments.
//
// With only bodies the tree is minimal: a single text part, or a multipart/alternative
// of text and HTML.  Otherwise it is multipart/mixed containing a multipart/related
// (holding the multipart/alternative bodies and any inline attachments) followed by
// the remaining attachments.
func Construct(args ConstructArgs) (*Message, error) {
	header := &Header{}
	if args.RawHeaders != "" {
		header = defaultParser.parseHeaderBlock(args.RawHeaders)
		for _, name := range structural {
			header.Del(name)
		}
	}
	for _, f := range args.Headers {
		for _, name := range structural {
			if strings.EqualFold(f.Name, name) {
				return nil, &ConfigurationError{
					Msg: fmt.Sprintf("%s is derived from the message structure", name),
				}
			}
		}
		header.Add(f.Name, f.Value)
	}

	if args.From != "" {
		if err := setAddresses(header, "From", args.From); err != nil {
			return nil, err
		}
	}
	for _, a := range []struct {
		field string
		list  []string
	}{
		{"To", args.To},
		{"Cc", args.Cc},
		{"Bcc", args.Bcc},
	} {
		if len(a.list) > 0 {
			if err := setAddresses(header, a.field, a.list...); err != nil {
				return nil, err
			}
		}
	}
	if args.Subject != "" {
		header.Set("Subject", args.Subject)
	}

	cs := args.Charset
	if cs == "" {
		cs = "utf-8"
	}
	var bodies []*Message
	if args.Text != "" {
		part, err := newTextPart("text/plain", args.Text, cs)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, part)
	}
	if args.HTML != "" {
		part, err := newTextPart("text/html", args.HTML, cs)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, part)
	}

	var root *Message
	switch {
	case len(args.Attachments) == 0 && len(bodies) == 1:
		root = bodies[0]
	case len(args.Attachments) == 0 && len(bodies) == 2:
		root = newMultipart("alternative", bodies...)
	default:
		related := newMultipart("related", newMultipart("alternative", bodies...))
		root = newMultipart("mixed", related)
		for _, att := range args.Attachments {
			if att == nil {
				continue
			}
			att = att.clone()
			if att.IsInlineAttachment() {
				related.appendChild(att)
			} else {
				root.appendChild(att)
			}
		}
	}

	header.Set("MIME-Version", "1.0")
	for _, f := range root.header.Fields() {
		header.Add(f.Name, f.Value)
	}
	root.header = header
	return root, nil
}

// setAddresses validates each address list and stores them, joined, in field.
func setAddresses(h *Header, field string, lists ...string) error {
	values := make([]string, 0, len(lists))
	for _, list := range lists {
		list = strings.TrimSpace(list)
		if list == "" {
			continue
		}
		parsed, err := address.ParseList(list)
		if err != nil {
			return &AddressParseError{Field: field, Value: list, Err: err}
		}
		for _, v := range parsed {
			if err := address.Validate(v); err != nil {
				return &AddressParseError{Field: field, Value: list, Err: err}
			}
		}
		values = append(values, list)
	}
	if len(values) > 0 {
		h.Set(field, strings.Join(values, ", "))
	}
	return nil
}

func newMultipart(subtype string, children ...*Message) *Message {
	m := &Message{
		header: NewHeader(HeaderField{"Content-Type", "multipart/" + subtype}),
		kind:   KindMultipart,
	}
	for _, c := range children {
		m.appendChild(c)
	}
	return m
}

// newTextPart builds a body part, encoding text into cs.
func newTextPart(mediaType, text, cs string) (*Message, error) {
	content, err := encodeCharset(cs, text)
	if err != nil {
		return nil, &ConfigurationError{Msg: "cannot encode " + mediaType + " body", Err: err}
	}
	m := &Message{header: &Header{}}
	m.header.Add("Content-Type", formatParams(mediaType, param{"charset", strings.ToLower(cs)}))
	m.setContent(content, true)
	return m, nil
}

// setContent stores content with the lightest transfer encoding that can carry it.
func (m *Message) setContent(content []byte, text bool) {
	if text && sevenBitSafe(content) {
		m.header.Set("Content-Transfer-Encoding", cte7Bit)
		m.body = content
		return
	}
	m.header.Set("Content-Transfer-Encoding", cteBase64)
	m.body = encodeBase64(content)
}

// AttachmentOptions controls how NewAttachment and NewTextAttachment build a part.
type AttachmentOptions struct {
	// Charset of text content.  NewTextAttachment encodes into it (default utf-8);
	// NewAttachment only declares it.
	Charset string
	// Filename offered to the recipient.
	Filename string
	// ContentID makes the attachment inline, addressable as cid:ContentID.
	ContentID string
	// Base64 indicates the supplied content is base64 encoded and must be decoded.
	Base64 bool
}

// NewAttachment builds an attachment part from raw content.  A message/rfc822 content
// type yields an encapsulated part whose nested message is parsed.
func NewAttachment(contentType string, content []byte, opts AttachmentOptions) (*Message, error) {
	if opts.Base64 {
		decoded, err := decodeBase64(content)
		if err != nil {
			return nil, &ConfigurationError{Msg: "invalid base64 attachment content", Err: err}
		}
		content = decoded
	}
	return newAttachment(contentType, content, opts)
}

// NewTextAttachment builds an attachment part from text, encoded into opts.Charset.
func NewTextAttachment(contentType, text string, opts AttachmentOptions) (*Message, error) {
	if opts.Base64 {
		return NewAttachment(contentType, []byte(text), opts)
	}
	if opts.Charset == "" {
		opts.Charset = "utf-8"
	}
	content, err := encodeCharset(opts.Charset, text)
	if err != nil {
		return nil, &ConfigurationError{Msg: "cannot encode attachment text", Err: err}
	}
	return newAttachment(contentType, content, opts)
}

// File is an uploaded file: a name, a content type and a stream of bytes.
type File interface {
	io.Reader
	Name() string
	ContentType() string
}

// NewAttachmentFromFile reads f into an attachment part.  A missing content type is
// guessed from the file extension.
func NewAttachmentFromFile(f File, contentID string) (*Message, error) {
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", f.Name(), err)
	}
	ctype := f.ContentType()
	if ctype == "" {
		ctype = mime.TypeByExtension(filepath.Ext(f.Name()))
	}
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	return newAttachment(ctype, content, AttachmentOptions{
		Filename:  f.Name(),
		ContentID: contentID,
	})
}

func newAttachment(contentType string, content []byte, opts AttachmentOptions) (*Message, error) {
	ct, err := parseContentType(contentType)
	if err != nil || strings.TrimSpace(contentType) == "" {
		return nil, &ConfigurationError{
			Msg: fmt.Sprintf("invalid attachment content type %q", contentType), Err: err,
		}
	}
	if ct.IsMultipart() {
		return nil, &ConfigurationError{
			Msg: fmt.Sprintf("unsupported attachment content type %q", ct.Type),
		}
	}
	cs := opts.Charset
	if cs == "" {
		cs = ct.Param("charset")
	}
	if cs != "" && !knownCharset(cs) {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("unknown charset %q", cs)}
	}

	var params []param
	if opts.Filename != "" {
		params = append(params, param{"name", opts.Filename})
	}
	if cs != "" && !ct.IsEncapsulated() {
		params = append(params, param{"charset", cs})
	}
	m := &Message{header: &Header{}}
	m.header.Add("Content-Type", formatParams(ct.Type, params...))

	disposition := "attachment"
	if opts.ContentID != "" {
		disposition = "inline"
	}
	if opts.Filename != "" {
		disposition = formatParams(disposition, param{"filename", opts.Filename})
	}

	if ct.IsEncapsulated() {
		m.kind = KindEncapsulated
		m.body = content
		cte := cte7Bit
		if !sevenBitSafe(content) {
			cte = cte8Bit
		}
		m.header.Add("Content-Transfer-Encoding", cte)
		m.setInner(defaultParser.Parse(content))
	} else {
		m.setContent(content, ct.Main() == "text")
	}
	m.header.Add("Content-Disposition", disposition)
	if opts.ContentID != "" {
		m.header.Add("Content-ID", "<"+unquoteContentID(opts.ContentID)+">")
	}
	return m, nil
}
