package message

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/inbucket/inbound/pkg/address"
)

// From returns the first mailbox of the From header, or nil if it is absent or does not
// parse.
func (m *Message) From() *address.Value {
	vals := address.ParseListLenient(m.Get("From"))
	if len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

// To returns the mailboxes of every To header.
func (m *Message) To() []address.Value {
	return m.addressList("To")
}

// Cc returns the mailboxes of every Cc header.
func (m *Message) Cc() []address.Value {
	return m.addressList("Cc")
}

// Bcc returns the mailboxes of every Bcc header.  Received mail rarely carries one.
func (m *Message) Bcc() []address.Value {
	return m.addressList("Bcc")
}

// ReplyTo returns the mailboxes of every Reply-To header.
func (m *Message) ReplyTo() []address.Value {
	return m.addressList("Reply-To")
}

func (m *Message) addressList(name string) []address.Value {
	vals := []address.Value{}
	for _, v := range m.Values(name) {
		vals = append(vals, address.ParseListLenient(v)...)
	}
	return vals
}

// Subject returns the Subject header with RFC 2047 encoded words decoded.
func (m *Message) Subject() string {
	return decodeHeaderValue(m.Get("Subject"))
}

// Date returns the parsed Date header.  ok is false if the header is absent or does not
// hold a recognizable date.
func (m *Message) Date() (t time.Time, ok bool) {
	value := strings.TrimSpace(m.Get("Date"))
	if value == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Text returns the decoded plain text body.  Attached text files are not considered.
func (m *Message) Text() (string, bool) {
	return m.bodyPart("text/plain")
}

// HTML returns the decoded HTML body.  Attached HTML files are not considered.
func (m *Message) HTML() (string, bool) {
	return m.bodyPart("text/html")
}

var errFound = errors.New("found")

// bodyPart finds the first body part of the given media type.
func (m *Message) bodyPart(mediaType string) (string, bool) {
	if m.kind == KindLeaf && !m.Has("Content-Type") && len(m.body) == 0 {
		// Empty message.
		return "", false
	}
	var found *Message
	_ = m.Walk(func(p *Message) error {
		if p.MediaType() == mediaType && p.isBodyPart() {
			found = p
			return errFound
		}
		return nil
	})
	if found == nil {
		return "", false
	}
	return found.ContentText(), true
}

// Attachments returns every attachment in depth-first order, excluding inline
// attachments.  Attachments of attached messages are not included.
func (m *Message) Attachments() []*Message {
	atts := []*Message{}
	_ = m.Walk(func(p *Message) error {
		if p.IsAttachment() {
			atts = append(atts, p)
		}
		return nil
	})
	return atts
}

// InlineAttachments returns inline attachments keyed by Content-ID, without angle
// brackets.  When a Content-ID repeats, the first part wins.
func (m *Message) InlineAttachments() map[string]*Message {
	inline := make(map[string]*Message)
	_ = m.Walk(func(p *Message) error {
		if p.IsInlineAttachment() {
			if _, dup := inline[p.ContentID()]; !dup {
				inline[p.ContentID()] = p
			}
		}
		return nil
	})
	return inline
}
