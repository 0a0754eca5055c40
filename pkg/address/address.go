// Package address parses and formats RFC 5322 mailboxes as they appear in From, To
// and Cc headers of inbound mail.
package address

import (
	"fmt"
	"strings"

	// Registers every charset for encoded-word display names.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// specials must be quoted when they appear in a display name or local part.
const specials = `()<>[]:;@\,."`

// Value is a parsed mailbox: an optional display name and an addr-spec.
type Value struct {
	DisplayName string
	AddrSpec    string
}

// Username returns the local part of the addr-spec.
func (v Value) Username() string {
	if i := strings.LastIndexByte(v.AddrSpec, '@'); i >= 0 {
		return v.AddrSpec[:i]
	}
	return v.AddrSpec
}

// Domain returns the domain part of the addr-spec, or "".
func (v Value) Domain() string {
	if i := strings.LastIndexByte(v.AddrSpec, '@'); i >= 0 {
		return v.AddrSpec[i+1:]
	}
	return ""
}

// Address formats the mailbox for a header.  The display name is quoted only when it
// contains special characters, e.g. `"Sender, Inc." <sender@example.com>` but
// `First To <to1@example.com>`.
func (v Value) Address() string {
	spec := v.AddrSpec
	if local := v.Username(); local != v.AddrSpec && needsQuote(local, true) {
		spec = quote(local) + "@" + v.Domain()
	}
	if v.DisplayName == "" {
		return spec
	}
	name := v.DisplayName
	if needsQuote(name, false) {
		name = quote(name)
	}
	return name + " <" + spec + ">"
}

func (v Value) String() string {
	return v.Address()
}

func needsQuote(s string, local bool) bool {
	if local && (strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") ||
		strings.Contains(s, "..")) {
		return true
	}
	for _, r := range s {
		if strings.ContainsRune(specials, r) && !(local && r == '.') {
			return true
		}
		if r < ' ' || (local && r == ' ') {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// Parse parses a single mailbox.  RFC 2047 encoded display names are decoded.
func Parse(s string) (Value, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return Value{}, err
	}
	return Value{DisplayName: a.Name, AddrSpec: a.Address}, nil
}

// ParseList parses a comma separated address list.  An empty list yields no values.
func ParseList(s string) ([]Value, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		return nil, err
	}
	vals := make([]Value, 0, len(list))
	for _, a := range list {
		vals = append(vals, Value{DisplayName: a.Name, AddrSpec: a.Address})
	}
	return vals, nil
}

// ParseListLenient parses an address list, skipping entries that do not parse instead
// of rejecting the whole list.
func ParseListLenient(s string) []Value {
	if vals, err := ParseList(s); err == nil {
		return vals
	}
	var vals []Value
	for _, entry := range splitList(s) {
		if v, err := Parse(entry); err == nil {
			vals = append(vals, v)
		}
	}
	return vals
}

// splitList splits s on commas that are not quoted or inside angle brackets or comments.
func splitList(s string) []string {
	var out []string
	depth, angle, quoted, escaped := 0, false, false, false
	start := 0
	for i, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quoted:
			escaped = true
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case r == '<':
			angle = true
		case r == '>':
			angle = false
		case r == ',' && depth == 0 && !angle:
			if entry := strings.TrimSpace(s[start:i]); entry != "" {
				out = append(out, entry)
			}
			start = i + 1
		}
	}
	if entry := strings.TrimSpace(s[start:]); entry != "" {
		out = append(out, entry)
	}
	return out
}

// FormatList joins mailboxes into a header value.
func FormatList(vals []Value) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = v.Address()
	}
	return strings.Join(s, ", ")
}

// Validate checks that v has a local part and a deliverable domain: either a valid DNS
// name or a bracketed address literal.
func Validate(v Value) error {
	if v.Username() == "" || v.Domain() == "" {
		return fmt.Errorf("address %q lacks a local or domain part", v.AddrSpec)
	}
	domain := v.Domain()
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		return nil
	}
	if !ValidateDomainPart(domain) {
		return fmt.Errorf("domain part %q in %q failed validation", domain, v.AddrSpec)
	}
	return nil
}

// ValidateDomainPart returns true if the domain part complies with RFC 3696 and RFC 1035
// label rules.
func ValidateDomainPart(domain string) bool {
	if len(domain) == 0 || len(domain) > 255 {
		return false
	}
	if domain[len(domain)-1] != '.' {
		domain += "."
	}
	prev := '.'
	labelLen := 0
	hasAlphaNum := false
	for _, c := range domain {
		switch {
		case ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') ||
			('0' <= c && c <= '9') || c == '_':
			hasAlphaNum = true
			labelLen++
		case c == '-':
			if prev == '.' {
				// Cannot lead with hyphen.
				return false
			}
			labelLen++
		case c == '.':
			if prev == '.' || prev == '-' {
				// Cannot end with hyphen or double-dot.
				return false
			}
			if labelLen > 63 || !hasAlphaNum {
				return false
			}
			labelLen = 0
			hasAlphaNum = false
		case c >= 0x80:
			// Internationalized labels are left to the resolver.
			hasAlphaNum = true
			labelLen++
		default:
			return false
		}
		prev = c
	}
	return true
}
