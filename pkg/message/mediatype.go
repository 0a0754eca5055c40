package message

import (
	"fmt"
	"mime"
	"strings"

	"github.com/jhillyerd/enmime/v2/mediatype"
)

const (
	defaultMediaType = "text/plain"
	defaultCharset   = "us-ascii"
)

// MediaType is a parsed Content-Type value.  Type is the lower-case type/subtype
// pair, parameter names are lower case.
type MediaType struct {
	Type   string
	Params map[string]string
}

// Main returns the top-level type, e.g. "text" for "text/plain".
func (t MediaType) Main() string {
	main, _, _ := strings.Cut(t.Type, "/")
	return main
}

// Sub returns the subtype, e.g. "plain" for "text/plain".
func (t MediaType) Sub() string {
	_, sub, _ := strings.Cut(t.Type, "/")
	return sub
}

// Param returns the named parameter, or "".
func (t MediaType) Param(name string) string {
	return t.Params[strings.ToLower(name)]
}

// IsMultipart reports whether the top-level type is multipart.
func (t MediaType) IsMultipart() bool {
	return t.Main() == "multipart"
}

// IsEncapsulated reports whether the type carries a complete message.
func (t MediaType) IsEncapsulated() bool {
	return t.Type == "message/rfc822" || t.Type == "message/global"
}

// parseContentType parses a Content-Type header value.  An absent value yields the
// RFC 2045 default; an unusable value yields the default and an error describing it.
func parseContentType(value string) (MediaType, error) {
	if strings.TrimSpace(value) == "" {
		return MediaType{
			Type:   defaultMediaType,
			Params: map[string]string{"charset": defaultCharset},
		}, nil
	}
	mtype, params, _, err := mediatype.Parse(value)
	if err == nil && !validMediaType(mtype) {
		err = fmt.Errorf("media type %q is not of the form type/subtype", mtype)
	}
	if err != nil {
		return MediaType{
			Type:   defaultMediaType,
			Params: map[string]string{"charset": defaultCharset},
		}, err
	}
	return MediaType{Type: strings.ToLower(mtype), Params: lowerKeys(params)}, nil
}

func validMediaType(mtype string) bool {
	main, sub, ok := strings.Cut(mtype, "/")
	return ok && main != "" && sub != "" && !strings.ContainsAny(mtype, " \t\"")
}

// parseDisposition parses a Content-Disposition value into its lower-case type and
// parameters.  It is never fatal; garbage yields an empty disposition.
func parseDisposition(value string) (string, map[string]string) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	disp, params, err := mime.ParseMediaType(value)
	if err != nil {
		disp, params, _, err = mediatype.Parse(value)
		if err != nil {
			// Keep whatever precedes the first parameter.
			disp, _, _ = strings.Cut(value, ";")
			return strings.ToLower(strings.TrimSpace(disp)), nil
		}
	}
	return strings.ToLower(disp), lowerKeys(params)
}

func lowerKeys(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[strings.ToLower(k)] = v
	}
	return out
}

// param is an ordered name/value pair used when formatting header values.
type param struct {
	name, value string
}

// formatParams renders a header value with quoted parameters in the given order,
// e.g. `text/csv; name="test.csv"; charset="iso-8859-1"`.  Non-ASCII values use
// RFC 2231 extended notation.
func formatParams(value string, params ...param) string {
	var b strings.Builder
	b.WriteString(value)
	for _, p := range params {
		b.WriteString("; ")
		if !isASCII(p.value) {
			b.WriteString(p.name)
			b.WriteString("*=utf-8''")
			b.WriteString(percentEncode(p.value))
			continue
		}
		b.WriteString(p.name)
		b.WriteString(`="`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(p.value))
		b.WriteString(`"`)
	}
	return b.String()
}

// percentEncode escapes everything outside the RFC 2231 attribute-char set.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > ' ' && c < 0x7f && !strings.ContainsRune(`*'%()<>@,;:\"/[]?=`, rune(c)) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}
