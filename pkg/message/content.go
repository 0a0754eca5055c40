package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

func init() {
	// Charsets mislabelled or commonly used by inbound webhooks.
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Content-Transfer-Encoding values.
const (
	cte7Bit            = "7bit"
	cte8Bit            = "8bit"
	cteBinary          = "binary"
	cteBase64          = "base64"
	cteQuotedPrintable = "quoted-printable"
)

// decodeTransfer reverses the transfer encoding of a body.  It always returns the best
// bytes it could recover; the error describes what could not be decoded.
func decodeTransfer(encoding string, raw []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", cte7Bit, cte8Bit, cteBinary:
		return raw, nil
	case cteBase64:
		return decodeBase64(raw)
	case cteQuotedPrintable:
		b, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		return b, err
	default:
		return raw, fmt.Errorf("unknown transfer encoding %q", encoding)
	}
}

// decodeBase64 decodes base64 while tolerating line breaks, missing padding and stray
// characters.
func decodeBase64(raw []byte) ([]byte, error) {
	clean := make([]byte, 0, len(raw))
	stray := 0
	for _, c := range raw {
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9', c == '+', c == '/':
			clean = append(clean, c)
		case c == '=', c == ' ', c == '\t', c == '\r', c == '\n':
		default:
			stray++
		}
	}
	var err error
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
		err = fmt.Errorf("base64 data truncated")
	}
	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))
	n, derr := base64.RawStdEncoding.Decode(out, clean)
	if derr != nil {
		err = derr
	} else if stray > 0 {
		err = fmt.Errorf("base64 data contains %d invalid characters", stray)
	}
	return out[:n], err
}

// encodeBase64 encodes b as base64 with CRLF separated 76 character lines.
func encodeBase64(b []byte) []byte {
	enc := base64.StdEncoding.EncodeToString(b)
	var out bytes.Buffer
	for len(enc) > 76 {
		out.WriteString(enc[:76])
		out.WriteString("\r\n")
		enc = enc[76:]
	}
	out.WriteString(enc)
	return out.Bytes()
}

// isUTF8Alias reports whether cs names a charset whose bytes can be used as Go text
// directly.  us-ascii is included because mislabelled UTF-8 is common.
func isUTF8Alias(cs string) bool {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "us-ascii", "ascii", "utf-8", "utf8":
		return true
	}
	return false
}

// decodeCharset converts b from the named charset to a Go string.  Invalid sequences
// are replaced with U+FFFD; an unknown charset falls back to UTF-8 and reports an error.
func decodeCharset(cs string, b []byte) (string, error) {
	if isUTF8Alias(cs) {
		return strings.ToValidUTF8(string(b), "\uFFFD"), nil
	}
	r, err := charset.Reader(cs, bytes.NewReader(b))
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD"), err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD"), err
	}
	return strings.ToValidUTF8(string(out), "\uFFFD"), nil
}

// knownCharset reports whether decodeCharset can convert cs.
func knownCharset(cs string) bool {
	if isUTF8Alias(cs) {
		return true
	}
	_, err := charset.Reader(cs, bytes.NewReader(nil))
	return err == nil
}

// encodeCharset converts s into the named charset.
func encodeCharset(cs, s string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "utf-8", "utf8":
		return []byte(s), nil
	case "us-ascii", "ascii":
		if !isASCII(s) {
			return nil, fmt.Errorf("text is not representable in %s", cs)
		}
		return []byte(s), nil
	}
	enc, err := ianaindex.MIME.Encoding(cs)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", cs)
	}
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("text is not representable in %s: %w", cs, err)
	}
	return []byte(out), nil
}

// wordDecoder decodes RFC 2047 encoded-words in any charset go-message knows.
var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// decodeHeaderValue decodes RFC 2047 encoded-words, returning the input unchanged when
// it cannot be decoded.
func decodeHeaderValue(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// sevenBitSafe reports whether b can be sent without transfer encoding: ASCII only and
// no line longer than 998 octets.
func sevenBitSafe(b []byte) bool {
	lineLen := 0
	for _, c := range b {
		if c >= 0x80 || c == 0 {
			return false
		}
		if c == '\n' {
			lineLen = 0
			continue
		}
		lineLen++
		if lineLen > 998 {
			return false
		}
	}
	return true
}
