package message

import (
	"bytes"
	"mime"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFilenameLen = 255

// UploadedFile is an attachment prepared for storage on disk: the decoded content and a
// filename stripped of any directory components.
type UploadedFile struct {
	name        string
	contentType string
	content     []byte
	r           *bytes.Reader
}

// Name returns the sanitized filename; it never contains a path separator.
func (f *UploadedFile) Name() string {
	return f.name
}

// ContentType returns the media type of the attachment without parameters.
func (f *UploadedFile) ContentType() string {
	return f.contentType
}

// Size returns the length of the decoded content.
func (f *UploadedFile) Size() int64 {
	return int64(len(f.content))
}

// Bytes returns the decoded content.
func (f *UploadedFile) Bytes() []byte {
	return f.content
}

// Read implements io.Reader over the decoded content.
func (f *UploadedFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

// AsUploadedFile converts the entity into an UploadedFile.  The filename from the
// message is untrusted, so only its final path element is kept; use Filename for the
// raw value.
func (m *Message) AsUploadedFile() *UploadedFile {
	content := m.ContentBytes()
	return &UploadedFile{
		name:        SanitizeFilename(m.Filename(), m.MediaType()),
		contentType: m.MediaType(),
		content:     content,
		r:           bytes.NewReader(content),
	}
}

// SanitizeFilename reduces an untrusted filename to a safe base name.  Both slash and
// backslash separate path elements.  Names that vanish are replaced with "attachment",
// plus an extension guessed from mediaType.
func SanitizeFilename(name, mediaType string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "attachment" + extensionFor(mediaType)
	}
	if len(name) > maxFilenameLen {
		name = truncateName(name)
	}
	return name
}

// truncateName shortens name to maxFilenameLen bytes, keeping a short extension and
// whole runes.
func truncateName(name string) string {
	ext := path.Ext(name)
	if len(ext) > 16 {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	limit := maxFilenameLen - len(ext)
	for limit > 0 && !utf8.RuneStart(stem[limit]) {
		limit--
	}
	return stem[:limit] + ext
}

// commonExtensions covers types whose system mime.types entry is ambiguous.
var commonExtensions = map[string]string{
	"text/plain":               ".txt",
	"text/html":                ".html",
	"text/csv":                 ".csv",
	"image/jpeg":               ".jpg",
	"message/rfc822":           ".eml",
	"application/octet-stream": ".bin",
}

func extensionFor(mediaType string) string {
	if ext, ok := commonExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
