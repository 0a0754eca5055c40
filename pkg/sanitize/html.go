// Package sanitize prepares untrusted HTML message bodies for display, and finds the
// cid: references that tie an HTML body to its inline attachments.
package sanitize

import (
	"bufio"
	"bytes"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	cssSafe = regexp.MustCompile(".*")
	cidURL  = regexp.MustCompile(`(?i)^cid:\S+$`)
	policy  = bluemonday.UGCPolicy().
		AllowElements("center").
		AllowAttrs("style").Matching(cssSafe).Globally().
		AllowAttrs("background").Matching(cidURL).OnElements("table", "td", "th").
		AllowURLSchemeWithCustomPolicy("cid", func(u *url.URL) bool {
			return u.Opaque != ""
		})
)

// urlAttrs may hold a cid: reference to an inline attachment.
var urlAttrs = map[string]bool{
	"src":        true,
	"href":       true,
	"background": true,
}

// HTML sanitizes the provided html, while attempting to preserve inline CSS styling and
// cid: image references.
func HTML(html string) (output string, err error) {
	output, err = sanitizeStyleTags(html)
	if err != nil {
		return "", err
	}
	output = policy.Sanitize(output)
	return
}

// CIDReferences returns the Content-IDs referenced by cid: URLs in attributes and inline
// styles of html, in order of first appearance and without duplicates.
func CIDReferences(input string) ([]string, error) {
	var refs []string
	seen := make(map[string]bool)
	add := func(rawurl string) {
		cid, ok := contentID(rawurl)
		if ok && !seen[cid] {
			seen[cid] = true
			refs = append(refs, cid)
		}
	}
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return refs, err
			}
			return refs, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				name := strings.ToLower(string(key))
				switch {
				case urlAttrs[name]:
					add(string(val))
				case name == "style":
					for _, u := range styleURLs(string(val)) {
						add(u)
					}
				}
			}
		}
	}
}

// contentID extracts the Content-ID from a cid: URL.
func contentID(rawurl string) (string, bool) {
	rawurl = strings.TrimSpace(rawurl)
	if len(rawurl) < 4 || !strings.EqualFold(rawurl[:4], "cid:") {
		return "", false
	}
	cid, err := url.PathUnescape(rawurl[4:])
	if err != nil {
		cid = rawurl[4:]
	}
	cid = strings.Trim(cid, "<>")
	return cid, cid != ""
}

func sanitizeStyleTags(input string) (string, error) {
	r := strings.NewReader(input)
	b := &bytes.Buffer{}
	if err := styleTagFilter(b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}

// styleTagFilter copies html from r to w, passing every style attribute through
// sanitizeStyle and dropping it when nothing survives.
func styleTagFilter(w io.Writer, r io.Reader) error {
	bw := bufio.NewWriter(w)
	b := make([]byte, 0, 256)
	z := html.NewTokenizer(r)
	for {
		b = b[:0]
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			err := z.Err()
			if err == io.EOF {
				return bw.Flush()
			}
			return err
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				if _, err := bw.Write(z.Raw()); err != nil {
					return err
				}
				continue
			}
			b = append(b, '<')
			b = append(b, name...)
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				strval := string(val)
				style := strings.EqualFold(string(key), "style")
				if style {
					strval = sanitizeStyle(strval)
				}
				if !style || strval != "" {
					b = append(b, ' ')
					b = append(b, key...)
					b = append(b, '=', '"')
					b = append(b, html.EscapeString(strval)...)
					b = append(b, '"')
				}
			}
			if tt == html.SelfClosingTagToken {
				b = append(b, '/')
			}
			if _, err := bw.Write(append(b, '>')); err != nil {
				return err
			}
		default:
			if _, err := bw.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}
