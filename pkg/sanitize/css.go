package sanitize

import (
	"bytes"
	"strings"

	"github.com/gorilla/css/scanner"
)

// propertyRule may someday allow control of what values are valid for a particular property.
type propertyRule struct{}

var allowedProperties = map[string]propertyRule{
	"align":            {},
	"background":       {},
	"background-color": {},
	"background-image": {},
	"border":           {},
	"border-bottom":    {},
	"border-left":      {},
	"border-radius":    {},
	"border-right":     {},
	"border-top":       {},
	"box-sizing":       {},
	"clear":            {},
	"color":            {},
	"content":          {},
	"display":          {},
	"font-family":      {},
	"font-size":        {},
	"font-weight":      {},
	"height":           {},
	"line-height":      {},
	"margin":           {},
	"margin-bottom":    {},
	"margin-left":      {},
	"margin-right":     {},
	"margin-top":       {},
	"max-height":       {},
	"max-width":        {},
	"overflow":         {},
	"padding":          {},
	"padding-bottom":   {},
	"padding-left":     {},
	"padding-right":    {},
	"padding-top":      {},
	"table-layout":     {},
	"text-align":       {},
	"text-decoration":  {},
	"text-shadow":      {},
	"vertical-align":   {},
	"width":            {},
	"word-break":       {},
}

// Handler Token, return next state.
type stateHandler func(b *bytes.Buffer, t *scanner.Token) stateHandler

func sanitizeStyle(input string) string {
	b := &bytes.Buffer{}
	scan := scanner.New(input)
	state := stateStart
	for {
		t := scan.Next()
		if t.Type == scanner.TokenEOF {
			return b.String()
		}
		if t.Type == scanner.TokenError {
			return ""
		}
		state = state(b, t)
		if state == nil {
			return ""
		}
	}
}

func stateStart(b *bytes.Buffer, t *scanner.Token) stateHandler {
	switch t.Type {
	case scanner.TokenIdent:
		_, ok := allowedProperties[strings.ToLower(t.Value)]
		if !ok {
			return stateEat
		}
		b.WriteString(t.Value)
		return stateValid
	case scanner.TokenS:
		return stateStart
	}
	// Unexpected type.
	b.WriteString("/*" + t.Type.String() + "*/")
	return stateEat
}

func stateEat(b *bytes.Buffer, t *scanner.Token) stateHandler {
	if t.Type == scanner.TokenChar && t.Value == ";" {
		// Done eating.
		return stateStart
	}
	// Throw away this token.
	return stateEat
}

func stateValid(b *bytes.Buffer, t *scanner.Token) stateHandler {
	state := stateValid
	switch {
	case t.Type == scanner.TokenChar && t.Value == ";":
		// End of property.
		state = stateStart
	case t.Type == scanner.TokenURI:
		// Only inline attachment references may be loaded.
		if _, ok := contentID(uriValue(t.Value)); !ok {
			return nil
		}
	case t.Type == scanner.TokenFunction && strings.EqualFold(t.Value, "url("):
		// Malformed url() the scanner could not match as a URI.
		return nil
	}
	b.WriteString(t.Value)
	return state
}

// styleURLs returns the target of every url() in a style attribute.
func styleURLs(style string) []string {
	var urls []string
	scan := scanner.New(style)
	for {
		t := scan.Next()
		switch t.Type {
		case scanner.TokenEOF, scanner.TokenError:
			return urls
		case scanner.TokenURI:
			urls = append(urls, uriValue(t.Value))
		}
	}
}

// uriValue unwraps a url(...) token, removing whitespace and quotes.
func uriValue(token string) string {
	v := strings.TrimSuffix(token[len("url("):], ")")
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	return v
}
