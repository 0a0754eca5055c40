package config

import (
	"log"
	"os"
	"text/tabwriter"

	"github.com/inbucket/inbound/pkg/message"
	"github.com/kelseyhightower/envconfig"
)

const (
	prefix      = "mimedoc"
	tableFormat = `mimedoc is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"warn" desc:"debug, info, warn, or error"`
	Parser   Parser
	Extract  Extract
}

// Parser contains the MIME parser limits.
type Parser struct {
	MaxDepth        int    `required:"true" default:"32" desc:"Maximum multipart/message nesting"`
	MaxParts        int    `required:"true" default:"10000" desc:"Maximum entities per message"`
	DefaultCharset  string `required:"true" default:"us-ascii" desc:"Charset for undeclared text"`
	PreserveFolding bool   `default:"false" desc:"Keep folding whitespace in headers?"`
}

// Extract contains the attachment extraction configuration.
type Extract struct {
	Dir      string `required:"true" default:"." desc:"Directory attachments are written to"`
	Inline   bool   `default:"true" desc:"Also extract inline attachments?"`
	FileMode uint32 `default:"0644" desc:"Permissions of extracted files"`
}

// MessageParser returns a message.Parser configured with these limits.
func (p Parser) MessageParser() *message.Parser {
	mp := message.NewParser()
	mp.MaxDepth = p.MaxDepth
	mp.MaxParts = p.MaxParts
	if p.DefaultCharset != "" {
		mp.DefaultCharset = p.DefaultCharset
	}
	mp.PreserveFoldingWhitespace = p.PreserveFolding
	return mp
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
