package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/inbucket/inbound/pkg/message"
	"gopkg.in/yaml.v3"
)

type buildCmd struct{}

func (*buildCmd) Name() string {
	return "build"
}

func (*buildCmd) Synopsis() string {
	return "construct a MIME message from a YAML description"
}

func (*buildCmd) Usage() string {
	return `build <file.yaml>:
	write the message described by file.yaml to stdout; attachment files are
	resolved relative to the description
`
}

func (b *buildCmd) SetFlags(f *flag.FlagSet) {}

func (b *buildCmd) Execute(
	_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := f.Arg(0)
	if name == "" {
		return usage("description file required")
	}
	src, err := os.ReadFile(name)
	if err != nil {
		return fatal("Couldn't read description", err)
	}
	msg, err := buildMessage(src, filepath.Dir(name))
	if err != nil {
		return fatal("Couldn't build message", err)
	}
	if err := msg.Encode(os.Stdout); err != nil {
		return fatal("Output failed", err)
	}
	return subcommands.ExitSuccess
}

// description is the YAML form of message.ConstructArgs.
type description struct {
	From        string              `yaml:"from"`
	To          []string            `yaml:"to"`
	Cc          []string            `yaml:"cc"`
	Bcc         []string            `yaml:"bcc"`
	Subject     string              `yaml:"subject"`
	Headers     []headerDescription `yaml:"headers"`
	RawHeaders  string              `yaml:"raw_headers"`
	Text        string              `yaml:"text"`
	HTML        string              `yaml:"html"`
	Charset     string              `yaml:"charset"`
	Attachments []attachmentDesc    `yaml:"attachments"`
}

type headerDescription struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// attachmentDesc takes its content from exactly one of Text, Data (base64) or File.
type attachmentDesc struct {
	ContentType string `yaml:"content_type"`
	Filename    string `yaml:"filename"`
	ContentID   string `yaml:"content_id"`
	Charset     string `yaml:"charset"`
	Text        string `yaml:"text"`
	Data        string `yaml:"data"`
	File        string `yaml:"file"`
}

// diskFile adapts an opened file to message.File.
type diskFile struct {
	io.Reader
	name        string
	contentType string
}

func (f *diskFile) Name() string        { return f.name }
func (f *diskFile) ContentType() string { return f.contentType }

// buildMessage decodes a YAML description and constructs the message it describes.
func buildMessage(src []byte, baseDir string) (*message.Message, error) {
	var d description
	if err := yaml.Unmarshal(src, &d); err != nil {
		return nil, err
	}
	args := message.ConstructArgs{
		From:       d.From,
		To:         d.To,
		Cc:         d.Cc,
		Bcc:        d.Bcc,
		Subject:    d.Subject,
		RawHeaders: d.RawHeaders,
		Text:       d.Text,
		HTML:       d.HTML,
		Charset:    d.Charset,
	}
	for _, h := range d.Headers {
		args.Headers = append(args.Headers, message.HeaderField{Name: h.Name, Value: h.Value})
	}
	for i, a := range d.Attachments {
		att, err := a.build(baseDir)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: %w", i+1, err)
		}
		args.Attachments = append(args.Attachments, att)
	}
	return message.Construct(args)
}

func (a attachmentDesc) build(baseDir string) (*message.Message, error) {
	opts := message.AttachmentOptions{
		Charset:   a.Charset,
		Filename:  a.Filename,
		ContentID: a.ContentID,
	}
	switch {
	case a.File != "":
		path := a.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		name := a.Filename
		if name == "" {
			name = filepath.Base(path)
		}
		return message.NewAttachmentFromFile(
			&diskFile{Reader: f, name: name, contentType: a.ContentType}, a.ContentID)
	case a.Data != "":
		opts.Base64 = true
		return message.NewAttachment(a.ContentType, []byte(a.Data), opts)
	default:
		return message.NewTextAttachment(a.ContentType, a.Text, opts)
	}
}
