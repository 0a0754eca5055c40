package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/inbucket/inbound/pkg/message"
)

type treeCmd struct{}

func (*treeCmd) Name() string {
	return "tree"
}

func (*treeCmd) Synopsis() string {
	return "print the MIME structure of a message"
}

func (*treeCmd) Usage() string {
	return `tree <file>:
	print one line per MIME entity, followed by any parse defects
`
}

func (t *treeCmd) SetFlags(f *flag.FlagSet) {}

func (t *treeCmd) Execute(
	_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := f.Arg(0)
	if name == "" {
		return usage("message file required")
	}
	msg, err := readMessage(name)
	if err != nil {
		return fatal("Couldn't read message", err)
	}
	if err := writeTree(os.Stdout, msg); err != nil {
		return fatal("Output failed", err)
	}
	return subcommands.ExitSuccess
}

// writeTree renders m and its descendants, including encapsulated messages, as an
// indented outline.
func writeTree(w io.Writer, m *message.Message) error {
	return writeEntity(w, m, 0)
}

func writeEntity(w io.Writer, m *message.Message, depth int) error {
	indent := strings.Repeat("  ", depth)
	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(m.MediaType())
	fmt.Fprintf(&b, " [%s]", m.Kind())
	switch {
	case m.IsInlineAttachment():
		b.WriteString(" inline-attachment")
	case m.IsAttachment():
		b.WriteString(" attachment")
	}
	if d := m.Disposition(); d != "" {
		fmt.Fprintf(&b, " disposition=%s", d)
	}
	if name := m.Filename(); name != "" {
		fmt.Fprintf(&b, " filename=%q", name)
	}
	if cid := m.ContentID(); cid != "" {
		fmt.Fprintf(&b, " cid=<%s>", cid)
	}
	if m.Kind() == message.KindLeaf {
		fmt.Fprintf(&b, " size=%d", len(m.ContentBytes()))
	}
	if _, err := fmt.Fprintln(w, b.String()); err != nil {
		return err
	}
	for _, d := range m.Defects() {
		if _, err := fmt.Fprintf(w, "%s  ! %s\n", indent, d); err != nil {
			return err
		}
	}
	for _, c := range m.Children() {
		if err := writeEntity(w, c, depth+1); err != nil {
			return err
		}
	}
	if inner := m.Message(); inner != nil {
		return writeEntity(w, inner, depth+1)
	}
	return nil
}
