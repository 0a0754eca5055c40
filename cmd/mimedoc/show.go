package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/inbucket/inbound/pkg/address"
	"github.com/inbucket/inbound/pkg/message"
	"github.com/inbucket/inbound/pkg/sanitize"
	"github.com/rs/zerolog/log"
)

type showCmd struct {
	html bool
}

func (*showCmd) Name() string {
	return "show"
}

func (*showCmd) Synopsis() string {
	return "print the headers and body of a message"
}

func (*showCmd) Usage() string {
	return `show [flags] <file>:
	print addresses, subject, date and the text body
`
}

func (s *showCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.html, "html", false, "print the sanitized HTML body instead of text")
}

func (s *showCmd) Execute(
	_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := f.Arg(0)
	if name == "" {
		return usage("message file required")
	}
	msg, err := readMessage(name)
	if err != nil {
		return fatal("Couldn't read message", err)
	}
	if err := writeSummary(os.Stdout, msg, s.html); err != nil {
		return fatal("Output failed", err)
	}
	return subcommands.ExitSuccess
}

// writeSummary renders the convenience view of msg.  With html set, the HTML body is
// sanitized and cid: references lacking an inline attachment are logged.
func writeSummary(w io.Writer, msg *message.Message, html bool) error {
	if from := msg.From(); from != nil {
		fmt.Fprintf(w, "From: %s\n", from)
	}
	for _, f := range []struct {
		name  string
		addrs []address.Value
	}{
		{"To", msg.To()},
		{"Cc", msg.Cc()},
		{"Reply-To", msg.ReplyTo()},
	} {
		if len(f.addrs) > 0 {
			fmt.Fprintf(w, "%s: %s\n", f.name, address.FormatList(f.addrs))
		}
	}
	fmt.Fprintf(w, "Subject: %s\n", msg.Subject())
	if date, ok := msg.Date(); ok {
		fmt.Fprintf(w, "Date: %s\n", date.Format(time.RFC1123Z))
	}
	for _, a := range msg.Attachments() {
		fmt.Fprintf(w, "Attachment: %s (%s, %d bytes)\n",
			a.AsUploadedFile().Name(), a.MediaType(), len(a.ContentBytes()))
	}

	var body string
	if html {
		raw, ok := msg.HTML()
		if !ok {
			return fmt.Errorf("message has no HTML body")
		}
		missing, err := missingInline(msg, raw)
		if err != nil {
			return err
		}
		for _, cid := range missing {
			log.Warn().Str("module", "show").Str("cid", cid).
				Msg("HTML references missing inline attachment")
		}
		if body, err = sanitize.HTML(raw); err != nil {
			return err
		}
	} else {
		body, _ = msg.Text()
	}
	_, err := fmt.Fprintf(w, "\n%s\n", body)
	return err
}

// missingInline returns the cid: references in html that no inline attachment of msg
// satisfies.
func missingInline(msg *message.Message, html string) ([]string, error) {
	refs, err := sanitize.CIDReferences(html)
	if err != nil {
		return nil, err
	}
	inline := msg.InlineAttachments()
	var missing []string
	for _, cid := range refs {
		if _, ok := inline[cid]; !ok {
			missing = append(missing, cid)
		}
	}
	return missing, nil
}
