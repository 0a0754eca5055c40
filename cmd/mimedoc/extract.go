package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"
	"github.com/inbucket/inbound/pkg/message"
	"github.com/rs/zerolog/log"
)

// maxSuffix bounds the search for an unused filename.
const maxSuffix = 1000

type extractCmd struct {
	dir string
}

func (*extractCmd) Name() string {
	return "extract"
}

func (*extractCmd) Synopsis() string {
	return "write message attachments to disk"
}

func (*extractCmd) Usage() string {
	return `extract [flags] <file>:
	write each attachment to a file named after it, never replacing existing files
`
}

func (e *extractCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&e.dir, "dir", "", "output directory, overrides MIMEDOC_EXTRACT_DIR")
}

func (e *extractCmd) Execute(
	_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := f.Arg(0)
	if name == "" {
		return usage("message file required")
	}
	msg, err := readMessage(name)
	if err != nil {
		return fatal("Couldn't read message", err)
	}
	dir := conf.Extract.Dir
	if e.dir != "" {
		dir = e.dir
	}
	paths, err := extractAttachments(msg, dir, conf.Extract.Inline, fs.FileMode(conf.Extract.FileMode))
	for _, p := range paths {
		fmt.Println(p)
	}
	if err != nil {
		return fatal("Extract failed", err)
	}
	return subcommands.ExitSuccess
}

// extractAttachments writes the attachments of msg, and optionally its inline
// attachments, into dir.  It returns the paths written.
func extractAttachments(msg *message.Message, dir string, inline bool,
	mode fs.FileMode) ([]string, error) {
	parts := msg.Attachments()
	if inline {
		err := msg.Walk(func(m *message.Message) error {
			if m.IsInlineAttachment() {
				parts = append(parts, m)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	var paths []string
	for _, part := range parts {
		file := part.AsUploadedFile()
		p, err := writeUnique(dir, file.Name(), file, mode)
		if err != nil {
			return paths, err
		}
		log.Debug().Str("module", "extract").Str("path", p).Int64("size", file.Size()).
			Msg("Wrote attachment")
		paths = append(paths, p)
	}
	return paths, nil
}

// writeUnique creates a new file in dir named name, or name with a numeric suffix
// before its extension when that already exists, and copies r into it.
func writeUnique(dir, name string, r io.Reader, mode fs.FileMode) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxSuffix; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			return "", err
		}
		return p, f.Close()
	}
	return "", fmt.Errorf("no unused filename for %q in %s", name, dir)
}
