// mimedoc inspects, extracts from, and builds MIME messages.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"github.com/inbucket/inbound/pkg/config"
	"github.com/inbucket/inbound/pkg/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

var (
	logfile = flag.String("logfile", "stderr", "Write out log into the specified file.")
	logjson = flag.Bool("logjson", false, "Logs are written in JSON format.")
	envhelp = flag.Bool("envhelp", false, "Displays help on env variables.")
)

// conf is loaded before any subcommand executes.
var conf *config.Root

func main() {
	subcommands.ImportantFlag("logfile")

	// Setup standard helpers
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	// Setup my commands
	subcommands.Register(&treeCmd{}, "")
	subcommands.Register(&showCmd{}, "")
	subcommands.Register(&extractCmd{}, "")
	subcommands.Register(&buildCmd{}, "")

	flag.Parse()
	if *envhelp {
		config.Usage()
		return
	}
	// Process configuration.
	config.Version = version
	config.BuildDate = date
	var err error
	conf, err = config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	closeLog, err := openLog(conf.LogLevel, *logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}
	log.Debug().Str("version", config.Version).Str("buildDate", config.BuildDate).
		Msg("mimedoc starting")

	ctx := context.Background()
	status := subcommands.Execute(ctx)
	closeLog()
	os.Exit(int(status))
}

// openLog configures zerolog output, returns func to close logfile.
func openLog(level string, logfile string, json bool) (close func(), err error) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return nil, fmt.Errorf("Log level %q not one of: debug, info, warn, error", level)
	}
	close = func() {}
	var w io.Writer
	color := runtime.GOOS != "windows"
	switch logfile {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		logf, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
		bw := bufio.NewWriter(logf)
		w = bw
		color = false
		close = func() {
			_ = bw.Flush()
			_ = logf.Close()
		}
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = log.Output(w)
		return close, nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     w,
		NoColor: !color,
	})
	return close, nil
}

// readMessage parses the named file, or stdin when name is "-", with the configured
// parser limits.
func readMessage(name string) (*message.Message, error) {
	r := io.Reader(os.Stdin)
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	msg, err := conf.Parser.MessageParser().ParseReader(r)
	if err != nil {
		return nil, err
	}
	if n := countDefects(msg); n > 0 {
		log.Info().Str("module", "parser").Str("file", name).Int("defects", n).
			Msg("Message parsed with defects")
	}
	return msg, nil
}

func countDefects(m *message.Message) int {
	n := len(m.Defects())
	for _, c := range m.Children() {
		n += countDefects(c)
	}
	if inner := m.Message(); inner != nil {
		n += countDefects(inner)
	}
	return n
}

func fatal(msg string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}
