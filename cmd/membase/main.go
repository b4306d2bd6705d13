// membase is a command-line host for the Membase plugin. It talks to a
// Membase hub directly (upload, upload-data, conversations, conversation,
// download), runs characters against messages read from stdin (run), and
// serves plugin health over gRPC (serve).
//
// Hub and account come from --hub and --account, then the first character's
// settings, then MEMBASE_HUB and MEMBASE_ACCOUNT in the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/membase-hub/plugin-membase/agent"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the global command-line options.
type flags struct {
	characters string
	hub        string
	account    string
	redisURL   string
	timeout    time.Duration
	insecure   bool
	logLevel   string
	logFormat  string
	port       int
}

func newFlagSet(f *flags) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("membase", pflag.ContinueOnError)
	flagSet.StringVar(&f.characters, "characters", "", "comma-separated character files (.json, .jsonc, .yaml)")
	flagSet.StringVar(&f.hub, "hub", "", "hub base URL (overrides MEMBASE_HUB)")
	flagSet.StringVar(&f.account, "account", "", "hub account that owns uploads (overrides MEMBASE_ACCOUNT)")
	flagSet.StringVar(&f.redisURL, "redis", "", "keep the upload queue in Redis at this URL")
	flagSet.DurationVar(&f.timeout, "timeout", 30*time.Second, "per-request timeout for hub calls")
	flagSet.BoolVar(&f.insecure, "insecure", true, "skip hub TLS certificate verification")
	flagSet.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, success, warn, error")
	flagSet.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	flagSet.IntVar(&f.port, "port", 50051, "gRPC health port for serve")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var f flags
	flagSet := newFlagSet(&f)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stdout, flagSet)
		return nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return errors.New("no command given")
	}

	logger, err := newLogger(stderr, f.logLevel, f.logFormat)
	if err != nil {
		return err
	}

	app := &app{
		flags:  f,
		logger: logger,
		stdin:  stdin,
		stdout: stdout,
	}
	return app.dispatch(ctx, rest[0], rest[1:])
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: membase [flags] <command> [args]

Commands:
  upload <id> <message>      queue a message record and wait for the hub
  upload-data <file> [name]  upload a file as multipart form data
  conversations              list the account's conversations
  conversation <id>          show one conversation
  download <name> [out]      download a file (stdout when out is omitted)
  run                        run characters on JSON messages read from stdin
  serve                      serve plugin health over gRPC

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

// newLogger builds the process logger. The "success" level sits between
// info and warn.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "success":
		lvl = agent.LevelSuccess
	default:
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q", level)
		}
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: agent.ReplaceLevelName}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want text or json", format)
	}
}
