package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"receiptd/internal/config"
	"receiptd/internal/domain"
	"receiptd/internal/logger"
)

// Exit codes shared by every subcommand.
const (
	exitOK       = 0
	exitRejected = 1
	exitError    = 2
)

// exitCodeError carries a process exit code out of a cobra RunE.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

type cli struct {
	configPath string
	logLevel   string
	verbose    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	app := &cli{}
	root := &cobra.Command{
		Use:           "receiptd",
		Short:         "Verify signed receipts against JSON Web Key Sets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "config file (default ./receiptd.yaml when present)")
	flags.StringVar(&app.logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newVerifyCmd(app),
		newThumbprintCmd(app),
		newCanonicalizeCmd(app),
		newInspectCmd(app),
		newServeCmd(app),
		newKeysCmd(app),
	)
	return root
}

func (a *cli) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.verbose {
		cfg.LogLevel = "DEBUG"
	}
	logger.Init(cfg.LogLevel)
	a.cfg = cfg
	return nil
}

// run executes the command line and maps the outcome to an exit code:
// 0 accepted or success, 1 rejected receipt, 2 any system or usage error.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	defer logger.Sync()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		if coded.err != nil {
			writeSystemError(stderr, coded.err)
		}
		return coded.code
	}
	writeSystemError(stderr, err)
	return exitError
}

func writeSystemError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %s: %v\n", domain.ErrorCode(err), err)
}
