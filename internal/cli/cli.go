package cli

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

type rootOptions struct {
	configPaths []string
	format      string
	logFormat   string
	logLevel    string
	builtins    []*abi.Declaration
}

// Option adjusts the command tree, mainly for tests.
type Option func(*rootOptions)

// WithBuiltins replaces the compiled-in plugin table.
func WithBuiltins(decls ...*abi.Declaration) Option {
	return func(o *rootOptions) { o.builtins = decls }
}

// NewRootCommand creates the plugctl command. Results go to out, logs to
// logW.
func NewRootCommand(out, logW io.Writer, opts ...Option) *cobra.Command {
	o := &rootOptions{}
	for _, opt := range opts {
		opt(o)
	}

	cmd := &cobra.Command{
		Use:   "plugctl",
		Short: "Load, inspect and call dynamic plugins",
		Long: `plugctl drives a plugin host from the command line.

Libraries are Go plugins (*.so) exporting a PluginDeclaration symbol, or
plugins compiled into plugctl itself under "builtin:<name>" paths. The
host configuration is read from HCL or TOML files.`,
		Example: `  # Show what the compiled-in plugins declare
  plugctl inspect

  # Load the plugins of a configuration and show how they were wired
  plugctl list -c host.hcl

  # Call a function; arguments are HCL literals
  plugctl call -c host.hcl arith div '{ num = 1, den = 2 }' '{ num = 3, den = 4 }'`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(logW)

	flags := cmd.PersistentFlags()
	flags.StringSliceVarP(&o.configPaths, "config", "c", nil, "Configuration file or directory (repeatable).")
	flags.StringVar(&o.format, "format", "", "Configuration format: 'hcl' or 'toml'. Inferred from the file extension when empty.")
	flags.StringVar(&o.logFormat, "log-format", "", "Log output format. Options: 'text' or 'json'.")
	flags.StringVar(&o.logLevel, "log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	cmd.AddCommand(
		newInspectCommand(o, logW),
		newListCommand(o, logW),
		newCallCommand(o, logW),
		newVersionCommand(),
	)
	return cmd
}

// newApp validates the flags and builds the application.
func (o *rootOptions) newApp(logW io.Writer) (*app.App, error) {
	cfg, err := app.NewConfig(app.Config{
		ConfigPaths: o.configPaths,
		Format:      strings.ToLower(o.format),
		LogFormat:   strings.ToLower(o.logFormat),
		LogLevel:    strings.ToLower(o.logLevel),
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("CLI parameter validation complete.", "config", cfg.ConfigPaths)
	return app.NewApp(logW, cfg, cfg.ConfigLoader(), o.builtins...)
}

// Execute runs the command tree with args. Flag and argument errors come
// back as an *ExitError with code 2.
func Execute(args []string, out, logW io.Writer, opts ...Option) error {
	cmd := NewRootCommand(out, logW, opts...)
	cmd.SetArgs(args)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})
	err := cmd.Execute()
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) && isUsageError(err) {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	return err
}

func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "requires at least")
}
