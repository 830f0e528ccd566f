package cli

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/vk/dynplug/abi"
)

func newInspectCommand(o *rootOptions, logW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [PATH...]",
		Short: "Show what plugin libraries declare",
		Long: `Load each library on its own, initialise it without limits and print
its name, version, functions, types and requested dependencies. Without
arguments the builtins and every *.so under plugin_dirs are inspected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(logW)
			if err != nil {
				return err
			}
			summaries, err := a.Inspect(cmd.Context(), args...)
			if err != nil {
				return err
			}
			r := newRenderer(cmd.OutOrStdout())
			failed := 0
			for _, s := range summaries {
				r.summary(s)
				if s.Err != nil {
					failed++
				}
			}
			if failed > 0 {
				return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d libraries failed to load", failed, len(summaries))}
			}
			return nil
		},
	}
}

func newListCommand(o *rootOptions, logW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load the configured plugins and show their state",
		Long: `Load and initialise every enabled plugin of the configuration, settle
their dependencies and print each plugin's state and wiring.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(logW)
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			startErr := a.Start(cmd.Context())
			newRenderer(cmd.OutOrStdout()).plugins(a.Host().Plugins())
			return startErr
		},
	}
}

func newCallCommand(o *rootOptions, logW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "call PLUGIN FUNCTION [ARG...]",
		Short: "Call a plugin function",
		Long: `Start the configured plugins and call one function. Each ARG is an HCL
literal converted to the declared parameter type, e.g. 3, "text",
[1, 2] or { num = 1, den = 2 }. The result is printed as JSON.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(logW)
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			out, err := a.Call(cmd.Context(), args[0], args[1], args[2:])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the plugin API and toolchain versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			module := "(devel)"
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
				module = info.Main.Version
			}
			fmt.Fprintf(w, "plugctl %s\n", module)
			fmt.Fprintf(w, "plugin api %s\n", abi.APIVersion)
			fmt.Fprintf(w, "toolchain  %s\n", abi.ToolchainVersion)
		},
	}
}
