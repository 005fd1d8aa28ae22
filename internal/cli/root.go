// Package cli provides the command-line interface for grumpy.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/grumpy/internal/cli/commands"
	"github.com/leapstack-labs/grumpy/internal/cli/config"
	"github.com/leapstack-labs/grumpy/internal/cli/output"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "grumpy",
		Short: "grumpy - an opinionated code reviewer",
		Long: `grumpy checks Go code against configurable rules and tells you what it
thinks about it, mildly, sarcastically or rudely.

Rules come from built-in defaults, YAML rule files and grumpy.yaml, merged
in that order. Results of unchanged files are cached between runs.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			flags := cmd.Root().PersistentFlags()
			cfgFile, _ := flags.GetString("config")
			cfg, err := config.LoadConfig(cfgFile, flags)
			if err != nil {
				return &commands.ExitError{Code: commands.ExitInternal, Err: err}
			}
			if err := cfg.Validate(); err != nil {
				return &commands.ExitError{Code: commands.ExitInternal, Err: err}
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.Debug)
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Info("using config file", "path", configFile)
			}
			logger.Debug("configuration loaded",
				"root", cfg.ProjectRoot,
				"tone", cfg.GrumpinessLevel,
				"state", cfg.StatePath,
				"no_state", cfg.NoState,
			)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	config.RegisterFlags(rootCmd.PersistentFlags())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("grumpiness-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"mild", "sarcastic", "rude"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewRulesCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, NewRootCmd(), os.Args[1:])
}

func run(ctx context.Context, rootCmd *cobra.Command, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, commands.ErrFindings) {
		_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return commands.ExitCode(err)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for grumpy.

To load completions:

Bash:
  $ source <(grumpy completion bash)

Zsh:
  $ grumpy completion zsh > "${fpath[1]}/_grumpy"

Fish:
  $ grumpy completion fish | source

PowerShell:
  PS> grumpy completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
