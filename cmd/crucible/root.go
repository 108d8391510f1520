package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/config"
	"github.com/zero-day-ai/crucible/pkg/version"
)

// appConfig is the configuration loaded by the root pre-run hook.
var appConfig *config.Config

// annotationNoConfig marks commands that run without loading the config.
const annotationNoConfig = "crucible/no-config"

var noConfig = map[string]string{annotationNoConfig: "true"}

var rootCmd = &cobra.Command{
	Use:   "crucible",
	Short: "Crucible - adversarial conversation engine for red-teaming LLM systems",
	Long: `Crucible drives multi-turn adversarial conversations against LLM
targets. Each turn renders a prompt, passes it through a transformer
pipeline (optionally reviewed by a human), sends it to the target,
records both sides in a local SQLite memory and scores the reply
against an objective.

Configuration is read from $CRUCIBLE_HOME/config.yaml; ${VAR}
references are expanded from the environment and a .env file.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is called before any command runs to load configuration
func loadConfig(cmd *cobra.Command, args []string) error {
	flags, err := ParseGlobalFlags(cmd)
	if err != nil {
		return err
	}

	if flags.NoColor {
		color.NoColor = true
	}

	if flags.EnvFile != "" {
		if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return internal.WrapError(internal.ExitConfigError, "failed to load "+flags.EnvFile, err)
		}
	}
	if flags.HomeDir != "" {
		if err := os.Setenv(config.HomeEnv, flags.HomeDir); err != nil {
			return err
		}
	}

	if cmd.Name() == "help" || cmd.Annotations[annotationNoConfig] == "true" {
		return nil
	}

	loader := config.NewConfigLoader(config.NewValidator())
	var cfg *config.Config
	if flags.ConfigFile != "" {
		cfg, err = loader.Load(flags.ConfigFile)
	} else {
		cfg, err = loader.LoadWithDefaults(config.DefaultConfigPath(config.DefaultHomeDir()))
	}
	if err != nil {
		return err
	}

	switch {
	case flags.IsVerbose():
		cfg.Logging.Level = "debug"
	case flags.IsQuiet():
		cfg.Logging.Level = "error"
	}

	appConfig = cfg
	return nil
}

func init() {
	RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(attackCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(rubricCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			return internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(version.Info())
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
		return err
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for crucible.

Bash:

  $ source <(crucible completion bash)

Zsh:

  $ crucible completion zsh > "${fpath[1]}/_crucible"

Fish:

  $ crucible completion fish | source

PowerShell:

  PS> crucible completion powershell | Out-String | Invoke-Expression
`,
	Annotations:           noConfig,
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
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
