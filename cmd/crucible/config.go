package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/crucible/cmd/crucible/internal"
	"github.com/zero-day-ai/crucible/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the crucible configuration",
	Long: `The config command prints and validates the effective configuration:
the config file merged over the defaults, with ${VAR} references expanded.

Configuration is read from ~/.crucible/config.yaml by default.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the effective configuration as YAML, or as JSON with -o json.
API keys and credential headers are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Redacted(appConfig)
		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			tree, err := configTree(cfg)
			if err != nil {
				return err
			}
			return internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(tree)
		}
		out, err := marshalYAML(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a single configuration value",
	Long: `Get the value of one configuration key.

Keys use dot notation to access nested values:
  crucible config get attack.max_turns
  crucible config get targets.victim.provider
  crucible config get database`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := configTree(config.Redacted(appConfig))
		if err != nil {
			return err
		}
		value, err := lookupKey(tree, args[0])
		if err != nil {
			return err
		}

		if globalFlags.GetOutputFormat() == internal.FormatJSON {
			return internal.NewJSONFormatter(cmd.OutOrStdout()).PrintJSON(value)
		}
		switch v := value.(type) {
		case map[string]any, []any:
			out, err := marshalYAML(v)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		default:
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		}
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Validate the configuration file. This checks:
  - YAML syntax
  - required fields and value ranges
  - that attack, scorer and target entries refer to configured names`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// loading already validated it; an invalid file never gets here
		return internal.NewTextFormatter(cmd.OutOrStdout()).PrintSuccess("Configuration is valid")
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configValidateCmd)
}

func marshalYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// configTree converts cfg to a generic tree keyed by the YAML field names.
func configTree(cfg *config.Config) (map[string]any, error) {
	out, err := marshalYAML(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(out, &tree); err != nil {
		return nil, fmt.Errorf("failed to convert config: %w", err)
	}
	return tree, nil
}

func lookupKey(tree map[string]any, key string) (any, error) {
	var current any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, internal.NewCLIError(internal.ExitConfigError, fmt.Sprintf("configuration key %q not found", key))
		}
		if current, ok = m[strings.ToLower(part)]; !ok {
			return nil, internal.NewCLIError(internal.ExitConfigError, fmt.Sprintf("configuration key %q not found", key))
		}
	}
	return current, nil
}
