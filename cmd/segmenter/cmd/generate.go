package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/rules"
)

var generateCmd = &cobra.Command{
	Use:   "generate QUERY...",
	Short: "Translate an audience description into a rule tree",
	Long: `Translate a free-text audience description into a validated rule tree.

Uses OpenAI when translate.provider is "openai" and OPENAI_API_KEY is set,
and the built-in keyword translator otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		result, err := newGenerator(cfg, reg).Translate(cmd.Context(), query)
		if err != nil {
			return err
		}
		tree, err := rules.Accept(result.Document, reg, rules.AcceptOptions{AssignMissingIDs: true, SeedIfEmpty: true})
		if err != nil {
			return fmt.Errorf("%s translator: %w", result.Source, err)
		}
		doc, err := json.Marshal(tree)
		if err != nil {
			return err
		}

		return writeJSON(cmd.OutOrStdout(), struct {
			Rules   json.RawMessage `json:"rules"`
			Summary string          `json:"summary"`
			Source  string          `json:"source"`
		}{doc, rules.Describe(reg, tree.Root()), result.Source})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
