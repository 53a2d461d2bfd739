package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/rules"
)

var describeCmd = &cobra.Command{
	Use:   "describe RULES_FILE",
	Short: "Print the English description of a rule tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		raw, err := readRuleDocument(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		tree, err := rules.Accept(raw, reg, rules.AcceptOptions{AssignMissingIDs: true})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rules.Describe(reg, tree.Root()))
		return err
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
