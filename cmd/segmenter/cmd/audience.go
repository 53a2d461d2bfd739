package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/segmenter/internal/core/api"
	"github.com/solatis/segmenter/internal/core/config"
	"github.com/solatis/segmenter/internal/core/db"
	"github.com/solatis/segmenter/internal/rules"
)

var audienceCmd = &cobra.Command{
	Use:   "audience",
	Short: "Compute the audience of a rule tree over a customer file",
	Long: `Compute the audience of a rule tree without a database.

The rule tree is read from --rules (JSON or YAML, "-" for stdin) and the
customers from --customers, a JSON array of {"id", "attributes"} records.`,
	RunE: runAudience,
}

func init() {
	rootCmd.AddCommand(audienceCmd)
	audienceCmd.Flags().String("rules", "", "rule tree file (JSON or YAML)")
	audienceCmd.Flags().String("customers", "", "customer records file (JSON array)")
	audienceCmd.Flags().String("now", "", "reference time for relative dates (YYYY-MM-DD or RFC3339)")
	audienceCmd.Flags().Bool("case-sensitive", false, "compare string values case-sensitively")
	audienceCmd.Flags().Int("workers", 0, "audience workers (0 = GOMAXPROCS)")
	_ = audienceCmd.MarkFlagRequired("rules")
	_ = audienceCmd.MarkFlagRequired("customers")
}

func runAudience(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	rulesPath, _ := cmd.Flags().GetString("rules")
	raw, err := readRuleDocument(rulesPath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	tree, err := rules.Accept(raw, reg, rules.AcceptOptions{AssignMissingIDs: true})
	if err != nil {
		return err
	}

	customersPath, _ := cmd.Flags().GetString("customers")
	f, err := os.Open(customersPath)
	if err != nil {
		return fmt.Errorf("open customers: %w", err)
	}
	defer f.Close()
	customers, err := db.LoadCustomers(f)
	if err != nil {
		return err
	}

	nowFlag, _ := cmd.Flags().GetString("now")
	now, err := parseNow(nowFlag)
	if err != nil {
		return err
	}
	opts := calculatorOptions(cfg)
	if cmd.Flags().Changed("case-sensitive") {
		on, _ := cmd.Flags().GetBool("case-sensitive")
		opts = append(opts, rules.WithCaseSensitive(on))
	}
	opts = append(opts, rules.WithClock(func() time.Time { return now }))

	audience, err := rules.NewCalculator(reg, opts...).Compute(cmd.Context(), tree.Root(), customers)
	if err != nil {
		return err
	}
	logger.Debug("audience computed", "matched", audience.MatchedCount, "evaluated", audience.Evaluated)

	return writeJSON(cmd.OutOrStdout(), api.ComputeAudienceResponse{
		Audience: audience,
		Summary:  rules.Describe(reg, tree.Root()),
	})
}
