package cmd

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/config"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show the per-model price table used for cost estimates",
	RunE:  runPricing,
}

func init() {
	rootCmd.AddCommand(pricingCmd)
}

func runPricing(_ *cobra.Command, _ []string) error {
	at := time.Now().UTC()
	if flagEnd != "" {
		t, err := parseTimeFlag(flagEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		at = t
	}

	pt := config.NewPriceTable(at, appCfg.Pricing)
	overridden := make(map[string]bool, len(appCfg.Pricing.Overrides))
	for id := range appCfg.Pricing.Overrides {
		overridden[config.NormalizeModelName(id)] = true
	}
	million := decimal.NewFromInt(1_000_000)
	perMTok := func(d decimal.Decimal) string { return "$" + d.Mul(million).StringFixed(2) }

	rows := make([][]string, 0, len(pt.Models()))
	for _, id := range pt.Models() {
		p, ok := pt.Lookup(id)
		if !ok {
			continue
		}
		source := "built-in"
		if overridden[id] {
			source = "override"
		}
		rows = append(rows, []string{id, perMTok(p.InputPerToken), perMTok(p.OutputPerToken), source})
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("PRICING  as of " + at.Format("2006-01-02")))
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Per million tokens",
		Headers: []string{"Model", "Input", "Output", "Source"},
		Rows:    rows,
	}))
	fmt.Print(cli.RenderNote("Override prices under [pricing.overrides] in " + configPath()))
	fmt.Println()
	return nil
}
