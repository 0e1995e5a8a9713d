package cmd

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/cost"
	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
	"github.com/theirongolddev/bedrockmon/internal/report"
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Estimated cost by token type, model and dimension key",
	RunE:  runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)
}

func runCosts(c *cobra.Command, _ []string) error {
	var req pipeline.Request
	res, err := runAnalysis(c.Context(), func(r *pipeline.Request) {
		if len(flagMetrics) == 0 {
			r.MetricNames = []string{model.MetricInputTokens, model.MetricOutputTokens}
		}
		if len(r.GroupBy) == 0 {
			r.GroupBy = []string{model.DimModelID}
		}
		r.ComparePrevious = true
		req = *r
	})
	if err != nil {
		return err
	}
	if len(res.Costs) == 0 {
		fmt.Println("\n  No token usage in the selected window.")
		return nil
	}

	currency := res.Costs[0].Currency
	total := cost.Total(res.Costs)

	fmt.Println()
	fmt.Println(cli.RenderTitle("COST BREAKDOWN  " + cli.FormatWindow(req.Start, req.End)))
	fmt.Println()
	printFailures(res)

	// Cost by token type
	split := cost.SplitByTokenType(res.Costs, req.Prices)
	typeRows := [][]string{
		{"Input", cli.FormatCost(split.Input, currency), share(split.Input, total)},
		{"Output", cli.FormatCost(split.Output, currency), share(split.Output, total)},
		{"---"},
		{"TOTAL", cli.FormatCost(total, currency), ""},
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "By Token Type",
		Headers: []string{"Type", "Cost", "Share"},
		Rows:    typeRows,
	}))

	// Period comparison
	if res.Previous != nil && !res.Previous.Cost.IsZero() {
		fmt.Printf("  Period Comparison\n")
		fmt.Printf("  This window  %s\n", cli.FormatCost(total, currency))
		fmt.Printf("  Previous     %s  (%s)\n\n",
			cli.FormatCost(res.Previous.Cost, currency),
			cli.FormatDelta(total, res.Previous.Cost, currency))
	}

	// Cost by model
	models := cost.GroupBy(res.Costs, model.DimModelID)
	modelRows := make([][]string, 0, len(models)+2)
	for _, g := range models {
		modelRows = append(modelRows, []string{
			g.Key,
			cli.FormatTokens(g.InputTokens),
			cli.FormatTokens(g.OutputTokens),
			cli.FormatCost(g.Cost, currency),
			share(g.Cost, total),
		})
	}
	modelRows = append(modelRows, []string{"---"})
	modelRows = append(modelRows, []string{"TOTAL", "", "", cli.FormatCost(total, currency), ""})
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "By Model",
		Headers: []string{"Model", "Input", "Output", "Cost", "Share"},
		Rows:    modelRows,
	}))

	if len(req.GroupBy) > 1 {
		n := req.TopN
		if n <= 0 {
			n = report.DefaultTopN
		}
		top := cost.TopN(cost.GroupBy(res.Costs, ""), n)
		rows := make([][]string, 0, len(top))
		for i, g := range top {
			rows = append(rows, []string{strconv.Itoa(i + 1), g.Key, cli.FormatCost(g.Cost, currency)})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:    fmt.Sprintf("Top %d Dimension Keys", len(top)),
			Headers:  []string{"#", "Key", "Cost"},
			Rows:     rows,
			LeftCols: 2,
		}))
	}

	if un := cost.Unestimated(res.Costs); len(un) > 0 {
		rows := make([][]string, 0, len(un))
		for _, r := range un {
			rows = append(rows, []string{
				r.Dimensions.String(),
				cli.FormatTokens(r.InputTokens),
				cli.FormatTokens(r.OutputTokens),
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Unestimated (no price)",
			Headers: []string{"Key", "Input", "Output"},
			Rows:    rows,
		}))
		fmt.Print(cli.RenderNote("Add prices under [pricing.overrides] to estimate these."))
		fmt.Println()
	}

	if req.MonthlyBudget != nil {
		st := cost.Budget(total, req.Start, req.End, *req.MonthlyBudget)
		fmt.Printf("  Budget: %s of %s used (%s), projected %s/month\n\n",
			cli.FormatCost(st.WindowSpend, currency),
			cli.FormatCost(st.MonthlyBudget, currency),
			cli.FormatPercent(st.BudgetUsedPercent),
			cli.FormatCost(st.ProjectedMonthly, currency))
	}
	return nil
}

func share(part, total decimal.Decimal) string {
	if total.IsZero() {
		return ""
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
