package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

var flagReportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List archived reports",
	RunE:  runReports,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Render an archived report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

func init() {
	reportsCmd.Flags().IntVar(&flagReportsLimit, "limit", 20, "Maximum reports to list")
	reportsShowCmd.Flags().StringVarP(&flagReportFormat, "format", "f", "text", "Output format: text, json or html")
	reportsCmd.AddCommand(reportsShowCmd)
	rootCmd.AddCommand(reportsCmd)
}

func runReports(c *cobra.Command, _ []string) error {
	st, err := store.Open(appCfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	list, err := st.ListReports(c.Context(), flagReportsLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("\n  No archived reports. Use `bedrockmon report --archive`.")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, m := range list {
		loc := m.Location
		if loc == "" {
			loc = "-"
		}
		rows = append(rows, []string{
			m.ID,
			cli.FormatTime(m.GeneratedAt),
			m.Title,
			m.Environment,
			cli.FormatWindow(m.WindowStart, m.WindowEnd),
			loc,
		})
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:    "Archived Reports",
		Headers:  []string{"ID", "Generated", "Title", "Env", "Window", "Location"},
		Rows:     rows,
		LeftCols: 6,
	}))
	return nil
}

func runReportsShow(c *cobra.Command, args []string) error {
	st, err := store.Open(appCfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	r, err := st.LoadReport(c.Context(), args[0])
	if err != nil {
		return err
	}
	return writeReport(os.Stdout, r, flagReportFormat)
}
