package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import JSONL samples and invocation logs into the local store",
	Long: "Import exported metric samples and Bedrock model invocation logs. " +
		"Only new or changed files are parsed; files that disappeared are removed.",
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(_ *cobra.Command, args []string) error {
	dir := flagDataDir
	if len(args) == 1 {
		dir = args[0]
	}

	st, err := store.Open(appCfg.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning %s...\n", dir)
	}
	res, err := pipeline.Import(dir, st, progressFn("Importing"))
	if err != nil {
		return err
	}
	if !flagQuiet && res.Imported > 0 {
		fmt.Fprintln(os.Stderr)
	}

	total, err := st.SampleCount()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Import",
		Headers: []string{"", "Count"},
		Rows: [][]string{
			{"Files found", cli.FormatNumber(int64(res.TotalFiles))},
			{"Unchanged", cli.FormatNumber(int64(res.Unchanged))},
			{"Imported", cli.FormatNumber(int64(res.Imported))},
			{"Removed", cli.FormatNumber(int64(res.Removed))},
			{"Samples written", cli.FormatNumber(int64(res.Samples))},
			{"Malformed lines", cli.FormatNumber(int64(res.ParseErrors))},
			{"Unreadable files", cli.FormatNumber(int64(res.FileErrors))},
			{"---"},
			{"Samples stored", cli.FormatNumber(int64(total))},
		},
	}))
	fmt.Print(cli.RenderNote("Query them with --provider sqlite. Store: " + appCfg.StorePath()))
	fmt.Println()
	return nil
}
