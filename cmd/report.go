package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/bedrockmon/internal/model"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
	"github.com/theirongolddev/bedrockmon/internal/report"
	"github.com/theirongolddev/bedrockmon/internal/store"
)

var (
	flagReportOut     string
	flagReportFormat  string
	flagReportTitle   string
	flagReportDeliver bool
	flagReportArchive bool
	flagReportCompare bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Collect, analyze and build a full report",
	RunE:  runReport,
}

func init() {
	addReportFlags(reportCmd)
	rootCmd.AddCommand(reportCmd)
}

func addReportFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagReportOut, "out", "o", "", "Write the report to a file, s3://bucket/key or http(s) URL")
	c.Flags().StringVarP(&flagReportFormat, "format", "f", "text", "Stdout format: text, json or html")
	c.Flags().StringVar(&flagReportTitle, "title", "", "Report title")
	c.Flags().BoolVar(&flagReportDeliver, "deliver", false, "Send the report through the sinks in [sinks]")
	c.Flags().BoolVar(&flagReportArchive, "archive", false, "Archive the report in the local store")
	c.Flags().BoolVar(&flagReportCompare, "compare", true, "Compare with the previous window of equal length")
}

func runReport(c *cobra.Command, _ []string) error {
	ctx := c.Context()

	res, err := runAnalysis(ctx, func(req *pipeline.Request) {
		req.Title = flagReportTitle
		req.ComparePrevious = flagReportCompare
	})
	if err != nil {
		return err
	}
	r := res.Report

	location := ""
	if flagReportOut != "" {
		p, loc, err := persisterFor(ctx, flagReportOut)
		if err != nil {
			return err
		}
		if err := p.Persist(ctx, r, loc); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		location = flagReportOut
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Report %s written to %s\n", r.ID, location)
		}
	} else if err := writeReport(os.Stdout, r, flagReportFormat); err != nil {
		return err
	}

	if flagReportArchive {
		st, err := store.Open(appCfg.StorePath())
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		if err := st.SaveReport(ctx, r, location); err != nil {
			return err
		}
	}

	if flagReportDeliver {
		sinks, closeFn, err := buildSinks(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		if len(sinks) == 0 {
			return fmt.Errorf("--deliver: no sinks configured in %s", configPath())
		}
		if err := sinks.Deliver(ctx, r); err != nil {
			return fmt.Errorf("delivering report: %w", err)
		}
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Delivered via %s\n", sinks.Name())
		}
	}
	return nil
}

func writeReport(w io.Writer, r model.Report, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return report.RenderText(w, r)
	case "json":
		data, err := report.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case "html":
		return report.RenderHTML(w, r)
	default:
		return fmt.Errorf("unknown format %q: want text, json or html", format)
	}
}
