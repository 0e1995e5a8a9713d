package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/bedrockmon/internal/cli"
	"github.com/theirongolddev/bedrockmon/internal/config"
	"github.com/theirongolddev/bedrockmon/internal/daemon"
	"github.com/theirongolddev/bedrockmon/internal/pipeline"
)

var (
	flagDaemonAddr         string
	flagDaemonInterval     time.Duration
	flagDaemonDetach       bool
	flagDaemonPIDFile      string
	flagDaemonLogFile      string
	flagDaemonEventsBuffer int
	flagDaemonChild        bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll a trailing window and alert on new anomalies",
	Long: "Run the pipeline every --interval over the trailing --since window. " +
		"New anomalies are delivered to the configured sinks. Status, events, " +
		"an SSE stream, the latest report and Prometheus metrics are served over HTTP.",
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and API status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

func init() {
	pf := daemonCmd.PersistentFlags()
	pf.StringVar(&flagDaemonAddr, "addr", "", "HTTP listen address (default from config)")
	pf.DurationVar(&flagDaemonInterval, "interval", 0, "Polling interval (default from config)")
	pf.StringVar(&flagDaemonPIDFile, "pid-file", filepath.Join(config.DataDir(), "bedrockmond.pid"), "PID file path")
	pf.StringVar(&flagDaemonLogFile, "log-file", filepath.Join(config.DataDir(), "bedrockmond.log"), "Log file for detached mode")
	pf.IntVar(&flagDaemonEventsBuffer, "events-buffer", 0, "Max in-memory events retained (default from config)")

	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run daemon as a background process")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: mark detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd)
	rootCmd.AddCommand(daemonCmd)
}

// daemonDefaults fills unset daemon flags from the [daemon] config.
func daemonDefaults() {
	if flagDaemonAddr == "" {
		flagDaemonAddr = appCfg.Daemon.Addr
	}
	if flagDaemonInterval <= 0 {
		flagDaemonInterval = appCfg.Daemon.Interval.Duration
	}
	if flagDaemonEventsBuffer <= 0 {
		flagDaemonEventsBuffer = appCfg.Daemon.Events
	}
}

func runDaemon(c *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("invalid daemon launch mode")
	}
	daemonDefaults()

	if flagDaemonDetach {
		return startDaemonDetached()
	}
	return runDaemonForeground(c.Context())
}

func startDaemonDetached() error {
	pf := pidFile(flagDaemonPIDFile)
	if err := pf.claim(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	args := append(filterDetachArg(os.Args[1:]), "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create daemon log directory: %w", err)
	}
	logf, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) //nolint:gosec // path comes from --log-file
	if err != nil {
		return fmt.Errorf("open daemon log file: %w", err)
	}
	defer func() { _ = logf.Close() }()

	child := exec.Command(exe, args...) //nolint:gosec // re-executes the current binary
	child.Stdout, child.Stderr = logf, logf
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start detached daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  PID file: %s\n", flagDaemonPIDFile)
	fmt.Printf("  API: http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Log: %s\n", flagDaemonLogFile)
	return nil
}

func runDaemonForeground(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	pf := pidFile(flagDaemonPIDFile)
	if err := pf.claim(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, closeProvider, err := openProvider(ctx)
	if err != nil {
		return err
	}
	defer closeProvider()

	fanout, closeSinks, err := buildSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	window := flagSince
	if window <= 0 {
		window = appCfg.General.Window.Duration
	}

	err = pf.write(daemonState{
		PID:       os.Getpid(),
		Addr:      flagDaemonAddr,
		StartedAt: time.Now().UTC(),
		Provider:  p.Name(),
		Window:    window.String(),
	})
	if err != nil {
		return err
	}
	defer pf.clear()

	cfg := daemon.Config{
		Request:      baseRequest(time.Time{}, time.Time{}),
		Window:       window,
		Interval:     flagDaemonInterval,
		Addr:         flagDaemonAddr,
		EventsBuffer: flagDaemonEventsBuffer,
		Logger:       appLog,
	}
	if len(fanout) > 0 {
		cfg.Sink = fanout
	}
	svc := daemon.New(pipeline.NewRunner(newCollector(p), appLog), cfg)

	fmt.Printf("  bedrockmon daemon listening on http://%s\n", flagDaemonAddr)
	fmt.Printf("  Polling %s every %s over a trailing %s\n", p.Name(), flagDaemonInterval, window)
	if len(fanout) > 0 {
		fmt.Printf("  Alerts go to %s\n", fanout.Name())
	}
	fmt.Printf("  Stop with: bedrockmon daemon stop --pid-file %s\n", flagDaemonPIDFile)
	appLog.Info("daemon starting",
		zap.String("addr", flagDaemonAddr),
		zap.String("provider", p.Name()),
		zap.Duration("interval", flagDaemonInterval),
		zap.Duration("window", window))

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(c *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, alive := pf.running()
	switch {
	case pid == 0:
		fmt.Println("  Daemon: not running (pid file not found)")
		return nil
	case !alive:
		fmt.Printf("  Daemon: stale pid file (pid %d not alive)\n", pid)
		return nil
	}

	addr := flagDaemonAddr
	if addr == "" {
		addr = appCfg.Daemon.Addr
	}
	rows := [][]string{{"PID", fmt.Sprint(pid)}}
	if st, err := pf.state(); err == nil {
		if st.Addr != "" {
			addr = st.Addr
		}
		rows = append(rows,
			[]string{"Provider", st.Provider},
			[]string{"Window", st.Window},
			[]string{"Started", cli.FormatTime(st.StartedAt)})
	}
	rows = append(rows, []string{"Address", "http://" + addr})

	st, err := fetchDaemonStatus(c.Context(), addr)
	if err != nil {
		rows = append(rows, []string{"API", err.Error()})
	} else {
		rows = append(rows, statusRows(st)...)
	}

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:    "Daemon",
		Headers:  []string{"", ""},
		Rows:     rows,
		LeftCols: 2,
	}))
	return nil
}

func fetchDaemonStatus(ctx context.Context, addr string) (daemon.Status, error) {
	var st daemon.Status
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, fmt.Errorf("unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("malformed response: %w", err)
	}
	return st, nil
}

func statusRows(st daemon.Status) [][]string {
	lastPoll := "pending"
	if !st.LastPollAt.IsZero() {
		lastPoll = cli.FormatTime(st.LastPollAt)
	}
	s := st.Summary
	rows := [][]string{
		{"Last poll", lastPoll},
		{"Polls", fmt.Sprint(st.PollCount)},
		{"Metrics", strings.Join(st.Metrics, ", ")},
	}
	if !s.WindowEnd.IsZero() {
		rows = append(rows, []string{"Window", cli.FormatWindow(s.WindowStart, s.WindowEnd)})
	}
	rows = append(rows,
		[]string{"Series", fmt.Sprintf("%d (%d failed)", s.Series, s.Failures)},
		[]string{"Invocations", cli.FormatNumber(int64(s.Invocations))},
		[]string{"Tokens", cli.FormatTokens(s.Tokens)},
		[]string{"Cost", fmt.Sprintf("%.2f %s", s.EstimatedCost, s.Currency)},
		[]string{"Anomalies", fmt.Sprintf("%d critical, %d warning", s.Critical, s.Warnings)},
		[]string{"Subscribers", fmt.Sprint(st.SubscriberCount)},
	)
	if st.LastError != "" {
		rows = append(rows, []string{"Last error", st.LastError})
	}
	if st.LastDeliveryError != "" {
		rows = append(rows, []string{"Delivery error", st.LastDeliveryError})
	}
	return rows
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pf := pidFile(flagDaemonPIDFile)
	pid, err := pf.pid()
	if err != nil {
		return errors.New("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon process: %w", err)
	}

	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(8 * time.Second)
	for {
		select {
		case <-ticker.C:
			if !processAlive(pid) {
				pf.clear()
				fmt.Printf("  Stopped daemon (pid %d)\n", pid)
				return nil
			}
		case <-timeout:
			return fmt.Errorf("daemon (pid %d) did not exit in time", pid)
		}
	}
}

// filterDetachArg drops --detach so the child runs in the foreground.
func filterDetachArg(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
