package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/pagescope/internal/history"
	"github.com/PentesterFlow/pagescope/internal/messaging"
	"github.com/PentesterFlow/pagescope/internal/output"
	"github.com/PentesterFlow/pagescope/internal/progress"
	"github.com/PentesterFlow/pagescope/internal/shutdown"
	"github.com/PentesterFlow/pagescope/pkg/pagescope"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Analyze flags
	sourceKind string
	timeout    int
	workers    int
	rateLimit  float64
	pretty     bool
	save       bool
	outputFile string
	baseURL    string
	headers    []string

	// Display flags
	showProgress bool
	noProgress   bool

	// Serve flags
	addr       string
	defaultURL string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pagescope",
		Short: "pagescope - Page introspection and signal extraction",
		Long: `pagescope - Inspects web pages and reports their automatable surface.

Finds forms, controls, tables, charts and dashboards, and the API endpoints and
webhooks referenced by inline scripts. Pages are fetched over HTTP, rendered in
headless Chrome, or read from local files.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze [url|file|-]...",
		Short: "Analyze one or more pages",
		Long:  "Analyze pages and write a JSON report for each. Several targets are written as one event per line.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}

	// APIs command
	apisCmd := &cobra.Command{
		Use:   "apis [url|file|-]",
		Short: "Extract API endpoints and webhooks",
		Long:  "Extract only the endpoints and webhooks referenced by a page's scripts.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIs,
	}

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the messaging protocol over WebSocket",
		Long:  "Accept ping, analyzePage and extractJavaScriptAPIs requests on /ws.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	// History commands
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved reports",
	}
	historyListCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	historyShowCmd := &cobra.Command{
		Use:   "show [index]",
		Short: "Print a saved report",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyRemoveCmd := &cobra.Command{
		Use:   "remove [index]",
		Short: "Delete a saved report",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryRemove,
	}
	historyClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all saved reports",
		Args:  cobra.NoArgs,
		RunE:  runHistoryClear,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Flags shared by the commands that load pages
	for _, cmd := range []*cobra.Command{analyzeCmd, apisCmd, serveCmd} {
		cmd.Flags().StringVarP(&sourceKind, "source", "s", "auto", "Page source (auto, http, browser, file)")
		cmd.Flags().IntVarP(&timeout, "timeout", "t", 30, "Per-page timeout in seconds")
		cmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 10, "Fetches per second (0 disables)")
		cmd.Flags().StringVar(&baseURL, "base-url", "", "Document URL for local files")
		cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header (\"Name: value\")")
		cmd.Flags().BoolVar(&save, "save", false, "Save reports to history")
	}
	for _, cmd := range []*cobra.Command{analyzeCmd, apisCmd} {
		cmd.Flags().BoolVar(&pretty, "pretty", true, "Indent JSON output")
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	}

	analyzeCmd.Flags().IntVarP(&workers, "workers", "w", 4, "Pages analyzed concurrently")
	analyzeCmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress bar for several targets")
	analyzeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bar")

	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8765)")
	serveCmd.Flags().StringVar(&defaultURL, "default-url", "", "Page analyzed when a request has no url")

	// Add commands
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyRemoveCmd, historyClearCmd)
	rootCmd.AddCommand(analyzeCmd, apisCmd, serveCmd, historyCmd)

	return rootCmd
}

// buildConfig loads the config file, if any, and lays changed flags over it.
func buildConfig(cmd *cobra.Command) (*pagescope.Config, error) {
	config := pagescope.DefaultConfig()
	if configFile != "" {
		fileConfig, err := pagescope.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		config.Source = sourceKind
	}
	if flags.Changed("timeout") {
		config.Timeout = time.Duration(timeout) * time.Second
	}
	if flags.Changed("workers") {
		config.Workers = workers
	}
	if flags.Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}
	if flags.Changed("base-url") {
		config.BaseURL = baseURL
	}
	if flags.Changed("header") {
		h, err := parseHeaders(headers)
		if err != nil {
			return nil, err
		}
		if config.HTTP.Headers == nil {
			config.HTTP.Headers = make(map[string]string)
		}
		for k, v := range h {
			config.HTTP.Headers[k] = v
		}
	}
	if flags.Changed("save") {
		config.History.Enabled = save
	}
	if flags.Changed("pretty") {
		config.Output.Pretty = pretty
	}
	if flags.Changed("output") {
		config.Output.FilePath = outputFile
	}
	if flags.Changed("addr") {
		config.Server.Addr = addr
	}
	if verbose {
		config.Verbose = true
	}
	if debug {
		config.Debug = true
	}

	return config, config.Validate()
}

// parseHeaders splits "Name: value" pairs.
func parseHeaders(raw []string) (map[string]string, error) {
	h := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", kv)
		}
		h[name] = strings.TrimSpace(value)
	}
	return h, nil
}

// newShutdown returns a handler whose context ends on SIGINT/SIGTERM.
func newShutdown(engine *pagescope.Engine) *shutdown.Handler {
	h := shutdown.New(shutdown.Config{
		Logger: engine.Logger(),
		OnShutdownDone: func(elapsed time.Duration, errs []error) {
			if len(errs) > 0 {
				engine.Logger().Warnf("Shutdown completed in %v with %d errors", elapsed, len(errs))
			}
		},
	})
	h.Register("engine", func(ctx context.Context) error {
		return engine.Close()
	})
	go h.Wait(context.Background())
	return h
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	config.Output.Stream = len(args) > 1

	engine, err := pagescope.New(pagescope.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	h := newShutdown(engine)
	defer h.Shutdown()
	ctx := h.Context()

	w, err := output.Open(config.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer w.Close()

	if len(args) == 1 {
		r, err := engine.Analyze(ctx, args[0])
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return w.WriteReport(r)
	}

	// Determine if progress bar should be shown
	var bar *progress.Display
	if showProgress && !noProgress && !verbose && !debug {
		bar = progress.New()
		bar.Start(len(args))
	}

	results := engine.AnalyzeBatch(ctx, args, func(res pagescope.BatchResult) {
		if res.Err != nil {
			w.WriteError(res.Target, res.Err)
		} else {
			w.WriteReport(res.Report)
		}
		if bar != nil {
			if res.Report != nil {
				bar.Record(res.Report.Forms, len(res.Report.APIs.Endpoints), false)
			} else {
				bar.Record(0, 0, true)
			}
		}
	})

	// Targets skipped after an interrupt never reached the callback.
	for _, res := range results {
		if res.Skipped {
			w.WriteError(res.Target, res.Err)
		}
	}

	summary := pagescope.Summarize(results)
	if err := w.WriteSummary(summary); err != nil {
		return err
	}
	if bar != nil {
		bar.Stop()
		bar.PrintSummary()
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", summary.Failed, summary.Targets)
	}
	return nil
}

func runAPIs(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := pagescope.New(pagescope.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	h := newShutdown(engine)
	defer h.Shutdown()

	apis, err := engine.ExtractAPIs(h.Context(), args[0])
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	w, err := output.Open(config.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer w.Close()

	return w.WriteAPIs(args[0], apis)
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := pagescope.New(pagescope.WithConfig(config))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	log := engine.Logger()

	dispatcher := messaging.NewDispatcher(engine, log, engine.Metrics())
	dispatcher.DefaultURL = defaultURL
	server := messaging.NewServer(config.Server, dispatcher, log, engine.Metrics())

	// Callbacks run in reverse: the server stops before the engine closes.
	h := newShutdown(engine)
	h.RegisterServer("server", server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		h.Shutdown()
	case <-h.Done():
		err = <-errCh
	}

	snap := engine.Metrics().Snapshot()
	log.StatsEvent("Server stopped", snap.Summary())
	return err
}

// openHistory opens the configured history file.
func openHistory(cmd *cobra.Command) (*history.Store, error) {
	config, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	return history.Open(config.History.Path, config.History.MaxItems)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved reports")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSAVED\tFORMS\tAPIS\tTITLE\tURL")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\n",
			i, e.SavedAt.Local().Format("2006-01-02 15:04"),
			e.Report.Forms, len(e.Report.APIs.Endpoints), e.Report.Title, e.Report.URL)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(i)
	if err != nil {
		return err
	}
	return output.NewWriter(cmd.OutOrStdout(), output.Config{Pretty: true}).WriteReport(e.Report)
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	i, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Remove(i)
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "History cleared (%s)\n", store.Path())
	return nil
}
