package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/youread/internal/config"
	"github.com/JakeFAU/youread/internal/crawler"
	"github.com/JakeFAU/youread/internal/imports"
	"github.com/JakeFAU/youread/internal/library"
	"github.com/JakeFAU/youread/internal/manga"
	"github.com/JakeFAU/youread/internal/progress"
	progresssinks "github.com/JakeFAU/youread/internal/progress/sinks"
	"github.com/JakeFAU/youread/internal/server"
	natosite "github.com/JakeFAU/youread/internal/site/manganato"
)

type importFlags struct {
	url      string
	maxPages int
	out      string
	apply    bool
}

// importOutput is what `youread import` prints.
type importOutput struct {
	Records      []manga.Record         `json:"records"`
	PagesVisited int                    `json:"pages_visited"`
	StopReason   crawler.StopReason     `json:"stop_reason"`
	Error        string                 `json:"error,omitempty"`
	Summary      *library.ImportSummary `json:"summary,omitempty"`
}

func newImportCmd() *cobra.Command {
	var flags importFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Crawl a MangaNato bookmark listing once",
		Long: `Opens the bookmark listing in a headless browser, walks its pages and
prints the collected records as JSON. With --apply the records are also
merged into the library.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runImport(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "", "listing page to start from (default imports.start_url)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "page cap for this run (default crawler.max_pages)")
	cmd.Flags().StringVar(&flags.out, "out", "", "write JSON here instead of stdout")
	cmd.Flags().BoolVar(&flags.apply, "apply", false, "merge the records into the library")
	return cmd
}

func runImport(cmd *cobra.Command, flags importFlags) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	startURL := flags.url
	if startURL == "" {
		startURL = cfg.Imports.StartURL
	}

	logger, err := server.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	site := natosite.New(cfg.Catalog.MangaNatoBaseURL, logger.Named("manganato"))
	if !site.IsListing(startURL) {
		return fmt.Errorf("%s: %w", startURL, crawler.ErrInvalidTabState)
	}

	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         logger.Named("progress_hub"),
	}, progresssinks.NewLogSink(logger.Named("progress_log")))
	defer func() {
		if cerr := hub.Close(context.Background()); cerr != nil {
			logger.Warn("progress hub close failed", zap.Error(cerr))
		}
	}()

	c, err := server.NewCrawler(cfg, site, hub, logger)
	if err != nil {
		return err
	}
	b, err := server.NewBrowser(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	tab, err := b.OpenTab(ctx, startURL)
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	defer tab.Close()

	seed, err := imports.Seed(ctx, c, site, tab, logger)
	if err != nil {
		return fmt.Errorf("seed start page: %w", err)
	}
	res, err := c.NewRun(tab, seed, flags.maxPages).Execute(ctx)
	if err != nil {
		return fmt.Errorf("run import: %w", err)
	}

	out := importOutput{
		Records:      res.Records,
		PagesVisited: res.PagesVisited,
		StopReason:   res.Stop,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		logger.Warn("import stopped early", zap.String("stop", string(res.Stop)), zap.Error(res.Err))
	}

	if flags.apply {
		summary, err := applyRecords(context.WithoutCancel(ctx), cfg, logger, res.Records)
		if err != nil {
			return err
		}
		out.Summary = &summary
	}
	return writeImportOutput(cmd.OutOrStdout(), flags.out, out)
}

func applyRecords(ctx context.Context, cfg *config.Config, logger *zap.Logger, records []manga.Record) (library.ImportSummary, error) {
	lib, release, err := server.OpenLibrary(ctx, cfg, logger)
	if err != nil {
		return library.ImportSummary{}, fmt.Errorf("open library: %w", err)
	}
	defer release(ctx)
	summary, err := lib.ImportAll(ctx, records)
	if err != nil {
		return library.ImportSummary{}, fmt.Errorf("apply records: %w", err)
	}
	logger.Info("records applied",
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func writeImportOutput(stdout io.Writer, path string, out importOutput) error {
	if out.Records == nil {
		out.Records = []manga.Record{}
	}
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
