package commands

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Jill09166/facebook-group-post-scraper/lib/checkpoint"
	"github.com/Jill09166/facebook-group-post-scraper/lib/configutil"
	"github.com/Jill09166/facebook-group-post-scraper/lib/export"
	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/core"
	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/feed"
	"github.com/Jill09166/facebook-group-post-scraper/lib/serviceutil"
	"github.com/Jill09166/facebook-group-post-scraper/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type RetrySettings struct {
	MaxAttempts int `json:"max_attempts"`
	BaseDelayMs int `json:"base_delay_ms"`
	CapDelayMs  int `json:"cap_delay_ms"`
}

type Config struct {
	SessionCookie         string        `json:"session_cookie"`
	Proxy                 string        `json:"proxy"`
	UserAgent             string        `json:"user_agent"`
	RequestTimeoutSeconds int           `json:"request_timeout_seconds"`
	MaxPosts              int           `json:"max_posts"`
	MaxPages              int           `json:"max_pages"`
	PerPageDelayMs        int           `json:"per_page_delay_ms"`
	EmptyPageThreshold    int           `json:"empty_page_threshold"`
	IncludeComments       *bool         `json:"include_comments"`
	Retry                 RetrySettings `json:"retry"`
	OutputDir             string        `json:"output_dir"`
	OutputFormats         []string      `json:"output_formats"`
	CheckpointDb          string        `json:"checkpoint_db"`
}

var scrapeConfig *string
var scrapeInput *string
var scrapeOutputDir *string
var scrapeFormats *[]string
var scrapeMaxPosts *int
var scrapeResume *bool

func init() {
	scrapeConfig = scrapeCmd.Flags().String("config", "config.json5", "Path to the scraper configuration file.")
	scrapeInput = scrapeCmd.Flags().String("input", "data/input_urls.txt", "File with one group url per line.")
	scrapeOutputDir = scrapeCmd.Flags().String("output-dir", "", "Output directory for exported files (overrides config).")
	scrapeFormats = scrapeCmd.Flags().StringSlice("formats", nil, "Output formats: json,csv,xlsx (overrides config).")
	scrapeMaxPosts = scrapeCmd.Flags().Int("max-posts", 0, "Maximum posts per group (overrides config).")
	scrapeResume = scrapeCmd.Flags().Bool("resume", false, "Resume each group from its checkpointed cursor.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--config <config.json5>] [--input <urls.txt>]",
	Short: "Scrapes the configured group feeds and exports the posts.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := configutil.ReadConfig[Config](*scrapeConfig)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		applyOverrides(&cfg)

		tel, err := telemetry.SetupFromEnv(ctx, "fbscrape")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		if cfg.SessionCookie == "" || strings.Contains(cfg.SessionCookie, "your_facebook_session_cookie_here") {
			slog.Warn("session cookie is not configured, authenticated feeds will report auth_expired")
		}

		seeds, err := readSeedUrls(*scrapeInput)
		if err != nil {
			serviceutil.Fatal("failed to read input urls", err)
		}
		if len(seeds) == 0 {
			serviceutil.Fatal("no group urls to scrape", os.ErrInvalid)
		}

		client, err := core.NewClient(ctx, core.ClientOptions{
			SessionCookie: cfg.SessionCookie,
			Proxy:         cfg.Proxy,
			UserAgent:     cfg.UserAgent,
			Timeout:       time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize session client", err)
		}

		var store *checkpoint.Store
		if cfg.CheckpointDb != "" {
			store, err = checkpoint.Open(cfg.CheckpointDb)
			if err != nil {
				serviceutil.Fatal("failed to open checkpoint db", err)
			}
			defer store.Close()
		}

		t1 := time.Now()
		var allPosts []feed.Post
		summaries := table.NewWriter()
		summaries.SetOutputMirror(os.Stdout)
		summaries.AppendHeader(table.Row{"group", "pages", "posts", "terminal reason", "failures"})

		for _, seed := range seeds {
			slog.Info("scraping group", "url", seed)
			posts, summary, err := scrapeGroup(ctx, client, store, cfg, seed)
			if err != nil && ctx.Err() != nil {
				slog.Warn("scrape cancelled", "url", seed)
			} else if err != nil {
				slog.Error("failed to scrape group", "url", seed, "err", err)
			}
			allPosts = append(allPosts, posts...)
			summaries.AppendRow(table.Row{
				seed,
				summary.PagesFetched,
				summary.PostsEmitted,
				string(summary.TerminalReason),
				len(summary.Failures),
			})
			if ctx.Err() != nil {
				break
			}
		}
		summaries.Render()

		if len(allPosts) == 0 {
			slog.Warn("no posts were scraped, nothing to export")
			return
		}

		outputDir := cfg.OutputDir
		if outputDir == "" {
			outputDir = "data"
		}
		formats := cfg.OutputFormats
		if len(formats) == 0 {
			formats = []string{export.FormatJSON, export.FormatCSV, export.FormatXLSX}
		}
		err = export.Posts(allPosts, outputDir, "facebook_group_posts", formats)
		if err != nil {
			serviceutil.Fatal("failed to export posts", err)
		}

		slog.Info("scraping and export complete",
			"posts", len(allPosts),
			"seconds", time.Since(t1).Seconds(),
		)
	},
}

func applyOverrides(cfg *Config) {
	if *scrapeOutputDir != "" {
		cfg.OutputDir = *scrapeOutputDir
	}
	if len(*scrapeFormats) > 0 {
		cfg.OutputFormats = *scrapeFormats
	}
	if *scrapeMaxPosts > 0 {
		cfg.MaxPosts = *scrapeMaxPosts
	}
}

func scrapeGroup(ctx context.Context, client *core.Client, store *checkpoint.Store, cfg Config, seed string) ([]feed.Post, feed.Summary, error) {
	includeComments := true
	if cfg.IncludeComments != nil {
		includeComments = *cfg.IncludeComments
	}

	opts := feed.Options{
		MaxPosts:           cfg.MaxPosts,
		MaxPages:           cfg.MaxPages,
		PerPageDelay:       time.Duration(cfg.PerPageDelayMs) * time.Millisecond,
		EmptyPageThreshold: cfg.EmptyPageThreshold,
		IncludeComments:    includeComments,
		Retry: feed.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			CapDelay:    time.Duration(cfg.Retry.CapDelayMs) * time.Millisecond,
		},
	}

	if store != nil {
		if *scrapeResume {
			cursor, err := store.LoadCursor(ctx, seed)
			if err != nil {
				return nil, feed.Summary{}, err
			}
			if cursor != nil {
				slog.Info("resuming from checkpoint", "url", seed, "page", cursor.Page)
				opts.Resume = cursor
			}
		} else if err := store.Clear(ctx, seed); err != nil {
			return nil, feed.Summary{}, err
		}
		opts.OnAdvance = func(cursor feed.Cursor) {
			if err := store.SaveCursor(ctx, cursor); err != nil {
				slog.Warn("failed to checkpoint cursor", "url", seed, "err", err)
			}
		}
	}

	pipeline, err := feed.NewPipeline(client, opts)
	if err != nil {
		return nil, feed.Summary{}, err
	}

	summary, err := pipeline.Run(ctx, seed, func(post feed.Post) {
		slog.Debug("emitted post", "url", post.Url)
		if store != nil {
			if markErr := store.MarkEmitted(ctx, seed, post.Url); markErr != nil {
				slog.Warn("failed to checkpoint emission", "url", post.Url, "err", markErr)
			}
		}
	})
	return pipeline.Posts(), summary, err
}

func readSeedUrls(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
