package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/commit-streaks/internal/aggregator"
	"github.com/kurihiro0119/commit-streaks/internal/backfill"
	"github.com/kurihiro0119/commit-streaks/internal/collector"
	"github.com/kurihiro0119/commit-streaks/internal/config"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	"github.com/kurihiro0119/commit-streaks/internal/logging"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/postgres"
	"github.com/kurihiro0119/commit-streaks/internal/storage/sqlite"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
	"github.com/kurihiro0119/commit-streaks/internal/tracker"
	"github.com/kurihiro0119/commit-streaks/pkg/client"
)

var (
	outputJSON bool
	remote     bool

	trackDate string

	backfillDays  int
	dryRun        bool
	force         bool
	batchSize     int
	backfillScope []string

	granularity   string
	periods       int
	calendarWeeks bool
	chartHeight   int

	sinceDate string
)

var rootCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Commit streak tracker",
	Long: `A CLI tool for tracking daily commit activity across repositories.

It records one fact per repository per day, derives daily and weekly streaks,
unlocks achievements and renders commit history charts.`,
	SilenceUsage: true,
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track today's commits",
	Long:  `Collect one day of activity from every repository and refresh streaks and achievements.`,
	Args:  cobra.NoArgs,
	RunE:  runTrack,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Import historical commits",
	Long:  `Replay past activity into the ledger. Existing days are skipped unless --force is given.`,
	Args:  cobra.NoArgs,
	RunE:  runBackfill,
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show streak status",
	Args:  cobra.NoArgs,
	RunE:  runStreak,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show commit history chart",
	Long:  `Display commit totals per day, week or month with trend statistics.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List unlocked achievements",
	Args:  cobra.NoArgs,
	RunE:  runAchievements,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show momentum and personal records",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "read from the API server at API_ENDPOINT instead of local storage")

	trackCmd.Flags().StringVar(&trackDate, "date", "", "day to track (YYYY-MM-DD, default today)")

	backfillCmd.Flags().IntVar(&backfillDays, "days", 30, "number of days to import, ending today")
	backfillCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	backfillCmd.Flags().BoolVar(&force, "force", false, "replace days that are already tracked")
	backfillCmd.Flags().IntVar(&batchSize, "batch-size", 0, "repositories fetched concurrently (default BACKFILL_BATCH_SIZE)")
	backfillCmd.Flags().StringSliceVar(&backfillScope, "scope", nil, "search paths or GitHub scope (default from config)")

	historyCmd.Flags().StringVar(&granularity, "granularity", "", "day, week or month (default picked from tracked days)")
	historyCmd.Flags().IntVar(&periods, "periods", 0, "number of periods (default 90 days, 13 weeks or 3 months)")
	historyCmd.Flags().BoolVar(&calendarWeeks, "calendar-weeks", false, "align weeks to Monday")
	historyCmd.Flags().IntVar(&chartHeight, "height", 20, "chart bar width in characters")

	achievementsCmd.Flags().StringVar(&sinceDate, "since", "", "only achievements triggered on or after this day (YYYY-MM-DD)")

	rootCmd.AddCommand(trackCmd, backfillCmd, streakCmd, historyCmd, achievementsCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app wires the components one command needs
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   storage.Storage
	engine  *streak.Engine
	agg     aggregator.Aggregator
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	m := metrics.New()
	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		store:   store,
		engine:  streak.NewEngine(store, cfg.StreakOptions(), cfg.Thresholds, m, logger),
		agg:     aggregator.NewAggregator(store, m, logger),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

// collector returns the configured source wrapped with the retry budget, and its default scope
func (a *app) collector() (collector.Collector, []string) {
	var (
		c     collector.Collector
		scope []string
	)
	switch a.cfg.Source {
	case config.SourceGitHub:
		c = collector.NewGitHubCollector(a.cfg.GitHubToken, a.logger)
		scope = a.cfg.GitHubScope
	default:
		c = collector.NewLocalCollector(collector.NewExecExecutor(), a.cfg.AuthorEmails, a.logger)
		scope = a.cfg.SearchPaths
	}

	opts := collector.DefaultRetryOptions()
	opts.Timeout = a.cfg.SourceTimeout
	opts.MaxTries = uint(a.cfg.SourceRetries)
	return collector.WithRetry(c, opts, a.metrics, a.logger), scope
}

func parseDay(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := domain.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTrack(cmd *cobra.Command, args []string) error {
	date, err := parseDay(trackDate, time.Now())
	if err != nil {
		return err
	}

	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctx, cancel := signalContext()
		defer cancel()
		result, err := client.NewClient(cfg.APIEndpoint).Track(ctx, date)
		if err != nil {
			return fmt.Errorf("failed to track: %w", err)
		}
		return renderTrack(result)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	c, scope := a.collector()
	tr := tracker.NewTracker(c, a.store, a.engine, scope, a.metrics, a.logger)
	result, err := tr.TrackDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to track %s: %w", domain.FormatDay(date), err)
	}
	return renderTrack(result)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	c, scope := a.collector()
	if len(backfillScope) > 0 {
		scope = backfillScope
	}
	if batchSize == 0 {
		batchSize = a.cfg.BackfillBatchSize
	}

	reconciler := backfill.NewReconciler(c, a.store, a.metrics, a.logger)
	report, err := reconciler.Backfill(ctx, backfill.Options{
		Days:        backfillDays,
		SearchScope: scope,
		DryRun:      dryRun,
		Force:       force,
		BatchSize:   batchSize,
		MaxDays:     a.cfg.BackfillMaxDays,
	})
	if report != nil {
		if renderErr := renderBackfill(report); renderErr != nil {
			return renderErr
		}
	}
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if !dryRun && report.Created+report.Replaced > 0 {
		result, err := a.engine.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh streaks: %w", err)
		}
		if !outputJSON {
			renderAchievementUnlocks(result.NewAchievements)
		}
	}
	return nil
}

func runStreak(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		view, err := client.NewClient(cfg.APIEndpoint).GetStreaks(ctx)
		if err != nil {
			return fmt.Errorf("failed to get streaks: %w", err)
		}
		return renderStreaks(&view.Summary, view.Daily)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.engine.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to get streaks: %w", err)
	}
	daily, err := a.store.ListStreaks(ctx, domain.StreakDaily)
	if err != nil {
		return fmt.Errorf("failed to get streaks: %w", err)
	}
	return renderStreaks(summary, daily)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	g := domain.Granularity(granularity)

	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if g == "" {
			g = domain.GranularityDay
		}
		view, err := client.NewClient(cfg.APIEndpoint).History(ctx, client.HistoryQuery{
			Granularity:   g,
			Periods:       periods,
			CalendarWeeks: calendarWeeks,
			Height:        chartHeight,
		})
		if err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		return renderHistory(view.Points, view.Summary, view.Bars)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if g == "" {
		if g, _, err = a.agg.Recommend(ctx); err != nil {
			return fmt.Errorf("failed to pick granularity: %w", err)
		}
	}

	history, err := a.agg.History(ctx, g, periods, aggregator.SeriesOptions{CalendarWeeks: calendarWeeks})
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	values := make([]int64, len(history.Points))
	labels := make([]string, len(history.Points))
	for i, p := range history.Points {
		values[i] = p.Total
		labels[i] = p.Label
	}
	bars, err := aggregator.RenderSeries(values, labels, chartHeight)
	if err != nil {
		return err
	}
	return renderHistory(history.Points, history.Summary, bars)
}

func runAchievements(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	since, err := parseDay(sinceDate, time.Time{})
	if err != nil {
		return err
	}

	var (
		events []*domain.AchievementEvent
		stats  *domain.AchievementStats
	)
	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		c := client.NewClient(cfg.APIEndpoint)
		if events, err = c.GetAchievements(ctx, since); err != nil {
			return fmt.Errorf("failed to get achievements: %w", err)
		}
		if stats, err = c.GetAchievementStats(ctx); err != nil {
			return fmt.Errorf("failed to get achievement stats: %w", err)
		}
	} else {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if events, err = a.store.ListAchievements(ctx, since); err != nil {
			return fmt.Errorf("failed to get achievements: %w", err)
		}
		if stats, err = a.store.AchievementStats(ctx, time.Now()); err != nil {
			return fmt.Errorf("failed to get achievement stats: %w", err)
		}
	}

	return renderAchievements(events, stats)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var (
		momentum *domain.Momentum
		records  *domain.HallOfFame
	)
	if remote {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		c := client.NewClient(cfg.APIEndpoint)
		if momentum, err = c.GetMomentum(ctx); err != nil {
			return fmt.Errorf("failed to get momentum: %w", err)
		}
		if records, err = c.GetHallOfFame(ctx); err != nil {
			return fmt.Errorf("failed to get personal records: %w", err)
		}
	} else {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if momentum, err = a.agg.Momentum(ctx, time.Now()); err != nil {
			return fmt.Errorf("failed to get momentum: %w", err)
		}
		if records, err = a.agg.HallOfFame(ctx); err != nil {
			return fmt.Errorf("failed to get personal records: %w", err)
		}
	}

	return renderStats(momentum, records)
}
