package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"auto_linkedin_poster/config"
	"auto_linkedin_poster/logging"
	"auto_linkedin_poster/model"
	"auto_linkedin_poster/server"
)

var (
	configPath string
	listenAddr string
	topicIDs   string
	logLimit   int
	logComp    string
)

var rootCmd = &cobra.Command{
	Use:           "curator",
	Short:         "Trending Android topics to LinkedIn posts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the dashboard API",
	RunE:  runServe,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Ingest from every configured source and re-rank once",
	RunE:  runFetch,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a queued post from the given topic ids",
	Example: `  curator generate --topics 12,15
  curator generate            # top ranked cluster`,
	RunE: runGenerate,
}

var publishCmd = &cobra.Command{
	Use:   "publish <post-id>",
	Short: "Publish a queued, edited or failed post to LinkedIn",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print settings and integration status",
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the newest system journal entries",
	RunE:  runLogs,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to config.json")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "http listen address (overrides config.server_addr)")
	generateCmd.Flags().StringVar(&topicIDs, "topics", "", "comma separated topic ids; empty picks the top cluster")
	logsCmd.Flags().IntVar(&logLimit, "limit", 100, "number of entries")
	logsCmd.Flags().StringVar(&logComp, "component", "", "filter by component")

	rootCmd.AddCommand(serveCmd, fetchCmd, generateCmd, publishCmd, statusCmd, logsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel)
	return newApp(cfg, logger)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.ServerAddr
	if listenAddr != "" {
		addr = listenAddr
	}
	srv := server.New(server.Deps{
		Store:     a.store,
		Settings:  a.settings,
		Generator: a.pipeline,
		Publisher: a.publisher,
		Scheduler: a.scheduler,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}, server.Options{
		Addr:          addr,
		CORSOrigins:   a.cfg.CORSOrigins,
		MaxPostLength: a.cfg.Post.MaxLength,
		Journal:       a.journal,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.catalog.Watch(gctx); err != nil {
			a.logger.WithError(err).Warn("sources catalog watch stopped")
		}
		return nil
	})
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

func runFetch(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ingestor.Run(cmd.Context())
	if err != nil {
		a.logger.WithError(err).Warn("ingestion failed")
	}
	ranked, err := a.ranker.Rank(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"fetched":  res.Fetched,
		"inserted": res.Inserted,
		"failed":   res.Failed,
		"ranked":   len(ranked.Topics),
		"clusters": len(ranked.Clusters),
	})
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := parseIDs(topicIDs)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		top, err := a.ranker.TopCluster(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range top {
			ids = append(ids, t.ID)
		}
	}
	post, err := a.pipeline.Generate(cmd.Context(), ids)
	if err != nil {
		return err
	}
	return printJSON(post)
}

func runPublish(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid post id %q", args[0])
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	post, err := a.publisher.Publish(cmd.Context(), id, model.TriggerManual)
	if err != nil {
		return err
	}
	if post.Status == model.StatusFailed {
		return fmt.Errorf("publish failed: %s", post.ErrorMessage)
	}
	return printJSON(post)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	return printJSON(map[string]any{
		"settings": a.settings.Get(),
		"status":   a.settings.Status(),
	})
}

func runLogs(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()
	logs, err := a.store.ListLogs(logLimit, logComp)
	if err != nil {
		return err
	}
	return printJSON(logs)
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid topic id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
