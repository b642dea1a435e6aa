package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crusty-reader/internal/config"
	"crusty-reader/internal/events"
	"crusty-reader/internal/extract"
	"crusty-reader/internal/fetch"
	"crusty-reader/internal/ingest"
	"crusty-reader/internal/logging"
	"crusty-reader/internal/model"
	"crusty-reader/internal/pagination"
	"crusty-reader/internal/server"
	"crusty-reader/internal/store"
	"crusty-reader/internal/urlnorm"
	"crusty-reader/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	cfg    *config.Config

	configPath string
	redisAddr  string
	badgerPath string
	backend    string
	addr       string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "crusty",
	Short: "crusty - A self-hosted read-it-later tool",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd)

		logger, err = logging.New(cfg.LogLevel, cfg.Dev)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Store.RedisAddr = redisAddr
	}
	if flags.Changed("badger") {
		cfg.Store.BadgerPath = badgerPath
	}
	if flags.Changed("backend") {
		cfg.Store.Backend = backend
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

// openStore opens the configured article store. clientMode skips Badger so
// a CLI command can run next to a server holding the Badger lock.
func openStore(ctx context.Context, clientMode bool) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		st, err := store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		path := cfg.Store.BadgerPath
		if clientMode {
			path = ""
		}
		return store.NewHybridStore(cfg.Store.RedisAddr, path)
	}
}

// openJobs returns the ingestion queue, sharing the hybrid store's Redis
// connection when there is one.
func openJobs(st store.Store) (*store.JobQueue, func(), error) {
	if h, ok := st.(*store.HybridStore); ok {
		return h.Jobs(), func() {}, nil
	}
	q, err := store.NewJobQueue(cfg.Store.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return q, q.Close, nil
}

func newPublisher() events.Publisher {
	if !cfg.Events.Enabled {
		return events.Nop{}
	}
	pub, err := events.NewRabbitMQ(events.Config{
		URL:        cfg.Events.URL,
		Exchange:   cfg.Events.Exchange,
		RoutingKey: cfg.Events.RoutingKey,
		QueueName:  cfg.Events.QueueName,
	}, logger)
	if err != nil {
		logger.Warn("Events disabled: failed to connect to rabbitmq", zap.Error(err))
		return events.Nop{}
	}
	return pub
}

func newPipeline(st store.Store, pub events.Publisher) *ingest.Pipeline {
	fetcher := fetch.New(fetch.Config{
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
		Accept:         cfg.Fetch.Accept,
		AcceptLanguage: cfg.Fetch.AcceptLanguage,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
	}, nil, logger)
	return ingest.NewPipeline(st, fetcher, extract.NewSelector(logger), pub, logger)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the workers and web server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Setup Signal Handling (Ctrl+C)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// Setup Manual 'q' input handling
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if scanner.Text() == "q" {
					fmt.Println(" 'q' pressed. Stopping...")
					cancel()
					return
				}
			}
		}()

		// Handle shutdown signals
		go func() {
			select {
			case <-sigChan:
				logger.Info("Shutting down...")
				cancel()
			case <-ctx.Done():
			}
		}()

		// Initialize Store (FULL MODE)
		st, err := openStore(ctx, false)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		jobs, closeJobs, err := openJobs(st)
		if err != nil {
			logger.Fatal("Failed to init job queue", zap.Error(err))
		}
		defer closeJobs()

		pub := newPublisher()
		defer pub.Close()

		pipeline := newPipeline(st, pub)

		// Start Workers
		var wg sync.WaitGroup
		for i := 0; i < cfg.Server.Workers; i++ {
			w := worker.NewWorker(jobs, pipeline, logger.With(zap.Int("worker", i)))
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Start(ctx)
			}()
		}

		srv, err := server.NewServer(server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			PageSize:     cfg.Server.PageSize,
		}, st, pipeline, jobs, logger)
		if err != nil {
			logger.Fatal("Failed to init web server", zap.Error(err))
		}
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Web server failed", zap.Error(err))
				cancel()
			}
		}()

		logger.Info("Server running.", zap.String("backend", cfg.Store.Backend))
		fmt.Println("Press 'q' + Enter or Ctrl+C to stop.")

		// Block until shutdown
		<-ctx.Done()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Web server shutdown failed", zap.Error(err))
		}
		wg.Wait()
		logger.Info("Goodbye!")
	},
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Queue a URL for the server's workers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Queue only needs Redis; the server owns the Badger lock.
		jobs, err := store.NewJobQueue(cfg.Store.RedisAddr)
		if err != nil {
			logger.Fatal("Failed to init job queue", zap.Error(err))
		}
		defer jobs.Close()

		job, err := queueURL(context.Background(), jobs, args[0])
		if err != nil {
			return err
		}

		logger.Info("URL queued",
			zap.String("job_id", job.ID.String()),
			zap.String("url", job.URL))
		return nil
	},
}

type enqueuer interface {
	Enqueue(ctx context.Context, job *model.Job) error
}

// queueURL normalizes rawURL and queues it, so bad input is rejected here
// rather than by a worker later on.
func queueURL(ctx context.Context, q enqueuer, rawURL string) (*model.Job, error) {
	normalized, err := urlnorm.Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	job := model.NewJob(normalized)
	if err := q.Enqueue(ctx, &job); err != nil {
		return nil, fmt.Errorf("failed to queue url: %w", err)
	}
	return &job, nil
}

var saveCmd = &cobra.Command{
	Use:   "save [url]",
	Short: "Fetch and save a URL immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close()

		pub := newPublisher()
		defer pub.Close()

		article, isNew, err := newPipeline(st, pub).Save(ctx, args[0])
		if err != nil {
			return err
		}
		verb := "Updated"
		if isNew {
			verb = "Saved"
		}
		fmt.Printf("%s #%d %q (%d min read)\n", verb, article.ID, article.Title, article.ReadingTime)
		return nil
	},
}

var (
	listCursor string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:       "list [all|unread|favorites]",
	Short:     "Print a page of saved articles",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(pagination.All), string(pagination.Unread), string(pagination.Favorites)},
	RunE: func(cmd *cobra.Command, args []string) error {
		pred := pagination.Unread
		if len(args) == 1 {
			p, err := pagination.ParsePredicate(args[0])
			if err != nil {
				return err
			}
			pred = p
		}

		ctx := context.Background()
		st, err := openStore(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close()

		page, err := pagination.NewPaginator(st, logger).Page(ctx, pred, listCursor, listLimit)
		if err != nil {
			return err
		}
		for _, a := range page.Items {
			mark := " "
			if a.IsFavorite {
				mark = "*"
			}
			fmt.Printf("%s %5d  %-60.60s  %s\n", mark, a.ID, a.Title, a.URL)
		}
		if page.HasMore {
			fmt.Printf("\nnext: crusty list %s --cursor %s\n", pred, page.NextCursor)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", config.BackendHybrid, "Article store: hybrid or postgres")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	listCmd.Flags().StringVar(&listCursor, "cursor", "", "Cursor returned by a previous page")
	listCmd.Flags().IntVar(&listLimit, "limit", pagination.DefaultLimit, "Page size (1-100)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
