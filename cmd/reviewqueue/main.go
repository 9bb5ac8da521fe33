// reviewqueue is the operator CLI for the customer review queue core,
// implementing the commands and exit-code contract of spec.md §6.
// Grounded on the teacher's cmd/sanity-check/main.go flag-parsing/JSON-
// output shape and cmd/api/main.go's subcommand dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/analyzer"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/config"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/maintenance"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/metrics"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/pipeline"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/queue"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/review"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/storage"
	"github.com/javedharis/assignment-ai-powered-customer-review-system/internal/worker"
)

// clearDatabaseToken is the hard-coded confirmation string spec.md §6
// requires for clear-database; any other value aborts.
const clearDatabaseToken = "YES_DELETE_IT"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: reviewqueue <command> [args...]")
		fmt.Fprintln(os.Stderr, "commands: serve, enqueue-all, queue-status, clear-queue, enqueue-single, clear-database")
		return 1
	}

	cfg := config.Load()
	log := logrus.New()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cfg, log, rest)
	case "enqueue-all":
		return cmdEnqueueAll(cfg, log, rest)
	case "queue-status":
		return cmdQueueStatus(cfg, log)
	case "clear-queue":
		return cmdClearQueue(cfg, log)
	case "enqueue-single":
		return cmdEnqueueSingle(cfg, log, rest)
	case "clear-database":
		return cmdClearDatabase(cfg, log, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		return 1
	}
}

func buildQueue(cfg *config.Config) *queue.ReliableQueue {
	store := queue.NewRedisStore(queue.RedisStoreConfig{
		Host: cfg.Store.Host, Port: cfg.Store.Port, DB: cfg.Store.DB,
		Password: cfg.Store.Password, PoolSize: cfg.Store.PoolSize, Timeout: cfg.Store.Timeout,
	})
	names := queue.Names{
		Main: cfg.Queue.MainQueue, Processing: cfg.Queue.ProcessingQueue,
		Retry: cfg.Queue.RetryQueue(), Failed: cfg.Queue.FailedQueue,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout, MaxRetries: cfg.Queue.MaxRetries,
		BlockingTimeout: cfg.Queue.BlockingTimeout,
	}
	return queue.New(store, names, nil)
}

func cmdServe(cfg *config.Config, log *logrus.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var noDB bool
	fs.BoolVar(&noDB, "no-db", false, "use an in-memory record store instead of Postgres (tests/local dev only)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := buildQueue(cfg)

	var repo storage.ReviewRepository
	if noDB {
		log.Warn("--no-db set: using in-memory record store, nothing persists across restarts")
		repo = storage.NewMemoryRepository()
	} else {
		pgRepo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
			Password: cfg.Database.Password, Name: cfg.Database.Name, SSLMode: cfg.Database.SSLMode,
			MaxConnections: cfg.Database.MaxConnections, ConnTimeout: cfg.Database.ConnTimeout,
		}, log)
		if err != nil {
			log.WithError(err).Error("failed to connect to database")
			return 1
		}
		repo = pgRepo
	}
	defer repo.Close()

	an := analyzer.NewHTTPAnalyzer(cfg.Analyzer.BaseURL, cfg.Analyzer.Timeout)
	p := pipeline.New(repo, an)
	m := metrics.GetGlobal()

	workerCfg := worker.Config{
		InnerRetries: cfg.Worker.InnerRetries, InnerDelay: cfg.Worker.InnerDelay,
		PollInterval: cfg.Worker.PollInterval,
	}
	workers := []*worker.Worker{
		worker.New("", q, p, workerCfg, log),
		worker.New("", q, p, workerCfg, log),
	}

	loop := maintenance.New(q, maintenance.Config{
		Interval:         cfg.Maintenance.Interval,
		SnapshotInterval: cfg.Maintenance.SnapshotInterval,
		Thresholds: maintenance.Thresholds{
			MainWarn: cfg.Maintenance.MainWarnThreshold, VisWarn: cfg.Maintenance.VisWarnThreshold,
			FailedWarn: cfg.Maintenance.FailedWarnThresh, RetryWarn: cfg.Maintenance.RetryWarnThresh,
		},
	}, m, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.RunN(ctx, workers)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := q.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "store unavailable: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithField("addr", addr).Info("metrics/health server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()

	return 0
}

func cmdEnqueueAll(cfg *config.Config, log *logrus.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: reviewqueue enqueue-all REVIEWS_CSV")
		return 1
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", args[0], err)
		return 1
	}
	defer f.Close()

	reviews, err := review.ReadCSV(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", args[0], err)
		return 1
	}

	q := buildQueue(cfg)
	ctx := context.Background()
	for _, r := range reviews {
		if _, err := q.Enqueue(ctx, r); err != nil {
			fmt.Fprintf(os.Stderr, "enqueue %s: %v\n", r.ReviewID, err)
			return 1
		}
	}

	fmt.Printf("enqueued %d reviews\n", len(reviews))
	return 0
}

func cmdEnqueueSingle(cfg *config.Config, log *logrus.Logger, args []string) int {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: reviewqueue enqueue-single ID DATE RATING TEXT")
		return 1
	}

	q := buildQueue(cfg)
	r := review.Review{ReviewID: args[0], Date: args[1], Rating: args[2], Text: args[3]}
	if _, err := q.Enqueue(context.Background(), r); err != nil {
		fmt.Fprintf(os.Stderr, "enqueue %s: %v\n", r.ReviewID, err)
		return 1
	}

	fmt.Printf("enqueued %s\n", r.ReviewID)
	return 0
}

func cmdQueueStatus(cfg *config.Config, log *logrus.Logger) int {
	q := buildQueue(cfg)
	stats, err := q.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return 1
	}

	fmt.Printf("main:                  %d\n", stats.Main)
	fmt.Printf("processing:            %d\n", stats.Processing)
	fmt.Printf("retry:                 %d\n", stats.Retry)
	fmt.Printf("failed:                %d\n", stats.Failed)
	fmt.Printf("live_visibility_keys:  %d\n", stats.LiveVisibilityKeys)
	return 0
}

func cmdClearQueue(cfg *config.Config, log *logrus.Logger) int {
	q := buildQueue(cfg)
	if err := q.Clear(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "clear queue: %v\n", err)
		return 1
	}
	fmt.Println("queue cleared")
	return 0
}

func cmdClearDatabase(cfg *config.Config, log *logrus.Logger, args []string) int {
	fs := flag.NewFlagSet("clear-database", flag.ContinueOnError)
	var token string
	fs.StringVar(&token, "password", "", "confirmation token, must equal "+clearDatabaseToken)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if token != clearDatabaseToken {
		fmt.Fprintln(os.Stderr, "clear-database: confirmation token mismatch, aborting")
		return 1
	}

	ctx := context.Background()
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Name: cfg.Database.Name, SSLMode: cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections, ConnTimeout: cfg.Database.ConnTimeout,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to database: %v\n", err)
		return 1
	}
	defer repo.Close()

	if err := repo.Clear(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clear database: %v\n", err)
		return 1
	}

	fmt.Println("database cleared")
	return 0
}
