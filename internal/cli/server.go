package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"quiz-content-service/internal/app"
	"quiz-content-service/internal/config"
	"quiz-content-service/internal/infra/memory"
	"quiz-content-service/internal/infra/postgres"
	redisinfra "quiz-content-service/internal/infra/redis"
	"quiz-content-service/internal/logger"
	"quiz-content-service/internal/metrics"
	transport "quiz-content-service/internal/transport/http"
)

const serviceName = "quiz-content-service"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(serviceName, cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		quizzes     app.QuizStore
		histories   app.HistoryStore
		loader      memory.QuizLoader
		roleModules memory.RoleModuleLoader
		recipients  app.RecipientDirectory = memory.StaticDirectory{}
	)
	if cfg.Postgres.URL != "" {
		db := postgres.OpenDB(cfg.Postgres.URL)
		defer db.Close()
		store := postgres.NewStore(db)
		quizzes, histories, loader = store, store, store

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		directory := postgres.NewDirectory(pool)
		roleModules, recipients = directory, directory
	} else {
		log.Warn("postgres url not configured, using in-memory store")
		store := memory.NewStore()
		quizzes, histories, loader = store, store, store
		if len(cfg.Permissions.Modules) > 0 {
			roleModules = memory.UniformRoleModules(cfg.Permissions.Modules)
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	permissionTTL := config.TTLDuration(cfg.Permissions.TTL, 5*time.Minute)
	attemptTTL := config.TTLDuration(cfg.Grading.AttemptTTL, 30*time.Second)

	var (
		cache      app.QuizCache
		authorizer app.Authorizer = app.AllowAll{}
		attempts   app.AttemptGuard
	)
	hub := transport.NewNotificationHub(log)
	dispatcher := app.FanoutDispatcher{hub}

	if redisClient != nil {
		cache = redisinfra.NewQuizCache(redisClient, loader, quizTTL)
		attempts = redisinfra.NewAttemptGuard(redisClient, attemptTTL)
		if roleModules != nil {
			authorizer = redisinfra.NewPermissionCache(redisClient, roleModules, permissionTTL)
		}
		dispatcher = append(dispatcher, redisinfra.NewNotificationPublisher(redisClient, cfg.Notifications.Channel))
	} else {
		cache = memory.NewQuizCache(loader, quizTTL)
		attempts = memory.NewAttemptGuard()
		if roleModules != nil {
			authorizer = memory.NewPermissionCache(roleModules, permissionTTL)
		}
	}

	notifier := app.NewNotificationTrigger(
		recipients,
		dispatcher,
		config.TTLDuration(cfg.Notifications.Timeout, 10*time.Second),
		log,
		m,
	)
	service := app.NewQuizService(app.Deps{
		Quizzes:                quizzes,
		Histories:              histories,
		Cache:                  cache,
		Authorizer:             authorizer,
		Attempts:               attempts,
		Notifier:               notifier,
		Logger:                 log,
		Metrics:                m,
		AllowPartialSubmission: cfg.Grading.AllowPartialSubmission,
	})

	mux := http.NewServeMux()
	handler := transport.NewHandler(service, log)
	if cfg.Grading.RatePerMinute > 0 {
		limiterCtx, stopLimiter := context.WithCancel(ctx)
		defer stopLimiter()
		handler.WithGradingLimit(transport.NewRateLimiter(limiterCtx, cfg.Grading.RatePerMinute, cfg.Grading.RateBurst))
	}
	handler.Register(mux)
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	notifier.Wait()
	return err
}
