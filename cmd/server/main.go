package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"partyquiz/internal/cache"
	"partyquiz/internal/config"
	"partyquiz/internal/coordinator"
	"partyquiz/internal/engine"
	"partyquiz/internal/event"
	"partyquiz/internal/repository"
	"partyquiz/internal/service"
	"partyquiz/internal/transport/rest"
	"partyquiz/internal/transport/rest/handler"
	"partyquiz/internal/transport/ws"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	checks := map[string]handler.Checker{}

	// --- Session store ---
	var (
		store       cache.DocStore
		leaderboard cache.LeaderboardCache
	)
	switch cfg.StoreBackend {
	case "redis":
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		store = cache.NewRedisStore(rdb, cache.WithTTL(cfg.SessionTTL))
		leaderboard = cache.NewLeaderboardCache(rdb)
	default:
		store = cache.NewMemoryStore()
		logger.Warn("using in-memory session store, sessions do not survive restarts")
	}
	sessions := repository.NewSessionRepo(store)

	// --- Question bank ---
	var questions repository.QuestionRepo
	if cfg.MongoURI != "" {
		client, err := openMongo(ctx, cfg.MongoURI)
		if err != nil {
			return fmt.Errorf("connecting to mongodb: %w", err)
		}
		defer client.Disconnect(context.Background())
		logger.Info("connected to mongodb", "db", cfg.MongoDB)

		questions = repository.NewQuestionRepo(client.Database(cfg.MongoDB))
		checks["mongodb"] = handler.CheckerFunc(questions.Ping)
	} else {
		bank, err := repository.DefaultQuestions()
		if err != nil {
			return fmt.Errorf("loading built-in questions: %w", err)
		}
		questions = repository.NewStaticQuestionRepo(bank)
		logger.Info("MONGO_URI is empty, serving the built-in question bank", "questions", len(bank))
	}

	// --- Events ---
	publisher, err := event.NewEventPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		return fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	defer publisher.Close()

	// --- Game ---
	scoring, err := engine.ParseScoringRule(cfg.ScoringRule)
	if err != nil {
		return err
	}
	eng := engine.New(engine.Config{
		RevealWindow:      cfg.RevealWindow,
		LeaderboardWindow: cfg.LeaderboardWindow,
		TimeLimitUnit:     time.Second,
		Scoring:           scoring,
	})

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.TokenTTL)
	game := service.NewGameService(sessions, questions, eng, service.NewLinker(cfg.PublicBaseURL), logger)
	game.SetDefaultTimeLimit(cfg.DefaultTimeLimit)
	game.SetPublisher(publisher)
	if leaderboard != nil {
		game.SetLeaderboard(leaderboard)
	}

	manager := coordinator.NewManager(game, logger, coordinator.WithIdleTimeout(cfg.SessionTTL))
	hub := ws.NewHub(manager, logger)
	game.SetBroadcaster(hub)
	checks["sessions"] = handler.CheckerFunc(sessions.Ping)

	router := rest.NewRouter(&rest.Container{
		AuthService:    authSvc,
		GameService:    game,
		Tracker:        manager,
		WSHub:          hub,
		HealthChecks:   checks,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "scoring", scoring.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	g.Go(func() error {
		return manager.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func openMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	return client, nil
}
