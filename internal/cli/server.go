package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashquiz-service/internal/app"
	"flashquiz-service/internal/config"
	"flashquiz-service/internal/content"
	"flashquiz-service/internal/domain"
	"flashquiz-service/internal/game"
	"flashquiz-service/internal/infra/memory"
	pgloader "flashquiz-service/internal/infra/postgres"
	redisinfra "flashquiz-service/internal/infra/redis"
	transport "flashquiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session host",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleBanks())
	if pool != nil {
		loader = pgloader.NewBankLoader(pool)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var banks content.BankSource
	if redisClient != nil {
		banks = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
	}

	gameCfg := gameConfig(cfg)
	var games app.GameRepository
	if redisClient != nil {
		games = redisinfra.NewGameRegistry(ctx, redisClient, redisTTL, gameCfg)
	} else {
		games = memory.NewGameRegistry(ctx, gameCfg)
	}

	service := app.NewHostService(games, content.NewBankGenerator(banks))
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/games", wsHandler.CreateGame)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting flashquiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func gameConfig(cfg config.Config) game.Config {
	out := game.DefaultConfig()
	if cfg.Game.PreviewSeconds > 0 {
		out.PreviewSeconds = cfg.Game.PreviewSeconds
	}
	if cfg.Game.DefaultTimeLimit > 0 {
		out.DefaultTimeLimit = cfg.Game.DefaultTimeLimit
	}
	if cfg.Game.PodiumSize > 0 {
		out.PodiumSize = cfg.Game.PodiumSize
	}
	return out
}

// sampleBanks provides a minimal question bank; swap the loader for the
// Postgres-backed one in production.
func sampleBanks() map[string]domain.QuestionBank {
	return map[string]domain.QuestionBank{
		"general": {
			Topic: "general",
			Questions: []domain.Question{
				{
					Text:      "What is the capital of Spain?",
					TimeLimit: 5,
					Answers: []domain.Answer{
						{Text: "Madrid", Correct: true, Color: domain.ColorRed},
						{Text: "Barcelona", Correct: false, Color: domain.ColorBlue},
						{Text: "Sevilla", Correct: false, Color: domain.ColorYellow},
						{Text: "Valencia", Correct: false, Color: domain.ColorGreen},
					},
				},
				{
					Text:      "Which planet is known as the red planet?",
					TimeLimit: 5,
					Answers: []domain.Answer{
						{Text: "Venus", Correct: false, Color: domain.ColorRed},
						{Text: "Mars", Correct: true, Color: domain.ColorBlue},
						{Text: "Jupiter", Correct: false, Color: domain.ColorYellow},
						{Text: "Saturn", Correct: false, Color: domain.ColorGreen},
					},
				},
			},
		},
	}
}
