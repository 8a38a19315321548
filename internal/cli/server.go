package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"kidlearn-progress-service/internal/app"
	"kidlearn-progress-service/internal/config"
	"kidlearn-progress-service/internal/domain"
	"kidlearn-progress-service/internal/infra/memory"
	pginfra "kidlearn-progress-service/internal/infra/postgres"
	redisinfra "kidlearn-progress-service/internal/infra/redis"
	transport "kidlearn-progress-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progress engine server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// catalog bundles the three read-only content views the engine consumes.
type catalog interface {
	app.QuizCatalog
	app.QuestCatalog
	app.AchievementCatalog
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
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)

	var (
		users    app.UserStore
		attempts app.AttemptStore
		progress app.ProgressStore
		quests   app.QuestStore
		content  catalog
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		users = pginfra.NewUserStore(db)
		attempts = pginfra.NewAttemptStore(db)
		progress = pginfra.NewProgressStore(db)
		quests = pginfra.NewQuestStore(db)

		loader := pginfra.NewCatalogLoader(pool)
		if redisClient != nil {
			content = redisinfra.NewCatalogCache(redisClient, loader, catalogTTL)
		} else {
			content = loader
		}
	} else {
		userStore := memory.NewUserStore()
		seedUsers(ctx, userStore)
		users = userStore
		attempts = memory.NewAttemptStore()
		progress = memory.NewProgressStore()
		quests = memory.NewQuestStore()

		static := memory.NewStaticCatalog(sampleQuizzes(), sampleQuests(), sampleAchievements())
		if redisClient != nil {
			content = redisinfra.NewCatalogCache(redisClient, static, catalogTTL)
		} else {
			content = static
		}
	}

	hub := app.NewHub()
	ledger := app.NewLedger(users)
	rules := app.NewRuleEngine(ledger, progress, quests, content)
	attemptService := app.NewAttemptService(attempts, content, rules, hub)
	progressService := app.NewProgressService(progress, rules, hub)
	questService := app.NewQuestService(quests, content, content, rules, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewHandler(attemptService, progressService, questService).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(hub).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting progress engine on :%s", finalPort)
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

// seedUsers registers demo learners; real registration lives in the account
// service.
func seedUsers(ctx context.Context, store *memory.UserStore) {
	for _, id := range []string{"student-1", "student-2"} {
		if err := store.Create(ctx, domain.User{ID: id, Level: 1}); err != nil {
			log.Printf("seed user %s: %v", id, err)
		}
	}
}

// sampleQuizzes provides a minimal catalog; swap in the Postgres loader in
// production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-math-1": {
			ID:                  "quiz-math-1",
			XPReward:            20,
			PassingScorePercent: 60,
			Questions: []domain.Question{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectOption: 1, Points: 10},
				{Prompt: "What is 3 x 3?", Options: []string{"6", "9", "12"}, CorrectOption: 1, Points: 10},
				{Prompt: "What is 10 - 7?", Options: []string{"3", "4", "7"}, CorrectOption: 0, Points: 10},
			},
		},
	}
}

func sampleQuests() map[string]domain.Quest {
	return map[string]domain.Quest{
		"quest-shapes": {
			ID: "quest-shapes",
			Questions: []domain.QuestQuestion{
				{Prompt: "How many sides does a triangle have?", Points: 5, CorrectAnswer: domain.NumberAnswer(3)},
				{Prompt: "Name the shape with four equal sides.", Points: 5, CorrectAnswer: domain.StringAnswer("square")},
				{Prompt: "A circle has corners.", Points: 5, CorrectAnswer: domain.BoolAnswer(false)},
			},
		},
	}
}

func sampleAchievements() []domain.Achievement {
	return []domain.Achievement{
		{ID: "ach-first-steps", Name: "First Steps", Type: domain.AchievementActivityCompletion, Threshold: 1, XPReward: 10, Active: true},
		{ID: "ach-math-novice", Name: "Math Novice", Type: domain.AchievementActivityCompletion, Threshold: 5, XPReward: 50, Active: true},
		{ID: "ach-zone-explorer", Name: "Zone Explorer", Type: domain.AchievementZoneCompletion, Threshold: 2, XPReward: 75, Active: true},
		{ID: "ach-sharp-shooter", Name: "Sharp Shooter", Type: domain.AchievementHighScore, Threshold: 3, XPReward: 60, Active: true},
		{ID: "ach-quest-hero", Name: "Quest Hero", Type: domain.AchievementQuestCompletion, Threshold: 1, XPReward: 40, Active: true},
		{ID: "ach-marathon", Name: "Marathon Learner", Type: domain.AchievementTimeSpent, Threshold: 3600, XPReward: 80, Active: true},
	}
}
