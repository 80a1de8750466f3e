package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	appconfig "github.com/nelo-ai/nelo-bot/internal/config"
	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/http/handlers"
	"github.com/nelo-ai/nelo-bot/internal/http/router"
	"github.com/nelo-ai/nelo-bot/internal/jobs"
	"github.com/nelo-ai/nelo-bot/internal/matching"
	"github.com/nelo-ai/nelo-bot/internal/messaging"
	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
	"github.com/nelo-ai/nelo-bot/internal/reminders"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// consoleMessenger logs outbound messages instead of sending them. Used
// when Twilio credentials are absent (local development).
type consoleMessenger struct {
	logger *logging.Logger
}

func (c *consoleMessenger) SendMessage(_ context.Context, to, body string) (string, error) {
	c.logger.Info("outbound message (console)", "to", to, "body", body)
	return "console", nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting nelo-bot API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	m := metrics.New()

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		userRepo  users.Repository
		apptRepo  appointments.Repository
		logRepo   chatlog.Repository
		suggStore matching.SuggestionStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		userRepo = users.NewPostgresRepository(pool)
		apptRepo = appointments.NewPostgresRepository(pool)
		logRepo = chatlog.NewPostgresRepository(pool)
		suggStore = matching.NewPostgresSuggestionStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		userRepo = users.NewInMemoryRepository()
		apptRepo = appointments.NewInMemoryRepository()
		logRepo = chatlog.NewInMemoryRepository()
		suggStore = matching.NewInMemorySuggestionStore()
	}

	// Outbound rate limiting: Redis-backed when configured so multiple
	// instances share the window.
	var limiter messaging.Limiter
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		limiter = messaging.NewRedisLimiter(redis.NewClient(opts), cfg.SendWindowLimit, cfg.SendWindow)
	} else {
		limiter = messaging.NewWindowLimiter(cfg.SendWindowLimit, cfg.SendWindow)
	}

	var messenger messaging.Messenger
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioWhatsAppFrom != "" {
		messenger = messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)
	} else {
		logger.Warn("Twilio credentials not set, logging outbound messages to console")
		messenger = &consoleMessenger{logger: logger.Component("console_messenger")}
	}
	dispatcher := messaging.NewDispatcher(
		messaging.NewRateLimitedMessenger(messenger, limiter, m, logger),
		cfg.MessageDelay, cfg.FollowUpDelay, logger)
	defer dispatcher.Close()

	var llm conversation.LLMClient
	if cfg.GeminiAPIKey != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, cfg.GeminiTimeout)
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		llm = client
	} else {
		logger.Warn("GEMINI_API_KEY not set, AI features degrade to keyword fallbacks")
	}

	google := calendar.NewGoogleClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, logger)
	var cal calendar.Client
	if google != nil {
		cal = google
	} else {
		logger.Warn("Google credentials not set, calendar booking disabled")
	}

	planner := matching.NewSlotPlanner(cal, matching.DefaultSlotHour, cfg.SessionMinutes, logger)
	scheduler := matching.NewScheduler(matching.SchedulerOptions{
		Engine:         matching.NewEngine(llm, userRepo, logger),
		Users:          userRepo,
		Appts:          apptRepo,
		Suggestions:    suggStore,
		Planner:        planner,
		Calendar:       cal,
		Notifier:       dispatcher,
		Metrics:        m,
		Logger:         logger,
		SessionCost:    cfg.SessionCost,
		SessionMinutes: cfg.SessionMinutes,
	})

	convo := conversation.NewService(conversation.Options{
		Users:      userRepo,
		Appts:      apptRepo,
		Log:        logRepo,
		LLM:        llm,
		Quota:      conversation.NewQuota(logRepo, cfg.DailyAILimit, logger),
		Dispatcher: dispatcher,
		Matchmaker: scheduler,
		BaseURL:    cfg.PublicBaseURL,
		Metrics:    m,
		Logger:     logger,
	})

	reminderSvc := reminders.NewService(reminders.Options{
		Appts:    apptRepo,
		Users:    userRepo,
		Log:      logRepo,
		LLM:      llm,
		Notifier: dispatcher,
		Logger:   logger,
	})

	runner := jobs.NewRunner(m, logger,
		jobs.Job{Name: "matching", Interval: cfg.MatchInterval, Run: scheduler.RunPass},
		jobs.Job{Name: "reminders", Interval: cfg.ReminderInterval, Run: reminderSvc.RunReminderPass},
		jobs.Job{Name: "auto_cancel", Interval: cfg.AutoCancelInterval, Run: reminderSvc.RunAutoCancelPass},
		jobs.Job{Name: "registration_nudge", Interval: cfg.RegistrationInterval, Run: reminderSvc.RunRegistrationNudgePass},
	)
	runner.Start(ctx)

	r := router.New(&router.Config{
		Logger:          logger,
		Webhook:         handlers.NewWebhookHandler(convo, cfg.TwilioAuthToken, logger),
		Calendar:        handlers.NewCalendarHandler(google, convo, logger),
		Admin:           handlers.NewAdminHandler(userRepo, apptRepo, logRepo, scheduler, logger),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  m.Handler(),
		RateLimitPerSec: 10,
		RateLimitBurst:  30,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopJobs()
	runner.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
