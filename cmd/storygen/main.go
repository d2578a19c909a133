package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/api"
	"github.com/safa0/google-rangerz/internal/config"
	"github.com/safa0/google-rangerz/internal/database"
	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/logger"
	"github.com/safa0/google-rangerz/internal/messaging"
	"github.com/safa0/google-rangerz/internal/metrics"
	"github.com/safa0/google-rangerz/internal/service"
)

type cliFlags struct {
	mode      string
	jobsFile  string
	userID    string
	name      string
	age       int
	skill     string
	interests string
	steps     int
	migrate   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.mode, "mode", "worker", "Mode: worker, once, submit, migrate")
	flag.StringVar(&f.jobsFile, "jobs", "", "JSON file with a list of story jobs (mode=once)")
	flag.StringVar(&f.userID, "user", "local", "User ID for a single story")
	flag.StringVar(&f.name, "name", "", "Learner name")
	flag.IntVar(&f.age, "age", 0, "Learner age")
	flag.StringVar(&f.skill, "skill", "beginner", "Skill level: beginner, intermediate, advanced")
	flag.StringVar(&f.interests, "interests", "", "Comma separated learner interests")
	flag.IntVar(&f.steps, "steps", 0, "Total steps, 0 - STORY_TOTAL_STEPS")
	flag.StringVar(&f.migrate, "migrate", "up", "Migration direction for mode=migrate: up or down")
	flag.Parse()
	return f
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		OutputPath: cfg.Log.OutputPath,
		Service:    cfg.Log.Service,
		Env:        cfg.Env,
		Fields:     map[string]string{"mode": flags.mode},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting story generator", zap.String("mode", flags.mode), zap.String("env", cfg.Env))
	if err := run(ctx, flags, cfg, log); err != nil {
		log.Error("Story generator stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Story generator exited")
}

func run(ctx context.Context, flags cliFlags, cfg *config.Config, log *zap.Logger) error {
	switch flags.mode {
	case "worker":
		return runWorker(ctx, cfg, log)
	case "once":
		return runOnce(ctx, flags, cfg, log)
	case "submit":
		return runSubmit(ctx, flags, cfg, log)
	case "migrate":
		return runMigrate(ctx, flags, cfg, log)
	default:
		return fmt.Errorf("unknown mode '%s'", flags.mode)
	}
}

// app общие зависимости режимов worker и once.
type app struct {
	controller *service.StoryController
	deps       service.ControllerDeps
	metrics    *metrics.Metrics
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, events messaging.EventPublisher, log *zap.Logger) (*app, error) {
	a := &app{metrics: metrics.New(log)}

	text, err := newTextGenerator(cfg, a.metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init text generator: %w", err)
	}
	images, err := newImageGenerator(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init image generator: %w", err)
	}

	stories, pool, err := setupStories(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	cancels, closeRedis, err := setupCancels(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeRedis)

	store, closeStore, err := setupAssets(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	a.deps = service.ControllerDeps{Stories: stories, Cancels: cancels, Events: events, Assets: store}
	a.controller, err = newController(cfg, text, images, a.deps, a.metrics, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// runWorker обрабатывает задания из очереди и обслуживает HTTP API.
func runWorker(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var (
		events   messaging.EventPublisher = messaging.NoopPublisher{}
		tasks    messaging.TaskPublisher
		conn     *amqp.Connection
		consumer *messaging.TaskConsumer
	)
	if cfg.RabbitMQ.URL != "" {
		var err error
		conn, err = connectRabbitMQ(cfg.RabbitMQ.URL, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("failed to open channel: %w", err)
		}
		defer ch.Close()
		publisher, err := messaging.NewRabbitMQPublisher(ch, cfg.RabbitMQ.EventQueue, cfg.RabbitMQ.TaskQueue, log)
		if err != nil {
			return err
		}
		events, tasks = publisher, publisher
	} else {
		log.Warn("RABBITMQ_URL not set, worker serves HTTP API only")
	}

	a, err := buildApp(ctx, cfg, events, log)
	if err != nil {
		return err
	}
	defer a.close()

	if conn != nil {
		handler := service.NewStoryTaskHandler(a.controller, log)
		prefetch := max(cfg.RabbitMQ.Prefetch, cfg.Worker.Concurrency)
		consumer = messaging.NewTaskConsumer(conn, cfg.RabbitMQ.TaskQueue, prefetch, handler, log)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Deps{
		Stories:           a.deps.Stories,
		Cancels:           a.controller,
		Tasks:             tasks,
		Metrics:           a.metrics,
		DefaultTotalSteps: cfg.Generation.TotalSteps,
		AllowedOrigins:    cfg.HTTP.AllowedOrigins,
		Debug:             cfg.Env == "development",
	}, log)
	srv := api.NewServer(cfg.HTTP.Port, router, log)
	errCh := make(chan error, 1)
	srv.Start(errCh)

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err = <-errCh:
	}

	if consumer != nil {
		consumer.Stop(30 * time.Second)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(shutdownErr))
	}
	return err
}

// runOnce генерирует истории из файла заданий или флагов и завершается.
func runOnce(ctx context.Context, flags cliFlags, cfg *config.Config, log *zap.Logger) error {
	jobs, err := loadJobs(flags)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, messaging.NoopPublisher{}, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Metrics.PushgatewayURL != "" {
		if err := a.metrics.InitPusher(cfg.Metrics.PushgatewayURL); err != nil {
			log.Warn("Failed to init metrics pusher", zap.Error(err))
		} else {
			done := make(chan struct{})
			a.metrics.StartPusher(cfg.Metrics.PushInterval, done)
			defer func() {
				close(done)
				if err := a.metrics.Push(); err != nil {
					log.Warn("Failed to push final metrics", zap.Error(err))
				}
				a.metrics.Cleanup()
			}()
		}
	}

	outcomes := service.NewBatchRunner(a.controller, cfg.Worker.Concurrency, log).RunAll(ctx, jobs)
	failed := 0
	for i, out := range outcomes {
		fields := []zap.Field{zap.Int("job", i), zap.Int64("story_id", out.StoryID), zap.String("status", string(out.Status)), zap.Int("chapters", out.ChaptersPersisted)}
		if out.Err != nil {
			failed++
			fields = append(fields, zap.Error(out.Err))
		}
		log.Info("Story outcome", fields...)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d stories failed", failed, len(outcomes))
	}
	return nil
}

// runSubmit публикует задание в очередь.
func runSubmit(ctx context.Context, flags cliFlags, cfg *config.Config, log *zap.Logger) error {
	if cfg.RabbitMQ.URL == "" {
		return errors.New("RABBITMQ_URL is required for mode=submit")
	}
	jobs, err := loadJobs(flags)
	if err != nil {
		return err
	}

	conn, err := connectRabbitMQ(cfg.RabbitMQ.URL, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()
	publisher, err := messaging.NewRabbitMQPublisher(ch, cfg.RabbitMQ.EventQueue, cfg.RabbitMQ.TaskQueue, log)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		task := messaging.StoryTaskPayload{TaskID: uuid.NewString(), UserID: job.UserID, Profile: job.Profile, TotalSteps: job.TotalSteps}
		if err := publisher.PublishTask(ctx, task); err != nil {
			return err
		}
		log.Info("Story task submitted", zap.String("task_id", task.TaskID), zap.String("user_id", task.UserID))
	}
	return nil
}

func runMigrate(ctx context.Context, flags cliFlags, cfg *config.Config, log *zap.Logger) error {
	if !cfg.UsePostgres() {
		return errors.New("DB_HOST is required for mode=migrate")
	}
	pool, err := database.NewPool(ctx, database.PoolConfig{
		DSN:         cfg.GetDSN(),
		MaxConns:    2,
		IdleTimeout: cfg.DB.IdleTimeout,
		MaxRetries:  3,
		RetryDelay:  2 * time.Second,
	}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator := database.NewMigrator(pool, log)
	switch flags.migrate {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	default:
		return fmt.Errorf("unknown migration direction '%s'", flags.migrate)
	}
	if err != nil {
		return err
	}
	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	log.Info("Migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// loadJobs задания из -jobs или одно задание из флагов профиля.
func loadJobs(flags cliFlags) ([]service.StoryJob, error) {
	if flags.jobsFile != "" {
		data, err := os.ReadFile(flags.jobsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read jobs file: %w", err)
		}
		var jobs []service.StoryJob
		if err := json.Unmarshal(data, &jobs); err != nil {
			return nil, fmt.Errorf("failed to parse jobs file %s: %w", flags.jobsFile, err)
		}
		if len(jobs) == 0 {
			return nil, errors.New("jobs file is empty")
		}
		for i := range jobs {
			profile, err := jobs[i].Profile.Normalize()
			if err != nil {
				return nil, fmt.Errorf("job %d: %w", i, err)
			}
			jobs[i].Profile = profile
		}
		return jobs, nil
	}

	var interests []string
	for _, s := range strings.Split(flags.interests, ",") {
		if s = strings.TrimSpace(s); s != "" {
			interests = append(interests, s)
		}
	}
	skill, err := domain.ParseSkillLevel(flags.skill)
	if err != nil {
		return nil, err
	}
	profile := domain.LearnerProfile{
		Name:       flags.name,
		Age:        flags.age,
		SkillLevel: skill,
		Interests:  interests,
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return []service.StoryJob{{UserID: flags.userID, Profile: profile, TotalSteps: flags.steps}}, nil
}
