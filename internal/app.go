// Package internal contains core application wiring.
package internal

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2"

	"tagstats/internal/config"
	"tagstats/internal/containers"
	"tagstats/internal/goals"
	httpapi "tagstats/internal/http"
	"tagstats/internal/jobs"
	"tagstats/internal/logging"
	"tagstats/internal/pipeline"
	"tagstats/internal/query"
	"tagstats/internal/reports"
	"tagstats/internal/storage"
)

// Application wires the report engine together: AWS clients, the stores, the
// query executor, the HTTP API and the background jobs.
type Application struct {
	Config       *config.Config
	Logger       *slog.Logger
	Fiber        *fiber.App
	Scheduler    *jobs.Scheduler
	Orchestrator *pipeline.Orchestrator
	Evaluator    *goals.Evaluator
	Containers   containers.Store
	Executor     *query.Executor
	GoalJob      *jobs.GoalJob
	UsageJob     *jobs.UsageJob
}

// NewApp creates a fully wired application instance.
func NewApp(ctx context.Context) (*Application, error) {
	cfg := config.GetConfig()
	logger := logging.New(cfg)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	store := storage.NewS3Store(s3Client, cfg.StatsBucket)
	usageRecorder := storage.NewUsageRecorder(store, cfg.UsagePrefix)

	athenaSvc := query.NewAthenaService(athena.NewFromConfig(awsCfg), s3Client,
		cfg.AthenaDatabase, cfg.AthenaResultBucket, cfg.AthenaResultPrefix)
	policy := query.Policy{
		MaxAttempts: cfg.PollMaxAttempts,
		BaseDelay:   cfg.PollBaseDelay(),
		MaxDelay:    cfg.PollMaxDelay(),
	}
	executor := query.NewExecutor(athenaSvc, policy, usageRecorder, logger)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	containerStore := containers.NewDynamoStore(dynamoClient, cfg.ContainerTable)
	usageTable := storage.NewUsageTable(dynamoClient, cfg.UsageTable)

	eventTable := cfg.AthenaDatabase + "." + cfg.AthenaTable
	writer := reports.NewWriter(store, cfg.StatsPrefix)
	orchestrator := pipeline.New(executor, query.Builder{Table: eventTable}, writer, logger)

	resultStore := goals.NewDocumentResultStore(store, cfg.StatsPrefix)
	evaluator := goals.NewEvaluator(containerStore, executor, resultStore, eventTable, logger)

	goalJob := jobs.NewGoalJob(executor, evaluator, cfg.AthenaDatabase, cfg.AthenaTable, logger)
	usageJob := jobs.NewUsageJob(executor,
		query.Builder{Table: cfg.AthenaDatabase + "." + cfg.UsageAthenaTable}, usageTable, logger)
	scheduler, err := jobs.NewScheduler(goalJob, usageJob, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: cfg.IsProduction(),
	})
	httpapi.Register(app,
		httpapi.NewStatsHandler(orchestrator, writer, containerStore, logger),
		httpapi.NewEndpointDocHandler(writer, containerStore, logger))

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Fiber:        app,
		Scheduler:    scheduler,
		Orchestrator: orchestrator,
		Evaluator:    evaluator,
		Containers:   containerStore,
		Executor:     executor,
		GoalJob:      goalJob,
		UsageJob:     usageJob,
	}, nil
}

// StartAsync starts the background jobs and the HTTP listener.
func (a *Application) StartAsync() error {
	if err := a.Scheduler.Start(); err != nil {
		return err
	}

	go func() {
		addr := ":" + a.Config.AppPort
		a.Logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := a.Fiber.Listen(addr); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()
	return nil
}

// Shutdown stops the jobs and drains the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()
	return a.Fiber.ShutdownWithContext(ctx)
}
