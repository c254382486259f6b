package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/edurank/gradeproof/internal/config"
	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/db"
	"github.com/edurank/gradeproof/internal/filestore"
	"github.com/edurank/gradeproof/internal/handler"
	"github.com/edurank/gradeproof/internal/job"
	"github.com/edurank/gradeproof/internal/middleware"
	"github.com/edurank/gradeproof/internal/ocr"
	"github.com/edurank/gradeproof/internal/repo"
	"github.com/edurank/gradeproof/internal/schedule"
	"github.com/edurank/gradeproof/internal/service"
	"github.com/edurank/gradeproof/internal/video"
	"github.com/edurank/gradeproof/internal/worker"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "gradeproof",
		Short: "gradeproof verification server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run gradeproof server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("ocr_engines", len(cfg.OCR.Engines)),
	)

	codeRepo := repo.NewCodeRepo(database)
	jobRepo := repo.NewJobRepo(database)
	studentRepo := repo.NewCachedStudentRepo(repo.NewStudentRepo(database), 1024, time.Minute)
	gradeRepo := repo.NewGradeRepo(database)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	engines := make([]ocr.Engine, 0, len(cfg.OCR.Engines))
	for _, engineCfg := range cfg.OCR.Engines {
		engine, err := ocr.New(engineCfg.Type, engineCfg.Data)
		if err != nil {
			return fmt.Errorf("init ocr engine %s: %w", engineCfg.Type, err)
		}
		engines = append(engines, engine)
	}

	sampler := video.NewFFmpegSampler()
	registry := curriculum.Default()
	jobTimeout := time.Duration(cfg.Verification.JobTimeoutSecs) * time.Second

	orchestrator := service.NewOrchestrator(
		jobRepo, studentRepo, gradeRepo, store, engines, sampler, registry,
		service.OrchestratorConfig{
			Timeout:   jobTimeout,
			FrameRate: cfg.Verification.FrameRate,
			MaxFrames: cfg.Verification.MaxFrames,
		},
	)

	pool := worker.New(worker.Config{
		Workers:   cfg.Verification.Workers,
		QueueSize: cfg.Verification.QueueSize,
	})
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer func() { _ = pool.Stop() }()

	codeService := service.NewCodeService(codeRepo, time.Duration(cfg.Verification.CodeTTLSeconds)*time.Second)
	verificationService := service.NewVerificationService(
		codeService, jobRepo, store, pool, orchestrator, sampler,
		service.VerificationConfig{
			VideoMinSeconds: cfg.Verification.VideoMinSeconds,
			VideoMaxSeconds: cfg.Verification.VideoMaxSeconds,
			JobTimeout:      jobTimeout,
		},
	)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewCodeCleanupJob(codeRepo), "0 * * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewStalledJobSweep(jobRepo, jobTimeout), "*/5 * * * *"); err != nil {
		return err
	}

	studentService := service.NewStudentService(studentRepo, gradeRepo, registry)

	deps := handler.RouterDeps{
		Verification:   handler.NewVerificationHandler(codeService, verificationService),
		Students:       handler.NewStudentHandler(studentService),
		JWTSecret:      []byte(cfg.JWTSecret),
		SubmitCooldown: time.Duration(cfg.Verification.SubmitCooldown) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllow),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
