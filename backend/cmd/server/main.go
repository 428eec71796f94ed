package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/cache"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/exam"
	"lms_core/backend/internal/gateway"
	"lms_core/backend/internal/marks"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
	"lms_core/backend/internal/submission"
)

const healthInterval = 10 * time.Second

func main() {
	log.Println("INFO: Starting LMS core service...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// 1. Configuration and logging
	cfg, err := shared.LoadServiceConfig("")
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if err := shared.ValidateServiceConfig(cfg); err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}
	shared.PrintConfig(cfg)

	logger := shared.NewLogger(cfg)
	defer logger.Close()

	// 2. MongoDB
	client, db, err := shared.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := shared.EnsureIndexes(ctx, db); err != nil {
		logger.Fatalf("Failed to create indexes: %v", err)
	}

	// 3. Exam cache
	var examCache cache.ExamCache = cache.NoopCache{}
	if cfg.Cache.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
		if err != nil {
			logger.Warnf("Exam cache disabled: %v", err)
		} else {
			defer rc.Close()
			examCache = rc
		}
	}

	// 4. Services
	useTx := cfg.MongoDB.UseTransactions
	dir := directory.NewMongoDirectory(db)
	checker := policy.NewChecker(nil)
	recorder := audit.NewMongoRecorder(db)

	examSvc := exam.NewExamService(exam.NewMongoStore(client, db, useTx), dir, checker, recorder, examCache, logger)
	services := &gateway.Services{
		Marks: marks.NewMarksService(marks.NewMongoStore(client, db, useTx), dir, checker, recorder, logger),
		Exams: examSvc,
		Submissions: submission.NewSubmissionService(submission.NewMongoStore(db), examSvc, dir, checker,
			submission.NewTransitionPolicy(cfg.StrictTransitions), recorder, logger),
		Ready: func(ctx context.Context) error { return shared.PingMongoDB(ctx, client) },
	}

	// 5. HTTP and gRPC health servers
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      gateway.SetupRoutes(services, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer, healthServer := shared.NewHealthServer(cfg.ServiceName)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatalf("Failed to listen on gRPC port %s: %v", cfg.GRPCPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("HTTP listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Infof("gRPC health listening on port %s", cfg.GRPCPort)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		shared.WatchHealth(gctx, healthServer, cfg.ServiceName, services.Ready, healthInterval)
		return nil
	})

	// 6. Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.GracefulStop()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("", err, "server stopped with error")
	}
	log.Println("INFO: LMS core service stopped.")
}
