package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khangpv/imgprep/internal/config"
	"github.com/khangpv/imgprep/internal/handlers"
	"github.com/khangpv/imgprep/internal/routes"
	"github.com/khangpv/imgprep/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the image processing HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	processor := service.NewImageProcessor(cfg.Processing.Quality)

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	queue, err := service.NewQueueService(cfg.RabbitMQ.URL, processor, storage, cfg.Processing.MaxFileSize, logger)
	if err != nil {
		logger.Warn("Failed to initialize queue service", zap.Error(err))
		// Continue without async jobs; synchronous resizing still works.
		queue = nil
	} else {
		defer queue.Close()
	}

	imageHandler := handlers.NewImageHandler(processor, storage, queue, logger, cfg)
	router := routes.NewRouter(imageHandler, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
