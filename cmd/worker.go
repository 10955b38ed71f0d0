package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/khangpv/imgprep/internal/config"
	"github.com/khangpv/imgprep/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued processing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers()
		},
	}
}

func runWorkers() error {
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
		return err
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 1; i <= cfg.Processing.WorkerCount; i++ {
		if err := queue.StartWorker(ctx, i); err != nil {
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	return nil
}
