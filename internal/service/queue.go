package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/khangpv/imgprep/internal/models"
	"github.com/khangpv/imgprep/pkg/utils"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type QueueService struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *zap.Logger
	queueName   string
	processor   *ImageProcessor
	storage     *StorageService
	maxFileSize int64
}

func NewQueueService(rabbitmqURL string, processor *ImageProcessor, storage *StorageService, maxFileSize int64, logger *zap.Logger) (*QueueService, error) {
	conn, err := amqp.Dial(rabbitmqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	queueName := "image_processing"

	_, err = channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &QueueService{
		conn:        conn,
		channel:     channel,
		logger:      logger,
		queueName:   queueName,
		processor:   processor,
		storage:     storage,
		maxFileSize: maxFileSize,
	}, nil
}

// PublishJob publishes a processing job to the queue
func (q *QueueService) PublishJob(ctx context.Context, job *models.ProcessingJob) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.channel.Publish(
		"",          // exchange
		q.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         jobBytes,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Info("Job published to queue", zap.String("job_id", job.ID))
	return nil
}

// StartWorker starts consuming jobs from the queue
func (q *QueueService) StartWorker(ctx context.Context, workerID int) error {
	msgs, err := q.channel.Consume(
		q.queueName,                        // queue
		fmt.Sprintf("worker-%d", workerID), // consumer
		false,                              // auto-ack
		false,                              // exclusive
		false,                              // no-local
		false,                              // no-wait
		nil,                                // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("Worker started", zap.Int("worker_id", workerID))

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.logger.Info("Worker stopping", zap.Int("worker_id", workerID))
				return
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("Message channel closed", zap.Int("worker_id", workerID))
					return
				}

				q.processMessage(ctx, msg, workerID)
			}
		}
	}()

	return nil
}

func (q *QueueService) processMessage(ctx context.Context, msg amqp.Delivery, workerID int) {
	var job models.ProcessingJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.Error("Failed to unmarshal job",
			zap.Error(err),
			zap.Int("worker_id", workerID))
		msg.Nack(false, false) // don't requeue malformed messages
		return
	}

	q.logger.Info("Processing job",
		zap.String("job_id", job.ID),
		zap.Int("worker_id", workerID))

	job.Status = models.StatusProcessing

	if err := q.runJob(ctx, &job); err != nil {
		job.Status = models.StatusFailed
		job.Error = err.Error()
		q.logger.Error("Job processing failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	} else {
		job.Status = models.StatusCompleted
		q.logger.Info("Job completed successfully",
			zap.String("job_id", job.ID))
	}

	if err := msg.Ack(false); err != nil {
		q.logger.Error("Failed to ack message",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// runJob fetches the source once and renders every requested output. Cached
// renditions skip the decode entirely.
func (q *QueueService) runJob(ctx context.Context, job *models.ProcessingJob) error {
	if len(job.Outputs) == 0 {
		return fmt.Errorf("job has no outputs")
	}

	data, err := q.fetchSource(ctx, job.Source)
	if err != nil {
		return err
	}

	for _, out := range job.Outputs {
		cacheKey := CacheKey(data, out.Height)
		if cached, err := q.storage.GetFromCache(ctx, cacheKey); err == nil && cached != nil {
			q.logger.Info("Cache hit",
				zap.String("job_id", job.ID),
				zap.String("path", out.Path))
			if err := WriteOutput(out.Path, cached); err != nil {
				return err
			}
			continue
		}

		buffer, _, _, err := q.processor.ProcessBytes(data, out.Height)
		if err != nil {
			return err
		}
		if err := WriteOutput(out.Path, buffer.Bytes()); err != nil {
			return err
		}

		if err := q.storage.SetCache(ctx, cacheKey, buffer.Bytes()); err != nil {
			q.logger.Warn("Failed to cache rendition",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}

		if q.storage.Configured() {
			if url, err := q.storage.Upload(ctx, buffer, utils.GenerateFilename(job.ID)); err != nil {
				q.logger.Warn("Failed to upload rendition",
					zap.String("job_id", job.ID),
					zap.Error(err))
			} else {
				q.logger.Info("Rendition uploaded",
					zap.String("job_id", job.ID),
					zap.String("url", url))
			}
		}
	}

	return nil
}

func (q *QueueService) fetchSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, contentType, err := utils.DownloadImage(ctx, source, q.maxFileSize)
		if err != nil {
			return nil, err
		}
		if !utils.IsValidImageType(contentType) {
			return nil, fmt.Errorf("invalid content type: %s", contentType)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input file not found: %s", source)
		}
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return data, nil
}

// GetQueueStats returns queue statistics
func (q *QueueService) GetQueueStats() (map[string]interface{}, error) {
	queueInfo, err := q.channel.QueueInspect(q.queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return map[string]interface{}{
		"messages":  queueInfo.Messages,
		"consumers": queueInfo.Consumers,
		"name":      queueInfo.Name,
	}, nil
}

// Close closes the queue connection
func (q *QueueService) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	return nil
}

// HealthCheck checks if RabbitMQ is available
func (q *QueueService) HealthCheck() string {
	if q.conn == nil || q.conn.IsClosed() {
		return "unhealthy: connection closed"
	}
	if q.channel == nil {
		return "unhealthy: channel not available"
	}
	return "healthy"
}
