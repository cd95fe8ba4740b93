package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"

	"docbot/internal/model"
	"docbot/internal/pkg/logging"
	rabbitmqClient "docbot/internal/platform/rabbitmq"
)

// JobRunner executes one ingestion job and records its outcome.
type JobRunner interface {
	RunIngestJob(ctx context.Context, job model.IngestJob) error
}

// IngestWorker consumes ingestion jobs one at a time.
type IngestWorker struct {
	conn      *amqp.Connection
	runner    JobRunner
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner JobRunner, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmqClient.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if w.handle(workerCtx, d.Body) {
					_ = d.Ack(false)
				} else {
					_ = d.Nack(false, false)
				}
			}
		}
	}()

	return nil
}

// handle runs one delivery and reports whether it should be acked.
// Failed jobs are not requeued; their failure is recorded by the runner.
func (w *IngestWorker) handle(ctx context.Context, body []byte) bool {
	logger := logging.FromContext(ctx)

	var job model.IngestJob
	if err := sonic.Unmarshal(body, &job); err != nil {
		logger.Error("ingest worker decode job failed", "error", err)
		return false
	}
	if job.JobID == "" {
		logger.Error("ingest worker received job without id")
		return false
	}

	logger = logger.With("job_id", job.JobID, "chatbot", job.ChatbotName)
	if err := w.runner.RunIngestJob(logging.NewContext(ctx, logger), job); err != nil {
		logger.Error("ingest job failed", "error", err)
		return false
	}
	logger.Info("ingest job done")
	return true
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
