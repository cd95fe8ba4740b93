package rabbitmq

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"

	"docbot/internal/model"
)

// IngestPublisher queues ingestion jobs for the ingest worker.
type IngestPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestPublisher(conn *amqp.Connection, queueName string) *IngestPublisher {
	return &IngestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IngestPublisher) Publish(ctx context.Context, job model.IngestJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := sonic.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal ingest job failed: %w", err)
	}

	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.JobID,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		return fmt.Errorf("publish ingest job failed: %w", err)
	}
	return nil
}
