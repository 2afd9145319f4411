package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// setupConsumer starts consuming with the worker ID as consumer tag
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.deliveries.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)

	return deliveries, nil
}

// decodeMessage parses and validates a job announcement
func decodeMessage(body []byte) (domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	if strings.TrimSpace(msg.Owner) == "" {
		return msg, fmt.Errorf("%w: owner is required", domain.ErrInvalidMessage)
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return msg, fmt.Errorf("%w: job_id %q is not a UUID", domain.ErrInvalidMessage, msg.JobID)
	}

	return msg, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			msg, err := decodeMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping malformed job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// malformed messages go to the dead-letter exchange, if any
				w.settle(&delivery, false, false)
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag

			if !w.claim(msg) {
				w.logger.Debug("Job already in flight, acknowledging duplicate",
					slog.String("job_id", msg.JobID),
				)
				w.settle(&delivery, true, false)
				continue
			}

			select {
			case w.jobsChan <- &task{msg: msg, delivery: &delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.release(msg)
				w.logger.Info("Message dispatcher stopped while dispatching job")
				w.settle(&delivery, false, true)
				return nil
			}
		}
	}
}

// settle acks or nacks a delivery; scanner tasks have none
func (w *Worker) settle(delivery *amqp.Delivery, ack, requeue bool) {
	if delivery == nil {
		return
	}

	var err error
	if ack {
		err = delivery.Ack(false)
	} else {
		err = delivery.Nack(false, requeue)
	}

	if err != nil {
		w.logger.Error("Failed to settle message",
			slog.Bool("ack", ack),
			slog.Bool("requeue", requeue),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}
