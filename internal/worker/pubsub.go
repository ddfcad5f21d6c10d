package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types dispatched by the Pub/Sub handler.
const (
	JobSwitchExpirySweep = "switch_expiry_sweep"
	JobHealthCheck       = "health_check"
)

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	sweepJob         *SweepJob
	healthCheck      func(ctx context.Context) error
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	SweepJob         *SweepJob

	// HealthCheck verifies worker dependencies (typically a database
	// ping). Optional.
	HealthCheck func(ctx context.Context) error

	Logger zerolog.Logger
}

// JobMessage represents a worker job message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		sweepJob:         cfg.SweepJob,
		healthCheck:      cfg.HealthCheck,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	// Parse message.
	var jobMsg JobMessage
	if err := json.Unmarshal(msg.Data, &jobMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	// Handle based on job type.
	var err error
	switch jobMsg.JobType {
	case JobSwitchExpirySweep:
		err = h.handleExpirySweep(ctx)
	case JobHealthCheck:
		err = h.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", jobMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", jobMsg.JobType).
		Dur("duration", duration).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleExpirySweep(ctx context.Context) error {
	result := h.sweepJob.Run(ctx)
	if result.Err != nil {
		return fmt.Errorf("expiry sweep: %w", result.Err)
	}
	return nil
}

func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	if h.healthCheck != nil {
		if err := h.healthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}
