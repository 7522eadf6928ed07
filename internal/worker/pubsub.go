package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types carried by trigger messages.
const (
	JobRefreshNow = "refresh_now"
)

// Trigger message errors.
var (
	ErrMalformedMessage = errors.New("malformed trigger message")
	ErrUnknownJobType   = errors.New("unknown job type")
)

// Refresher runs manual refreshes on behalf of a remote trigger. An empty
// userID means every active session. It returns the number of passes run or joined.
type Refresher interface {
	RefreshUser(ctx context.Context, userID string, trigger Trigger) (int, error)
}

// TriggerMessage is the payload of a Pub/Sub trigger.
type TriggerMessage struct {
	JobType string `json:"jobType"`
	UserID  string `json:"userId,omitempty"`
}

// PubSubConfig holds configuration for the Pub/Sub trigger.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Refresher        Refresher
	Logger           zerolog.Logger
}

// PubSubTrigger turns Pub/Sub messages into refreshes. Refreshes it requests
// follow the same coalescing rule as manual ones.
type PubSubTrigger struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          *TriggerHandler
	logger           zerolog.Logger
}

// NewPubSubTrigger connects to Pub/Sub.
func NewPubSubTrigger(ctx context.Context, cfg PubSubConfig) (*PubSubTrigger, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	logger := cfg.Logger.With().Str("component", "pubsub").Logger()
	return &PubSubTrigger{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          NewTriggerHandler(cfg.Refresher, logger),
		logger:           logger,
	}, nil
}

// Start receives messages until ctx is done.
func (p *PubSubTrigger) Start(ctx context.Context) error {
	p.logger.Info().Str("subscription", p.subscriptionName).Msg("starting pubsub trigger")

	return p.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := p.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		err := p.handler.Handle(ctx, msg.Data)
		switch {
		case err == nil:
			msg.Ack()
		case errors.Is(err, ErrUnknownJobType):
			// Redelivery cannot help.
			logger.Warn().Err(err).Msg("ignoring message")
			msg.Ack()
		default:
			logger.Error().Err(err).Msg("trigger failed")
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (p *PubSubTrigger) Close() error {
	return p.client.Close()
}

// TriggerHandler decodes trigger messages and dispatches them.
type TriggerHandler struct {
	refresher Refresher
	logger    zerolog.Logger
}

// NewTriggerHandler creates a handler.
func NewTriggerHandler(r Refresher, logger zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{refresher: r, logger: logger}
}

// Handle processes one message payload.
func (h *TriggerHandler) Handle(ctx context.Context, data []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobRefreshNow:
		start := time.Now()
		n, err := h.refresher.RefreshUser(ctx, msg.UserID, TriggerRemote)
		if err != nil {
			return fmt.Errorf("refreshing %q: %w", msg.UserID, err)
		}
		h.logger.Info().
			Str("job_type", msg.JobType).
			Str("user_id", msg.UserID).
			Int("sessions", n).
			Dur("duration", time.Since(start)).
			Msg("remote refresh completed")
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.JobType)
	}
}
