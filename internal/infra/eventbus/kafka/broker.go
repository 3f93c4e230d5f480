package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/stackfolio/stackfolio/pkg/common/logger"
)

// Config contains settings for connecting to and interacting with Kafka.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// SubmissionsTopic carries submission notifications for the router.
	SubmissionsTopic string

	// GroupID identifies the consumer group for this broker instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

// Broker publishes and consumes submission events over Kafka.
type Broker struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup

	submissionsTopic string
	clientID         string

	log *logger.Logger
}

// NewBroker creates a Kafka broker with a producer and consumer group
// configured for reliable delivery and at-least-once consumption.
func NewBroker(cfg *Config, log *logger.Logger) (*Broker, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.ClientID = cfg.ClientID
	// Partition by key so one owner's submissions stay ordered.
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()

	// Start from the oldest offset so submissions that arrived while no
	// router was running are not lost.
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second

	consumerConfig.Consumer.Offsets.AutoCommit.Enable = true
	consumerConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second

	consumerConfig.Version = sarama.V2_8_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Broker{
		producer:         producer,
		consumerGroup:    consumerGroup,
		submissionsTopic: cfg.SubmissionsTopic,
		clientID:         cfg.ClientID,
		log:              log,
	}, nil
}

// PublishSubmission announces a new inbox object, keyed by owner so a single
// owner's submissions arrive in order.
func (b *Broker) PublishSubmission(ctx context.Context, event SubmissionEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.submissionsTopic,
		Key:   sarama.StringEncoder(event.OwnerID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publishing submission event for %s: %w", event.OwnerID, err)
	}

	b.log.Info(ctx, "Published submission event",
		"owner_id", event.OwnerID,
		"key", event.Key,
	)
	return nil
}

// SubmissionHandler processes one submission event. Returning an error
// leaves the offset uncommitted so the event is redelivered.
type SubmissionHandler func(ctx context.Context, event SubmissionEvent) error

// ConsumeSubmissions blocks consuming submission events until the context
// is cancelled, handling consumer group rebalances automatically.
func (b *Broker) ConsumeSubmissions(ctx context.Context, handler SubmissionHandler) error {
	h := &submissionGroupHandler{clientID: b.clientID, handler: handler, log: b.log}
	for {
		if err := b.consumerGroup.Consume(ctx, []string{b.submissionsTopic}, h); err != nil {
			// Expected during rebalances; the loop reconnects.
			b.log.Warn(ctx, "Consumer group session ended", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close shuts down the producer and consumer group.
func (b *Broker) Close() error {
	if err := b.producer.Close(); err != nil {
		return fmt.Errorf("closing producer: %w", err)
	}
	return b.consumerGroup.Close()
}

type submissionGroupHandler struct {
	clientID string
	handler  SubmissionHandler
	log      *logger.Logger
}

func (h *submissionGroupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log.Info(context.Background(), "Consumer group session setup",
		"client_id", h.clientID,
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *submissionGroupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.log.Info(context.Background(), "Consumer group session cleanup",
		"client_id", h.clientID,
		"generation_id", sess.GenerationID(),
		"member_id", sess.MemberID(),
	)
	return nil
}

func (h *submissionGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		event, err := UnmarshalSubmissionEvent(msg.Value)
		if err != nil {
			// Poison messages are logged and skipped; redelivery would
			// never succeed.
			h.log.Error(ctx, "Dropping undecodable submission event",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			sess.MarkMessage(msg, "")
			continue
		}

		if err := h.handler(ctx, event); err != nil {
			h.log.Error(ctx, "Submission event handling failed",
				"owner_id", event.OwnerID,
				"key", event.Key,
				"error", err,
			)
			// Offset not marked: the event is redelivered.
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
