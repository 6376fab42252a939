package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/model"
)

// retryDelay is how long Run waits after a failed Consume call.
const retryDelay = time.Second

// KafkaConfig describes one consumer connection.
type KafkaConfig struct {
	Brokers           []string
	Topics            []string
	GroupID           string
	ClientID          string
	ConnectTimeout    time.Duration
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// SaramaConfig translates cfg into a sarama consumer configuration that
// starts at the newest offset.
func (cfg KafkaConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.ConnectTimeout > 0 {
		sc.Net.DialTimeout = cfg.ConnectTimeout
		sc.Net.ReadTimeout = cfg.ConnectTimeout
	}
	if cfg.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = cfg.SessionTimeout
	}
	if cfg.HeartbeatInterval > 0 {
		sc.Consumer.Group.Heartbeat.Interval = cfg.HeartbeatInterval
	}
	return sc
}

// KafkaSource consumes a set of topics through a consumer group.
type KafkaSource struct {
	group  sarama.ConsumerGroup
	topics []string
	logger *zap.Logger
	now    func() time.Time
}

var _ Source = (*KafkaSource)(nil)

// NewKafkaSource connects a consumer group. Connection failures are
// reported as "Failed to connect to Kafka broker: ...".
func NewKafkaSource(cfg KafkaConfig, logger *zap.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}
	if len(cfg.Topics) == 0 {
		return nil, ErrNoTopics
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, cfg.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to Kafka broker: %w", err)
	}
	return newKafkaSource(group, cfg.Topics, logger), nil
}

func newKafkaSource(group sarama.ConsumerGroup, topics []string, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSource{group: group, topics: topics, logger: logger, now: time.Now}
}

// Run consumes until ctx is cancelled or the group is closed. Consume
// returns on every rebalance, so it is called in a loop.
func (k *KafkaSource) Run(ctx context.Context, out chan<- model.LiveMessage) error {
	handler := &consumerGroupHandler{out: out, logger: k.logger, now: k.now}
	for {
		if err := k.group.Consume(ctx, k.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			k.logger.Error("kafka consume failed", zap.Strings("topics", k.topics), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (k *KafkaSource) Close() error {
	return k.group.Close()
}

type consumerGroupHandler struct {
	out    chan<- model.LiveMessage
	logger *zap.Logger
	now    func() time.Time
}

var _ sarama.ConsumerGroupHandler = (*consumerGroupHandler)(nil)

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	h.logger.Info("starting kafka claim",
		zap.String("topic", claim.Topic()),
		zap.Int32("partition", claim.Partition()))

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !deliver(session.Context(), h.out, FromConsumerMessage(message, h.now())) {
				return nil
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// FromConsumerMessage converts a sarama message. Header values are
// stringified, an empty key becomes nil and the timestamp is the receive
// time.
func FromConsumerMessage(m *sarama.ConsumerMessage, received time.Time) model.LiveMessage {
	msg := model.LiveMessage{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    strconv.FormatInt(m.Offset, 10),
		Value:     string(m.Value),
		Headers:   make(map[string]string, len(m.Headers)),
		Timestamp: received.UnixMilli(),
	}
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		msg.Headers[string(h.Key)] = string(h.Value)
	}
	if len(m.Key) > 0 {
		key := string(m.Key)
		msg.Key = &key
	}
	return msg
}
