package ingest

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/atikulmunna/flowscope/internal/jsonval"
)

// ErrMissingProduceFields is returned when broker, topic or value is empty.
//nolint:stylecheck // capitalised: returned verbatim to API clients
var ErrMissingProduceFields = errors.New("Missing required fields: broker, topic, value")

// ProduceRequest is one message to publish. Value may be any JSON value;
// non-strings are sent as their JSON encoding. Headers may be an object or
// a string holding a JSON object.
type ProduceRequest struct {
	Broker  string        `json:"broker"`
	Topic   string        `json:"topic"`
	Key     string        `json:"key"`
	Value   jsonval.Value `json:"value"`
	Headers jsonval.Value `json:"headers"`
}

// ProduceResult reports where the message landed.
type ProduceResult struct {
	Success   bool   `json:"success"`
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    string `json:"offset"`
}

// SyncProducerFactory opens a producer for a broker list.
type SyncProducerFactory func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Producer publishes single messages. A producer connection is opened per
// call, since calls are rare and may target different brokers.
type Producer struct {
	clientID string
	open     SyncProducerFactory
	logger   *zap.Logger
}

// NewProducer returns a Producer using sarama.NewSyncProducer.
func NewProducer(clientID string, logger *zap.Logger) *Producer {
	return NewProducerWithFactory(clientID, sarama.NewSyncProducer, logger)
}

// NewProducerWithFactory is NewProducer with a custom connection factory.
func NewProducerWithFactory(clientID string, open SyncProducerFactory, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{clientID: clientID, open: open, logger: logger}
}

// Send validates req and publishes it.
func (p *Producer) Send(req ProduceRequest) (ProduceResult, error) {
	if req.Broker == "" || req.Topic == "" || !req.Value.Truthy() {
		return ProduceResult{}, ErrMissingProduceFields
	}
	brokers := ParseList(req.Broker)
	if len(brokers) == 0 {
		return ProduceResult{}, ErrInvalidBrokers
	}

	cfg := sarama.NewConfig()
	cfg.ClientID = p.clientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := p.open(brokers, cfg)
	if err != nil {
		return ProduceResult{}, fmt.Errorf("open producer: %w", err)
	}
	defer func() {
		if cerr := producer.Close(); cerr != nil {
			p.logger.Warn("closing kafka producer", zap.Error(cerr))
		}
	}()

	msg := &sarama.ProducerMessage{
		Topic:   req.Topic,
		Value:   sarama.StringEncoder(encodeValue(req.Value)),
		Headers: recordHeaders(req.Headers),
	}
	if req.Key != "" {
		msg.Key = sarama.StringEncoder(req.Key)
	}

	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return ProduceResult{}, fmt.Errorf("send to %s: %w", req.Topic, err)
	}
	p.logger.Info("produced kafka message",
		zap.String("topic", req.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))

	return ProduceResult{
		Success:   true,
		Topic:     req.Topic,
		Partition: partition,
		Offset:    fmt.Sprint(offset),
	}, nil
}

func encodeValue(v jsonval.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return v.Compact()
}

// recordHeaders accepts an object or a JSON string of one. Anything else yields
// no headers.
func recordHeaders(v jsonval.Value) []sarama.RecordHeader {
	if s, ok := v.Str(); ok {
		parsed, ok := jsonval.ParseObject(s)
		if !ok {
			return nil
		}
		v = parsed
	}
	var out []sarama.RecordHeader
	for _, m := range v.Members() {
		out = append(out, sarama.RecordHeader{Key: []byte(m.Key), Value: []byte(m.Value.String())})
	}
	return out
}
