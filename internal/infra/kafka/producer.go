package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/jumbojolt/identity/internal/infra/config"
)

// Producer sends identity events through either a sync or an async Sarama producer,
// chosen by config.KafkaSettings.Async.
type Producer struct {
	asyncProducer sarama.AsyncProducer
	syncProducer  sarama.SyncProducer
	logger        *zap.Logger
	cfg           config.KafkaSettings
	wg            sync.WaitGroup
}

// NewProducer connects to the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	saramaConfig := newSaramaConfig(cfg.Async)
	p := &Producer{logger: logger, cfg: cfg}

	if cfg.Async {
		producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("create async kafka producer: %w", err)
		}
		p.asyncProducer = producer
		p.wg.Add(1)
		go p.drainErrors()
	} else {
		producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
		if err != nil {
			return nil, fmt.Errorf("create sync kafka producer: %w", err)
		}
		p.syncProducer = producer
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

func newSaramaConfig(async bool) *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_5_0_0
	c.Producer.Compression = sarama.CompressionSnappy
	// keyed by user id so per-user events stay ordered
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Producer.Retry.Max = 3
	c.Producer.Return.Errors = true
	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond

	if async {
		c.Producer.RequiredAcks = sarama.WaitForLocal
		c.Producer.Flush.Frequency = 100 * time.Millisecond
		c.Producer.Flush.Messages = 100
		return c
	}

	// Deletion events drive cascades downstream; the sync path waits for every replica.
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Return.Successes = true
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1
	return c
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for perr := range p.asyncProducer.Errors() {
		p.logger.Error("Kafka producer error",
			zap.Error(perr.Err),
			zap.String("topic", perr.Msg.Topic),
		)
	}
}

// Send hands msg to the producer. In async mode delivery failures are only logged.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p.syncProducer != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
			return fmt.Errorf("send %s: %w", msg.Topic, err)
		}
		return nil
	}

	select {
	case p.asyncProducer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and stops the producer.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")

	var err error
	if p.syncProducer != nil {
		err = p.syncProducer.Close()
	}
	if p.asyncProducer != nil {
		err = p.asyncProducer.Close()
		p.wg.Wait()
	}
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}
	return prefix + eventType
}
