package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig holds the Kafka/Redpanda transport settings.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string

	// ConsumeFromStart makes new consumer groups replay the topic from
	// the beginning. Useful for testing.
	ConsumeFromStart bool
}

// Kafka implements Queue and Consumer on a Kafka topic. One client
// serves both roles so a worker can re-enqueue not-yet-due tasks.
type Kafka struct {
	client *kgo.Client
	cfg    KafkaConfig
	logger hclog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewKafka creates the Kafka-backed task queue.
func NewKafka(cfg KafkaConfig, logger hclog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "docvault-workers"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),

		// Producer durability: wait for all in-sync replicas
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		// Offsets are committed manually after successful processing
		kgo.ConsumeResetOffset(offset),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Kafka{
		client: client,
		cfg:    cfg,
		logger: logger.Named("kafka-queue"),
		stopCh: make(chan struct{}),
	}, nil
}

// partitionKey keeps tasks about the same entity ordered.
func partitionKey(task *Task) string {
	if jobID := task.StringArg("job_id"); jobID != "" {
		return "job:" + jobID
	}
	if documentID := task.StringArg("document_id"); documentID != "" {
		return "doc:" + documentID
	}
	return task.ID
}

// Enqueue publishes a task to the topic.
func (k *Kafka) Enqueue(ctx context.Context, task *Task) error {
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	record := &kgo.Record{
		Topic: k.cfg.Topic,
		Key:   []byte(partitionKey(task)),
		Value: value,
	}

	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.Name, err)
	}
	return nil
}

// Run polls the topic and dispatches tasks. Tasks that are not yet due
// are re-published to the tail of the topic and their original offset
// committed, so a delayed task never blocks the partition.
func (k *Kafka) Run(ctx context.Context, handler Handler) error {
	k.logger.Info("starting task consumer",
		"topic", k.cfg.Topic,
		"consumer_group", k.cfg.ConsumerGroup)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("task consumer stopped by context")
			return ctx.Err()

		case <-k.stopCh:
			k.logger.Info("task consumer stopped")
			return nil

		default:
			fetches := k.client.PollFetches(ctx)

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					k.logger.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				for _, record := range p.Records {
					if err := k.processRecord(ctx, record, handler); err != nil {
						k.logger.Error("failed to process task",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
						continue
					}

					if err := k.client.CommitRecords(ctx, record); err != nil {
						k.logger.Warn("failed to commit Kafka offset",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
					}
				}
			})
		}
	}
}

func (k *Kafka) processRecord(ctx context.Context, record *kgo.Record, handler Handler) error {
	var task Task
	if err := json.Unmarshal(record.Value, &task); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	if !task.Due(time.Now()) {
		// Keep the partition moving: push the task back and let a later
		// poll pick it up once due.
		if err := k.Enqueue(ctx, &task); err != nil {
			return fmt.Errorf("failed to re-enqueue delayed task: %w", err)
		}
		k.logger.Debug("task not due, re-enqueued",
			"task", task.Name,
			"id", task.ID,
			"not_before", task.NotBefore)
		return nil
	}

	return handler(ctx, &task)
}

// Stop gracefully stops the consumer and closes the client.
func (k *Kafka) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopCh)
		k.client.Close()
	})
}

// Close implements Queue.
func (k *Kafka) Close() {
	k.Stop()
}
