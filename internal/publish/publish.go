// Package publish exports the refined record set to Kafka inside a single
// producer transaction, so consumers reading committed data see either the
// whole set or none of it.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"garantias/internal/metrics"
	"garantias/internal/model"
)

// HeaderRunID carries the export run id on every record.
const HeaderRunID = "run_id"

const flushTimeoutMs = 15000

// Producer is the subset of *kafka.Producer used by Exporter.
type Producer interface {
	BeginTransaction() error
	Produce(msg *ck.Message, deliveryChan chan ck.Event) error
	Flush(timeoutMs int) int
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	Close()
}

type Exporter struct {
	p       Producer
	topic   string
	log     *zap.Logger
	metrics *metrics.Registry
}

type Option func(*Exporter)

func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(e *Exporter) { e.metrics = m }
}

// NewExporter connects a transactional producer and initialises its
// transactions.
func NewExporter(ctx context.Context, bootstrap, topic, txID string, opts ...Option) (*Exporter, error) {
	prod, err := ck.NewProducer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"enable.idempotence": true,
		"acks":               "all",
		"transactional.id":   txID,
	})
	if err != nil {
		return nil, fmt.Errorf("producer: %w", err)
	}
	if err := prod.InitTransactions(ctx); err != nil {
		prod.Close()
		return nil, fmt.Errorf("init tx: %w", err)
	}
	return NewExporterWith(prod, topic, opts...), nil
}

// NewExporterWith wraps an already initialised producer. Tests inject fakes here.
func NewExporterWith(p Producer, topic string, opts ...Option) *Exporter {
	e := &Exporter{p: p, topic: topic, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Exporter) Close() { e.p.Close() }

// Export produces one record per order, keyed by order number, and commits
// them as one transaction. Any failure aborts the transaction.
func (e *Exporter) Export(ctx context.Context, runID string, orders []model.ServiceOrder) (int, error) {
	t0 := time.Now()
	if err := e.p.BeginTransaction(); err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	headers := []ck.Header{{Key: HeaderRunID, Value: []byte(runID)}}
	for i, o := range orders {
		if err := ctx.Err(); err != nil {
			return 0, e.abort(err)
		}
		b, err := json.Marshal(o)
		if err != nil {
			return 0, e.abort(fmt.Errorf("marshal order %d: %w", i, err))
		}
		msg := &ck.Message{
			TopicPartition: ck.TopicPartition{Topic: &e.topic, Partition: ck.PartitionAny},
			Key:            []byte(o.OrderNumber),
			Value:          b,
			Headers:        headers,
		}
		if err := e.p.Produce(msg, nil); err != nil {
			return 0, e.abort(fmt.Errorf("produce order %d: %w", i, err))
		}
	}
	if left := e.p.Flush(flushTimeoutMs); left > 0 {
		return 0, e.abort(fmt.Errorf("flush: %d messages still queued", left))
	}
	if err := e.p.CommitTransaction(ctx); err != nil {
		return 0, e.abort(fmt.Errorf("commit tx: %w", err))
	}
	if e.metrics != nil {
		e.metrics.TxProduced.Inc()
		e.metrics.TxLatencySec.Observe(time.Since(t0).Seconds())
	}
	e.log.Info("export committed", zap.String("run", runID), zap.String("topic", e.topic), zap.Int("records", len(orders)))
	return len(orders), nil
}

func (e *Exporter) abort(cause error) error {
	if e.metrics != nil {
		e.metrics.TxAborted.Inc()
	}
	e.log.Warn("export aborted", zap.Error(cause))
	if err := e.p.AbortTransaction(context.Background()); err != nil {
		return fmt.Errorf("%w (abort failed: %v)", cause, err)
	}
	return cause
}
