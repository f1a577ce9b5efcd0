// Package loadlog appends per-run load events (row skips, total mismatches and
// the final load summary) to a JSONL file and/or a Kafka topic.
package loadlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"garantias/internal/refine"
	"garantias/internal/report"
)

type Kind string

const (
	KindSkip     Kind = "skip"
	KindMismatch Kind = "mismatch"
	KindLoaded   Kind = "loaded"
)

type Event struct {
	RunID       string `json:"runId"`
	Kind        Kind   `json:"kind"`
	Row         int    `json:"row,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Detail      string `json:"detail,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Rows        int    `json:"rows,omitempty"`
	TS          int64  `json:"ts"`
}

// Writer appends a batch of events. Implementations write the batch in one
// call to their sink.
type Writer interface {
	Append(ctx context.Context, events ...Event) error
}

// Events expands a refinement result into skip and mismatch events, in row order
// per kind, followed by one loaded event.
func Events(runID string, res refine.Result, ts int64) []Event {
	out := make([]Event, 0, len(res.Skips)+len(res.Mismatches)+1)
	for _, s := range res.Skips {
		out = append(out, Event{RunID: runID, Kind: KindSkip, Row: s.Row, Reason: string(s.Reason), Detail: s.Detail, TS: ts})
	}
	for _, m := range res.Mismatches {
		out = append(out, Event{
			RunID:       runID,
			Kind:        KindMismatch,
			Row:         m.Row,
			OrderNumber: m.OrderNumber,
			Detail:      fmt.Sprintf("computed=%s declared=%s", m.Computed, m.Declared),
			TS:          ts,
		})
	}
	out = append(out, Event{RunID: runID, Kind: KindLoaded, Rows: len(res.Orders), TS: ts})
	return out
}

// AppendAll writes the events of one run as a single batch.
func AppendAll(ctx context.Context, w Writer, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := w.Append(ctx, events...); err != nil {
		return fmt.Errorf("append %d events: %w", len(events), err)
	}
	return nil
}

// MultiWriter fans out writes to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(ctx context.Context, events ...Event) error {
	for _, w := range m.writers {
		if err := w.Append(ctx, events...); err != nil {
			return err
		}
	}
	return nil
}

type FileWriter struct {
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Append(_ context.Context, events ...Event) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	return f.Close()
}

// KafkaWriter publishes events to a Kafka topic keyed by run id.
type KafkaWriter struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter creates a Kafka writer.
// bootstrap can be a comma-separated list of host:port.
func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(report.SplitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1000,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}}
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}

// Append sends the whole batch with one WriteMessages call.
func (k *KafkaWriter) Append(ctx context.Context, events ...Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for i := range events {
		b, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(events[i].RunID), Value: b})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the underlying Kafka writer.
func (k *KafkaWriter) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
