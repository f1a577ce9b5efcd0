package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"garantias/internal/refine"
)

// ErrNoReport is returned by readers when no report has been published yet.
var ErrNoReport = errors.New("no reconciliation report")

// Report summarizes one refinement run: what was read, what was kept, and
// which retained rows do not reconcile.
type Report struct {
	RunID                string                    `json:"runId"`
	Source               string                    `json:"source"`
	InputRows            int                       `json:"inputRows"`
	ExaminedRows         int                       `json:"examinedRows"`
	Retained             int                       `json:"retained"`
	Filtered             int                       `json:"filtered"`
	Invalid              int                       `json:"invalid"`
	SkippedByReason      map[refine.SkipReason]int `json:"skippedByReason"`
	Mismatches           []refine.Mismatch         `json:"mismatches"`
	CreatedAtEpochSecond int64                     `json:"createdAt"`
}

// NowUnix returns current time in epoch seconds. Split for testability.
var NowUnix = func() int64 { return time.Now().UTC().Unix() }

// New builds a report with a fresh run id.
func New(source string, res refine.Result) Report {
	r := Report{
		RunID:                uuid.NewString(),
		Source:               source,
		InputRows:            res.InputRows,
		ExaminedRows:         res.MinLen,
		Retained:             len(res.Orders),
		SkippedByReason:      map[refine.SkipReason]int{},
		Mismatches:           res.Mismatches,
		CreatedAtEpochSecond: NowUnix(),
	}
	if r.Mismatches == nil {
		r.Mismatches = []refine.Mismatch{}
	}
	for reason, n := range res.SkipCounts() {
		r.SkippedByReason[reason] = n
		if reason.IsFilter() {
			r.Filtered += n
		} else {
			r.Invalid += n
		}
	}
	return r
}

type Publisher interface {
	PublishLatest(ctx context.Context, r Report) error
}

type Reader interface {
	ReadLatest(ctx context.Context) (Report, error)
}

// MultiPublisherImpl writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) PublishLatest(ctx context.Context, r Report) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// FilesystemStore keeps report.latest.json plus one file per run.
type FilesystemStore struct {
	baseDir string
}

func NewFilesystemStore(baseDir string) *FilesystemStore {
	return &FilesystemStore{baseDir: baseDir}
}

func (f *FilesystemStore) PublishLatest(_ context.Context, r Report) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(&r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.baseDir, "report."+r.RunID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	// rename so readers never observe a half-written latest file
	tmp := filepath.Join(f.baseDir, "report.latest.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write latest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(f.baseDir, "report.latest.json")); err != nil {
		return fmt.Errorf("rename latest: %w", err)
	}
	return nil
}

func (f *FilesystemStore) ReadLatest(_ context.Context) (Report, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, "report.latest.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Report{}, ErrNoReport
		}
		return Report{}, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}

// KafkaPublisher publishes the latest report as a compacted Kafka record.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaPublisher creates a Kafka report publisher.
// bootstrap can be comma-separated brokers.
func NewKafkaPublisher(bootstrap string, topic string, key string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}, key: []byte(key)}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter, key string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, key: []byte(key)}
}

func (k *KafkaPublisher) PublishLatest(ctx context.Context, r Report) error {
	b, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// SplitBrokers turns "a:9092, b:9092" into a clean broker list.
func SplitBrokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

func (k *KafkaPublisher) Close() error {
	if c, ok := k.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// KafkaReader reads the latest report from the compacted report topic.
type KafkaReader struct {
	open   func() kafkaMessageReader
	key    []byte
	window time.Duration
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(bootstrap string, topic string, key string) *KafkaReader {
	return NewKafkaReaderWith(func() kafkaMessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:   SplitBrokers(bootstrap),
			Topic:     topic,
			Partition: 0,
			MinBytes:  1,
			MaxBytes:  10e6,
		})
	}, key)
}

// NewKafkaReaderWith is only for tests to inject a fake reader.
func NewKafkaReaderWith(open func() kafkaMessageReader, key string) *KafkaReader {
	return &KafkaReader{open: open, key: []byte(key), window: 10 * time.Second}
}

// ReadLatest scans the partition from the start and keeps the last record
// for the key. The scan ends at the high-water mark or when the read window
// elapses. Cancelling ctx aborts the scan with ctx's error.
func (k *KafkaReader) ReadLatest(ctx context.Context) (Report, error) {
	r := k.open()
	defer r.Close()

	scan, cancel := context.WithTimeout(ctx, k.window)
	defer cancel()

	var last *Report
	for {
		m, err := r.ReadMessage(scan)
		if err != nil {
			if ctx.Err() != nil {
				return Report{}, ctx.Err()
			}
			if scan.Err() != nil {
				break
			}
			return Report{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) == string(k.key) {
			var rep Report
			if err := json.Unmarshal(m.Value, &rep); err != nil {
				return Report{}, fmt.Errorf("unmarshal kafka report: %w", err)
			}
			last = &rep
		}
		if m.HighWaterMark > 0 && m.Offset+1 >= m.HighWaterMark {
			break
		}
	}
	if last == nil {
		return Report{}, ErrNoReport
	}
	return *last, nil
}
