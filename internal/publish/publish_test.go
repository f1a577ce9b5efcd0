package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"garantias/internal/metrics"
	"garantias/internal/model"
)

type fakeProducer struct {
	calls      []string
	produced   []*ck.Message
	produceErr error
	failAt     int
	queued     int
	commitErr  error
	closed     bool
}

func (f *fakeProducer) BeginTransaction() error {
	f.calls = append(f.calls, "begin")
	return nil
}

func (f *fakeProducer) Produce(msg *ck.Message, _ chan ck.Event) error {
	if f.produceErr != nil && len(f.produced) == f.failAt {
		return f.produceErr
	}
	f.produced = append(f.produced, msg)
	return nil
}

func (f *fakeProducer) Flush(int) int {
	f.calls = append(f.calls, "flush")
	return f.queued
}

func (f *fakeProducer) CommitTransaction(context.Context) error {
	f.calls = append(f.calls, "commit")
	return f.commitErr
}

func (f *fakeProducer) AbortTransaction(context.Context) error {
	f.calls = append(f.calls, "abort")
	return nil
}

func (f *fakeProducer) Close() { f.closed = true }

func orders() []model.ServiceOrder {
	return []model.ServiceOrder{
		{OrderNumber: "100", Status: model.StatusG, PartsTotal: decimal.RequireFromString("7.5025")},
		{OrderNumber: "101", Status: model.StatusGU},
	}
}

func TestExport_CommitsOneTransaction(t *testing.T) {
	fp := &fakeProducer{}
	m := metrics.NewRegistry()
	e := NewExporterWith(fp, "garantias.ordens", WithMetrics(m))

	n, err := e.Export(context.Background(), "run-1", orders())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"begin", "flush", "commit"}, fp.calls)
	require.Len(t, fp.produced, 2)

	msg := fp.produced[0]
	require.Equal(t, "garantias.ordens", *msg.TopicPartition.Topic)
	require.Equal(t, "100", string(msg.Key))
	require.Equal(t, HeaderRunID, msg.Headers[0].Key)
	require.Equal(t, "run-1", string(msg.Headers[0].Value))

	var back model.ServiceOrder
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	require.True(t, back.PartsTotal.Equal(decimal.RequireFromString("7.5025")))

	require.Equal(t, 1.0, testutil.ToFloat64(m.TxProduced))
	require.Equal(t, 0.0, testutil.ToFloat64(m.TxAborted))
}

func TestExport_ProduceErrorAborts(t *testing.T) {
	fp := &fakeProducer{produceErr: errors.New("queue full"), failAt: 1}
	m := metrics.NewRegistry()
	e := NewExporterWith(fp, "t", WithMetrics(m))

	_, err := e.Export(context.Background(), "run-2", orders())
	require.ErrorContains(t, err, "queue full")
	require.Equal(t, []string{"begin", "abort"}, fp.calls)
	require.Equal(t, 1.0, testutil.ToFloat64(m.TxAborted))
}

func TestExport_UnflushedMessagesAbort(t *testing.T) {
	fp := &fakeProducer{queued: 3}
	_, err := NewExporterWith(fp, "t").Export(context.Background(), "run-3", orders())
	require.Error(t, err)
	require.Equal(t, []string{"begin", "flush", "abort"}, fp.calls)
}

func TestExport_CommitErrorAborts(t *testing.T) {
	fp := &fakeProducer{commitErr: errors.New("fenced")}
	_, err := NewExporterWith(fp, "t").Export(context.Background(), "run-4", orders())
	require.ErrorContains(t, err, "fenced")
	require.Equal(t, []string{"begin", "flush", "commit", "abort"}, fp.calls)
}

func TestExport_CancelledContextAborts(t *testing.T) {
	fp := &fakeProducer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExporterWith(fp, "t").Export(ctx, "run-5", orders())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fp.produced)
	require.Equal(t, []string{"begin", "abort"}, fp.calls)
}

func TestExport_EmptySetStillCommits(t *testing.T) {
	fp := &fakeProducer{}
	n, err := NewExporterWith(fp, "t").Export(context.Background(), "run-6", nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []string{"begin", "flush", "commit"}, fp.calls)
}

func TestClose(t *testing.T) {
	fp := &fakeProducer{}
	NewExporterWith(fp, "t").Close()
	require.True(t, fp.closed)
}
