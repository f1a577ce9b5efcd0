package loadlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"garantias/internal/model"
	"garantias/internal/refine"
)

func TestEvents_Order(t *testing.T) {
	res := refine.Result{
		Orders: []model.ServiceOrder{{OrderNumber: "1"}, {OrderNumber: "2"}},
		Skips:  []refine.Skip{{Row: 0, Reason: refine.SkipYear, Detail: "year 2010"}},
		Mismatches: []refine.Mismatch{{
			Row: 3, OrderNumber: "2", Computed: decimal.NewFromInt(1), Declared: decimal.NewFromInt(2),
		}},
	}
	evs := Events("run-1", res, 7)
	if len(evs) != 3 {
		t.Fatalf("want 3 events, got %d", len(evs))
	}
	if evs[0].Kind != KindSkip || evs[0].Reason != "year" {
		t.Fatalf("bad skip event: %+v", evs[0])
	}
	if evs[1].Kind != KindMismatch || evs[1].Detail != "computed=1 declared=2" {
		t.Fatalf("bad mismatch event: %+v", evs[1])
	}
	if evs[2].Kind != KindLoaded || evs[2].Rows != 2 || evs[2].TS != 7 {
		t.Fatalf("bad loaded event: %+v", evs[2])
	}
}

func TestFileWriter_Append(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "loads.jsonl")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	e1 := Event{RunID: "r", Kind: KindSkip, Row: 1, Reason: "status", TS: 1}
	e2 := Event{RunID: "r", Kind: KindLoaded, Rows: 10, TS: 2}
	if err := AppendAll(context.Background(), w, []Event{e1, e2}); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "loads.jsonl"))
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	var got []Event
	for s.Scan() {
		var e Event
		if err := json.Unmarshal(s.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 || got[0] != e1 || got[1] != e2 {
		t.Fatalf("mismatch: %+v", got)
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs  []kafka.Message
	calls int
	fail  bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriter_KeyedByRun(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kw := NewKafkaWriterWith(fk)
	if err := kw.Append(context.Background(), Event{RunID: "run-9", Kind: KindLoaded}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fk.msgs) != 1 || string(fk.msgs[0].Key) != "run-9" {
		t.Fatalf("unexpected msgs: %+v", fk.msgs)
	}
}

func TestMultiWriter_PropagatesFailure(t *testing.T) {
	ok := &fakeKafkaWriter{}
	mw := NewMultiWriter(NewKafkaWriterWith(ok), NewKafkaWriterWith(&fakeKafkaWriter{fail: true}))
	err := AppendAll(context.Background(), mw, []Event{{RunID: "r"}, {RunID: "r"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(ok.msgs) != 2 {
		t.Fatalf("first writer should have received the batch before failure, got %d", len(ok.msgs))
	}
}

func TestAppendAll_OneWritePerRun(t *testing.T) {
	res := refine.Result{Orders: []model.ServiceOrder{{OrderNumber: "1"}}}
	for i := 0; i < 2500; i++ {
		res.Skips = append(res.Skips, refine.Skip{Row: i, Reason: refine.SkipStatus})
	}
	evs := Events("run-big", res, 1)

	fk := &fakeKafkaWriter{}
	if err := AppendAll(context.Background(), NewKafkaWriterWith(fk), evs); err != nil {
		t.Fatalf("append: %v", err)
	}
	if fk.calls != 1 {
		t.Fatalf("want one WriteMessages call, got %d", fk.calls)
	}
	if len(fk.msgs) != len(evs) {
		t.Fatalf("want %d messages, got %d", len(evs), len(fk.msgs))
	}
	if string(fk.msgs[len(fk.msgs)-1].Key) != "run-big" {
		t.Fatalf("bad key: %q", fk.msgs[len(fk.msgs)-1].Key)
	}
}

func TestAppendAll_Empty(t *testing.T) {
	fk := &fakeKafkaWriter{}
	if err := AppendAll(context.Background(), NewKafkaWriterWith(fk), nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if fk.calls != 0 {
		t.Fatalf("empty batch should not write, got %d calls", fk.calls)
	}
}
