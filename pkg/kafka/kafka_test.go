package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestPublishBatchEncodesValuesAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")

	err := p.PublishBatch(context.Background(), "instrument.resolutions", []Message{
		{Key: []byte("run-1"), Value: map[string]string{"isin": "IE00B4L5Y983"}, Headers: map[string]string{"run_id": "run-1"}},
		{Value: "raw"},
	})
	require.NoError(t, err)

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.Equal(t, "instrument.resolutions", msgs[0].Topic)
	assert.Equal(t, []byte("run-1"), msgs[0].Key)
	var body map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Value, &body))
	assert.Equal(t, "IE00B4L5Y983", body["isin"])
	assert.Equal(t, []kafka.Header{{Key: "run_id", Value: []byte("run-1")}}, msgs[0].Headers)
	assert.Equal(t, []byte("raw"), msgs[1].Value)
}

func TestPublishWrapsWriterError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("broker down")}, "gzip")
	err := p.PublishMessage(context.Background(), "logs", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	assert.NoError(t, p.PublishBatch(context.Background(), "logs", nil))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func withFakes(r *fakeReader, dlq *fakeWriter) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.newReader = func(string) messageReader { return r }
		if dlq != nil {
			c.dlq = dlq
		}
	}
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 1)}
	c, err := NewConsumer(withFakes(r, nil), WithConsumerRetry(3, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		calls int
	)
	done := make(chan struct{})
	c.RegisterHandler(HandlerFunc{Name: "jobs", Fn: func(_ context.Context, b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}})
	require.NoError(t, c.Start())

	r.ch <- kafka.Message{Topic: "jobs", Offset: 7, Value: []byte("{}")}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not succeed")
	}

	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []int64{7}, r.commits())
}

func TestConsumerParksPoisonMessage(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 1)}
	dlq := &fakeWriter{}
	c, err := NewConsumer(withFakes(r, dlq), WithConsumerDLQ("jobs.dlq"), WithConsumerRetry(1, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	c.RegisterHandler(HandlerFunc{Name: "jobs", Fn: func(context.Context, []byte) error {
		panic("boom")
	}})
	require.NoError(t, c.Start())

	r.ch <- kafka.Message{Topic: "jobs", Offset: 3, Value: []byte("bad")}
	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	parked := dlq.written()
	require.Len(t, parked, 1)
	assert.Equal(t, "jobs.dlq", parked[0].Topic)
	assert.Equal(t, []byte("bad"), parked[0].Value)
	assert.Equal(t, "source_topic", parked[0].Headers[0].Key)
}

func TestConsumerSkipsRetryForNoRetryErrors(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 1)}
	dlq := &fakeWriter{}
	c, err := NewConsumer(withFakes(r, dlq), WithConsumerDLQ("jobs.dlq"), WithConsumerRetry(5, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	var calls atomic.Int32
	c.RegisterHandler(HandlerFunc{Name: "jobs", Fn: func(context.Context, []byte) error {
		calls.Add(1)
		return fmt.Errorf("%w: decode job: unexpected EOF", ErrNoRetry)
	}})
	require.NoError(t, c.Start())

	r.ch <- kafka.Message{Topic: "jobs", Offset: 7, Value: []byte("{")}
	assert.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, dlq.written(), 1)
}

func TestConsumerWithoutDLQLeavesFailureUncommitted(t *testing.T) {
	r := &fakeReader{ch: make(chan kafka.Message, 1)}
	c, err := NewConsumer(withFakes(r, nil), WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	require.NoError(t, err)

	handled := make(chan struct{}, 1)
	c.RegisterHandler(HandlerFunc{Name: "jobs", Fn: func(context.Context, []byte) error {
		handled <- struct{}{}
		return errors.New("always")
	}})
	require.NoError(t, c.Start())

	r.ch <- kafka.Message{Topic: "jobs", Offset: 1}
	<-handled
	require.NoError(t, c.Stop(context.Background()))
	assert.Empty(t, r.commits())
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start())
}
