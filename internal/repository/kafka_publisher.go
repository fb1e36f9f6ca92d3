package repository

import (
	"context"
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/domain/repository"
	pkgkafka "FinResolve/pkg/kafka"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// ResolutionEvent is the payload published per resolved instrument.
type ResolutionEvent struct {
	RunID       string                      `json:"run_id"`
	PublishedAt time.Time                   `json:"published_at"`
	Query       models.InstrumentQuery      `json:"query"`
	Record      models.InstrumentRecord     `json:"record"`
	ResolvedBy  models.ResolvedBy           `json:"resolved_by"`
	Confidence  float64                     `json:"confidence"`
	Quality     float64                     `json:"quality"`
	Partial     bool                        `json:"partial"`
	Conflicts   []models.ResolutionConflict `json:"conflicts,omitempty"`
}

// KafkaResolutionPublisher emits one event per resolved instrument, keyed
// by ISIN so events of one instrument stay ordered.
type KafkaResolutionPublisher struct {
	producer batchPublisher
	topic    string
	now      func() time.Time
}

var _ repository.ResolutionSink = (*KafkaResolutionPublisher)(nil)

// NewKafkaResolutionPublisher creates the publisher. The producer is owned
// by the caller.
func NewKafkaResolutionPublisher(producer *pkgkafka.Producer, topic string) *KafkaResolutionPublisher {
	return &KafkaResolutionPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaResolutionPublisher) RecordResolutions(ctx context.Context, runID string, items []models.ResolvedInstrument) error {
	if len(items) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]pkgkafka.Message, len(items))
	for i, it := range items {
		key := it.Record.Value(models.FieldISIN)
		if key == "" {
			key = it.Query.Key()
		}
		msgs[i] = pkgkafka.Message{
			Key: []byte(key),
			Value: ResolutionEvent{
				RunID:       runID,
				PublishedAt: at,
				Query:       it.Query,
				Record:      it.Record,
				ResolvedBy:  it.ResolvedBy,
				Confidence:  it.Confidence,
				Quality:     it.DataQuality.Overall,
				Partial:     it.Partial,
				Conflicts:   it.Conflicts,
			},
			Headers: map[string]string{"run_id": runID},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}
