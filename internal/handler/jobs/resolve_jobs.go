package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinResolve/internal/domain/models"
	"FinResolve/internal/usecase"
	xhttp "FinResolve/pkg/http"
	pkgkafka "FinResolve/pkg/kafka"
	xlogger "FinResolve/pkg/logger"
)

func init() {
	xhttp.RegisterValidation("isin", models.ValidISIN)
}

// BulkResolver runs bulk resolutions.
type BulkResolver interface {
	Defaults() models.ResolveOptions
	ResolveBulk(ctx context.Context, queries []models.InstrumentQuery, opts models.ResolveOptions, progress usecase.ProgressFunc) (*models.BulkResult, error)
}

// Publisher sends a JSON payload to a topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload any) error
}

// ResolveJob is a bulk resolution submitted through the job topic.
type ResolveJob struct {
	JobID       string                       `json:"job_id" validate:"required,max=128"`
	Instruments []models.ResolveItem         `json:"instruments" validate:"required,min=1,max=1000,dive"`
	Options     models.ResolveOptionsRequest `json:"options"`
}

// JobResult is published once a job completes.
type JobResult struct {
	JobID       string             `json:"job_id"`
	RunID       string             `json:"run_id"`
	CompletedAt time.Time          `json:"completed_at"`
	Result      *models.BulkResult `json:"result"`
}

// ResolveJobHandler consumes resolution jobs and publishes their results.
// Individual resolutions also reach the resolver's sinks.
type ResolveJobHandler struct {
	topic       string
	resultTopic string
	resolver    BulkResolver
	results     Publisher
	now         func() time.Time
	log         *xlogger.Logger
}

var _ pkgkafka.MessageHandler = (*ResolveJobHandler)(nil)

// NewResolveJobHandler builds a handler for topic. Results are not published
// when results is nil or resultTopic is empty.
func NewResolveJobHandler(log *xlogger.Logger, resolver BulkResolver, results Publisher, topic, resultTopic string) *ResolveJobHandler {
	if log == nil {
		log = xlogger.Nop()
	}
	return &ResolveJobHandler{
		topic:       topic,
		resultTopic: resultTopic,
		resolver:    resolver,
		results:     results,
		now:         time.Now,
		log:         log,
	}
}

func (h *ResolveJobHandler) Topic() string {
	return h.topic
}

// Handle runs one job. Malformed or invalid jobs fail with
// pkgkafka.ErrNoRetry.
func (h *ResolveJobHandler) Handle(ctx context.Context, data []byte) error {
	var job ResolveJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("%w: decode job: %w", pkgkafka.ErrNoRetry, err)
	}
	if verr := xhttp.ValidateRequest(ctx, &job); verr != nil {
		return fmt.Errorf("%w: invalid job %q: %s", pkgkafka.ErrNoRetry, job.JobID, verr[0].Message)
	}

	queries := make([]models.InstrumentQuery, len(job.Instruments))
	for i, it := range job.Instruments {
		queries[i] = it.Query()
	}

	res, err := h.resolver.ResolveBulk(ctx, queries, job.Options.ApplyTo(h.resolver.Defaults()), nil)
	if err != nil {
		return fmt.Errorf("resolve job %s: %w", job.JobID, err)
	}

	h.log.Info("resolution job done",
		xlogger.String("job_id", job.JobID),
		xlogger.String("run_id", res.Performance.RunID),
		xlogger.Int("total", res.Summary.Total),
		xlogger.Int("unresolved", res.Summary.Unresolved),
	)

	if h.results == nil || h.resultTopic == "" {
		return nil
	}
	out := JobResult{
		JobID:       job.JobID,
		RunID:       res.Performance.RunID,
		CompletedAt: h.now().UTC(),
		Result:      res,
	}
	if err := h.results.PublishMessage(ctx, h.resultTopic, out); err != nil {
		return fmt.Errorf("publish job %s result: %w", job.JobID, err)
	}
	return nil
}
