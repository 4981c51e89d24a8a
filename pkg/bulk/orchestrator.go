// Package bulk implements the server-side bulk export lifecycle: submit a
// job, poll it to a terminal state, and stream the result artifact to disk.
package bulk

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/config"
	"github.com/storekit-io/shopbulk/pkg/errors"
	"github.com/storekit-io/shopbulk/pkg/graphql"
	"github.com/storekit-io/shopbulk/pkg/logger"
	"github.com/storekit-io/shopbulk/pkg/metrics"
)

// Status is a bulk job state reported by the server
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether the status ends the job lifecycle
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Job is the orchestrator's view of one remote bulk operation.
// It is owned exclusively by the orchestrator until a terminal state.
type Job struct {
	ID          string
	Status      Status
	ResultURL   string
	ObjectCount int64
	ErrorCode   string
}

// OperationResult is handed to the caller once a job completes.
// The caller owns ArtifactPath and must delete it after processing.
type OperationResult struct {
	ArtifactPath string
	ItemCount    int64
	// APIWait covers submission through job completion
	APIWait time.Duration
	// Download covers artifact streaming only
	Download time.Duration
}

// executor runs one GraphQL document; satisfied by *graphql.Transport
type executor interface {
	Execute(ctx context.Context, doc graphql.Document, variables map[string]interface{}) (map[string]interface{}, error)
}

// fetcher streams one artifact URL to a local path
type fetcher interface {
	Fetch(ctx context.Context, url, destPath string) (int64, error)
}

// Orchestrator drives one bulk job at a time through
// SUBMITTING -> RUNNING -> {COMPLETED, FAILED, CANCELED}.
type Orchestrator struct {
	transport  executor
	downloader fetcher
	statusDoc  graphql.Document
	polling    config.PollingConfig
	logger     *zap.Logger

	// test seams; production uses real time
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates a bulk job orchestrator
func NewOrchestrator(transport executor, downloader fetcher, statusDoc graphql.Document, polling config.PollingConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		transport:  transport,
		downloader: downloader,
		statusDoc:  statusDoc,
		polling:    polling,
		logger:     logger.With(zap.String("component", "bulk_orchestrator")),
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// Run submits the bulk mutation for entity, polls it to a terminal state and
// downloads the artifact to artifactPath. Submission-time user errors fail
// immediately without a single poll.
func (o *Orchestrator) Run(ctx context.Context, entity string, mutation graphql.Document, artifactPath string) (*OperationResult, error) {
	waitStart := o.now()
	log := logger.WithContext(ctx, o.logger)

	job, err := o.submit(ctx, mutation)
	if err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, logger.JobIDKey, job.ID)
	log = logger.WithContext(ctx, o.logger)
	log.Info("bulk operation started")

	job, err = o.poll(ctx, entity, job, log)
	if err != nil {
		return nil, err
	}

	apiWait := o.now().Sub(waitStart)
	metrics.BulkWaitSeconds.WithLabelValues(entity).Observe(apiWait.Seconds())

	switch job.Status {
	case StatusCompleted:
		return o.collect(ctx, entity, job, artifactPath, apiWait, log)
	case StatusFailed:
		return nil, errors.Newf(errors.ErrorTypeJobFailed, "bulk operation failed: %s", job.ErrorCode).
			WithDetail("job_id", job.ID)
	case StatusCanceled:
		return nil, errors.Newf(errors.ErrorTypeJobCanceled, "bulk operation canceled: %s", job.ErrorCode).
			WithDetail("job_id", job.ID)
	default:
		return nil, errors.Newf(errors.ErrorTypeInternal, "polling ended in non-terminal status %s", job.Status)
	}
}

// submit issues the job mutation and validates the submission response
func (o *Orchestrator) submit(ctx context.Context, mutation graphql.Document) (*Job, error) {
	data, err := o.transport.Execute(ctx, mutation, nil)
	if err != nil {
		return nil, err
	}

	run, _ := data["bulkOperationRunQuery"].(map[string]interface{})
	if run == nil {
		return nil, errors.New(errors.ErrorTypeSubmissionRejected, "submission response missing bulkOperationRunQuery")
	}

	if userErrors, _ := run["userErrors"].([]interface{}); len(userErrors) > 0 {
		msgs := make([]string, 0, len(userErrors))
		for _, ue := range userErrors {
			if m, ok := ue.(map[string]interface{}); ok {
				if msg, ok := m["message"].(string); ok {
					msgs = append(msgs, msg)
				}
			}
		}
		return nil, errors.Newf(errors.ErrorTypeSubmissionRejected, "bulk operation rejected: %s", strings.Join(msgs, "; "))
	}

	op, _ := run["bulkOperation"].(map[string]interface{})
	if op == nil {
		return nil, errors.New(errors.ErrorTypeSubmissionRejected, "submission response missing bulkOperation")
	}

	job := &Job{Status: StatusCreated}
	job.ID, _ = op["id"].(string)
	if s, ok := op["status"].(string); ok {
		job.Status = Status(s)
	}
	return job, nil
}

// poll re-queries job status on the tiered cadence until a terminal state.
// Short interval inside the initial window, long interval after it.
func (o *Orchestrator) poll(ctx context.Context, entity string, job *Job, log *zap.Logger) (*Job, error) {
	pollStart := o.now()

	for {
		elapsed := o.now().Sub(pollStart)

		if o.polling.Timeout > 0 && elapsed > o.polling.Timeout {
			return nil, errors.Newf(errors.ErrorTypeTimeout,
				"bulk operation did not finish within %s", o.polling.Timeout).
				WithDetail("job_id", job.ID)
		}

		interval := o.polling.ShortInterval
		if elapsed >= o.polling.InitialWindow {
			interval = o.polling.LongInterval
		}
		if err := o.sleep(ctx, interval); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTransport, "polling interrupted")
		}

		metrics.BulkPollCycles.WithLabelValues(entity).Inc()

		data, err := o.transport.Execute(ctx, o.statusDoc, nil)
		if err != nil {
			return nil, err
		}

		current, _ := data["currentBulkOperation"].(map[string]interface{})
		if current == nil {
			return nil, errors.New(errors.ErrorTypeQuery, "status response missing currentBulkOperation")
		}

		o.applyStatus(job, current)
		log.Debug("bulk operation status", zap.String("status", string(job.Status)))

		if job.Status.Terminal() {
			return job, nil
		}
	}
}

// applyStatus folds a status payload into the job
func (o *Orchestrator) applyStatus(job *Job, payload map[string]interface{}) {
	if s, ok := payload["status"].(string); ok {
		job.Status = Status(s)
	}
	if url, ok := payload["url"].(string); ok {
		job.ResultURL = url
	}
	if code, ok := payload["errorCode"].(string); ok {
		job.ErrorCode = code
	}
	job.ObjectCount = parseCount(payload["objectCount"])
}

// parseCount tolerates the count arriving as a JSON string or number
func parseCount(v interface{}) int64 {
	switch n := v.(type) {
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	case float64:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// collect materializes the completed job's artifact and timing breakdown.
// A completed job with no result URL is a valid empty dataset, not an error.
func (o *Orchestrator) collect(ctx context.Context, entity string, job *Job, artifactPath string, apiWait time.Duration, log *zap.Logger) (*OperationResult, error) {
	if job.ResultURL == "" {
		log.Info("bulk operation completed with no results (empty dataset)")
		if err := os.WriteFile(artifactPath, nil, 0o644); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "creating empty artifact")
		}
		return &OperationResult{
			ArtifactPath: artifactPath,
			ItemCount:    0,
			APIWait:      apiWait,
		}, nil
	}

	log.Info("downloading bulk results", zap.Int64("object_count", job.ObjectCount))

	downloadStart := o.now()
	written, err := o.downloader.Fetch(ctx, job.ResultURL, artifactPath)
	if err != nil {
		return nil, err
	}
	download := o.now().Sub(downloadStart)

	metrics.DownloadBytes.WithLabelValues(entity).Add(float64(written))

	result := &OperationResult{
		ArtifactPath: artifactPath,
		ItemCount:    job.ObjectCount,
		APIWait:      apiWait,
		Download:     download,
	}
	logPerformance(log, result)
	return result, nil
}

// logPerformance emits the per-operation timing breakdown
func logPerformance(log *zap.Logger, result *OperationResult) {
	total := result.APIWait + result.Download
	itemsPerSecond := 0.0
	if total > 0 {
		itemsPerSecond = float64(result.ItemCount) / total.Seconds()
	}
	log.Info("bulk operation finished",
		zap.Duration("api_wait", result.APIWait),
		zap.Duration("download", result.Download),
		zap.Int64("items", result.ItemCount),
		zap.Float64("items_per_second", itemsPerSecond))
}

// sleepContext sleeps for d or until the context is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
