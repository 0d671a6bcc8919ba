package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// JobStatus represents the normalised status of a provider job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is a snapshot of an asynchronous provider job (training or prediction).
type Job struct {
	ID        string
	Status    JobStatus
	RawStatus string
	Outputs   []string
	Error     error
}

// PollConfig contains configuration for polling async jobs.
type PollConfig struct {
	Interval      time.Duration
	MaxAttempts   int
	MaxPollErrors int
	Backoff       bool
	BackoffMax    time.Duration
}

// DefaultPollConfig provides default polling configuration.
var DefaultPollConfig = PollConfig{
	Interval:      5 * time.Second,
	MaxAttempts:   120, // 10 minutes with 5s interval
	MaxPollErrors: 3,
	Backoff:       false,
	BackoffMax:    30 * time.Second,
}

// PredictionPollConfig is tuned for flux-dev predictions, which finish in well under a minute per batch.
var PredictionPollConfig = PollConfig{
	Interval:      2 * time.Second,
	MaxAttempts:   150,
	MaxPollErrors: 3,
	Backoff:       true,
	BackoffMax:    10 * time.Second,
}

// ErrPollExhausted is returned when a job is still running after MaxAttempts polls.
var ErrPollExhausted = errors.New("polling exceeded maximum attempts")

// JobPoller defines the interface for polling job status.
type JobPoller interface {
	// Poll checks the current status of a job.
	Poll(ctx context.Context, jobID string) (*Job, error)
}

// WaitForJob polls a job until it reaches a terminal status, the attempt
// budget is spent, or ctx is done. Only a succeeded job is returned without error.
func WaitForJob(ctx context.Context, poller JobPoller, jobID string, config PollConfig) (*Job, error) {
	if jobID == "" {
		return nil, errors.New("job ID is required")
	}
	if poller == nil {
		return nil, errors.New("job poller is nil")
	}

	interval := config.Interval
	if interval <= 0 {
		interval = DefaultPollConfig.Interval
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollConfig.MaxAttempts
	}

	maxPollErrors := config.MaxPollErrors
	if maxPollErrors <= 0 {
		maxPollErrors = 1
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	pollErrors := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-ticker.C:
			attempts++

			job, err := poller.Poll(ctx, jobID)
			if err != nil {
				pollErrors++
				logrus.WithFields(logrus.Fields{
					"job_id":      jobID,
					"attempt":     attempts,
					"poll_errors": pollErrors,
					"error":       err,
				}).Warn("task_manager: poll error")
				if pollErrors >= maxPollErrors {
					return nil, err
				}
				if attempts >= maxAttempts {
					return nil, ErrPollExhausted
				}
				continue
			}
			pollErrors = 0

			logrus.WithFields(logrus.Fields{
				"job_id":  jobID,
				"status":  job.Status,
				"attempt": attempts,
			}).Debug("task_manager: poll status")

			switch job.Status {
			case JobStatusSucceeded:
				return job, nil

			case JobStatusFailed:
				if job.Error != nil {
					return job, job.Error
				}
				return job, errors.New("job failed without error message")

			case JobStatusCancelled:
				return job, errors.New("job was cancelled")

			default:
				if attempts >= maxAttempts {
					return job, ErrPollExhausted
				}

				if config.Backoff {
					newInterval := interval * 2
					if config.BackoffMax > 0 && newInterval > config.BackoffMax {
						newInterval = config.BackoffMax
					}
					if newInterval != interval {
						ticker.Reset(newInterval)
						interval = newInterval
					}
				}
			}
		}
	}
}

// MapJobStatus maps provider-specific status strings to JobStatus.
func MapJobStatus(status string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending", "queued", "in_queue", "created", "starting":
		return JobStatusPending
	case "running", "processing", "in_progress", "started":
		return JobStatusRunning
	case "succeeded", "success", "completed", "done":
		return JobStatusSucceeded
	case "failed", "failure", "error":
		return JobStatusFailed
	case "cancelled", "canceled", "aborted", "stopped":
		return JobStatusCancelled
	default:
		return JobStatusRunning
	}
}

// jobError turns a provider error payload into an error value.
func jobError(raw any) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
