package service

import (
	"context"
	"fmt"

	"github.com/noah-isme/docshare-api/pkg/jobs"
)

type downloadCounter interface {
	IncrementDownloadCount(ctx context.Context, id string) error
}

type accessCounter interface {
	IncrementAccessCount(ctx context.Context, shareID string) error
}

// CounterJobHandler applies counter bumps queued by the document and share services.
func CounterJobHandler(documents downloadCounter, shares accessCounter) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		id, ok := job.Payload.(string)
		if !ok || id == "" {
			return fmt.Errorf("counter job %s: unexpected payload %T", job.ID, job.Payload)
		}
		switch job.Type {
		case JobTypeDownloadCount:
			return documents.IncrementDownloadCount(ctx, id)
		case JobTypeShareAccess:
			return shares.IncrementAccessCount(ctx, id)
		default:
			return fmt.Errorf("counter job %s: unknown type %q", job.ID, job.Type)
		}
	}
}

// ShareSweepJob deletes long-expired shares on a schedule.
type ShareSweepJob struct {
	shares *ShareService
}

// NewShareSweepJob wraps the share service for the cron scheduler.
func NewShareSweepJob(shares *ShareService) *ShareSweepJob {
	return &ShareSweepJob{shares: shares}
}

// Name identifies the job in scheduler logs.
func (j *ShareSweepJob) Name() string { return "share-sweeper" }

// Run performs one sweep.
func (j *ShareSweepJob) Run(ctx context.Context) error {
	_, err := j.shares.SweepExpired(ctx)
	return err
}
