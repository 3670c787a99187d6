// internal/service/retry.go
package service

import (
	"time"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

// Retry outcomes.
const (
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

// Dispositions recorded on targets.
const (
	DispositionDialing          = "dialing"
	DispositionRetryScheduled   = "retry_scheduled"
	DispositionExhausted        = "exhausted"
	DispositionCompleted        = "completed"
	DispositionCampaignCanceled = "campaign_canceled"
)

// ApplyRetryPolicy is the shared decision for a failed call attempt. It mutates
// the target in place and returns the outcome. It never touches attempts_made;
// attempt accounting belongs to the dispatch step.
func ApplyRetryPolicy(campaign *model.Campaign, target *model.Target, errorMessage string, now time.Time) string {
	if campaign.MaxAttempts-target.AttemptsMade > 0 {
		target.Status = model.TargetQueued
		target.NextAttemptAt = now.Add(campaign.RetryDelay())
		target.LastDisposition = DispositionRetryScheduled
		target.LastError = errorMessage
		return OutcomeRetry
	}

	completedAt := now
	target.Status = model.TargetExhausted
	target.CompletedAt = &completedAt
	target.LastDisposition = DispositionExhausted
	target.LastError = errorMessage
	return OutcomeExhausted
}
