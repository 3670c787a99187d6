package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/service"
)

func TestRetryPolicySchedulesRetryWithAttemptsRemaining(t *testing.T) {
	campaign := &model.Campaign{MaxAttempts: 3, RetryDelayMinutes: 60}
	target := &model.Target{Status: model.TargetInProgress, AttemptsMade: 1}
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	outcome := service.ApplyRetryPolicy(campaign, target, "line busy", now)

	assert.Equal(t, service.OutcomeRetry, outcome)
	assert.Equal(t, model.TargetQueued, target.Status)
	assert.Equal(t, now.Add(60*time.Minute), target.NextAttemptAt)
	assert.Equal(t, "retry_scheduled", target.LastDisposition)
	assert.Equal(t, "line busy", target.LastError)
	assert.Nil(t, target.CompletedAt)
	// Attempt accounting belongs to the caller.
	assert.Equal(t, 1, target.AttemptsMade)
}

func TestRetryPolicyExhaustsWhenAttemptsSpent(t *testing.T) {
	campaign := &model.Campaign{MaxAttempts: 3, RetryDelayMinutes: 60}
	target := &model.Target{Status: model.TargetQueued, AttemptsMade: 3}
	now := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	outcome := service.ApplyRetryPolicy(campaign, target, "no answer", now)

	assert.Equal(t, service.OutcomeExhausted, outcome)
	assert.Equal(t, model.TargetExhausted, target.Status)
	assert.Equal(t, "exhausted", target.LastDisposition)
	assert.Equal(t, "no answer", target.LastError)
	require.NotNil(t, target.CompletedAt)
	assert.Equal(t, now, *target.CompletedAt)
}
