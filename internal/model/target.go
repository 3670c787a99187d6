// internal/model/target.go
package model

import (
	"encoding/json"
	"time"
)

// Target statuses.
const (
	TargetQueued     = "queued"
	TargetInProgress = "in_progress"
	TargetCompleted  = "completed"
	TargetExhausted  = "exhausted"
	TargetCanceled   = "canceled"
)

// Target is one phone number tracked through its attempt/outcome lifecycle
// within a campaign. Phone is unique per campaign, not globally.
type Target struct {
	ID                 int             `db:"id" json:"id"`
	CampaignID         int             `db:"campaign_id" json:"campaign_id"`
	ContactID          *int            `db:"contact_id" json:"contact_id,omitempty"`
	PropertyID         *int            `db:"property_id" json:"property_id,omitempty"`
	Phone              string          `db:"phone" json:"phone"`
	Status             string          `db:"status" json:"status"`
	AttemptsMade       int             `db:"attempts_made" json:"attempts_made"`
	NextAttemptAt      time.Time       `db:"next_attempt_at" json:"next_attempt_at"`
	LastAttemptAt      *time.Time      `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastCallID         string          `db:"last_call_id" json:"last_call_id,omitempty"`
	LastCallStatus     string          `db:"last_call_status" json:"last_call_status,omitempty"`
	LastDisposition    string          `db:"last_disposition" json:"last_disposition,omitempty"`
	LastError          string          `db:"last_error" json:"last_error,omitempty"`
	LastWebhookPayload json.RawMessage `db:"last_webhook_payload" json:"last_webhook_payload,omitempty"`
	EnrolledAt         time.Time       `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt        *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// IsOpen reports whether the target still counts against campaign completion.
func (t *Target) IsOpen() bool {
	return t.Status == TargetQueued || t.Status == TargetInProgress
}
