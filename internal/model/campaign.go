// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Campaign statuses.
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignCanceled  = "canceled"
)

// AssistantConfig is the versioned assistant/override blob passed to the voice
// provider on every call. Core fields are typed; Extra carries provider-specific
// passthrough values verbatim.
type AssistantConfig struct {
	Version      int            `json:"version"`
	Voice        string         `json:"voice,omitempty"`
	FirstMessage string         `json:"first_message,omitempty"`
	Model        string         `json:"model,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Value implements driver.Valuer so the config can be stored as JSONB.
func (a AssistantConfig) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AssistantConfig) Scan(src any) error {
	if src == nil {
		*a = AssistantConfig{}
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("assistant config: cannot scan %T", src)
	}
	return json.Unmarshal(b, a)
}

type Campaign struct {
	ID                int             `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	Status            string          `db:"status" json:"status"`
	CallPurpose       string          `db:"call_purpose" json:"call_purpose"`
	PropertyID        *int            `db:"property_id" json:"property_id,omitempty"`
	ContactRoleFilter string          `db:"contact_role_filter" json:"contact_role_filter,omitempty"`
	MaxAttempts       int             `db:"max_attempts" json:"max_attempts"`
	RetryDelayMinutes int             `db:"retry_delay_minutes" json:"retry_delay_minutes"`
	RateLimitPerTick  int             `db:"rate_limit_per_tick" json:"rate_limit_per_tick"`
	AssistantConfig   AssistantConfig `db:"assistant_config" json:"assistant_config"`
	LastRunAt         *time.Time      `db:"last_run_at" json:"last_run_at,omitempty"`
	StartedAt         *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// RetryDelay returns the fixed per-campaign retry interval.
func (c *Campaign) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// IsTerminal reports whether no further dispatch may happen for this campaign.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignCanceled
}
