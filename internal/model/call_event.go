// internal/model/call_event.go
package model

import "time"

// CallEvent is one row of the call audit stream: every dispatch outcome and
// every reconciled webhook outcome produces one.
type CallEvent struct {
	ID          int       `db:"id" json:"id"`
	CampaignID  int       `db:"campaign_id" json:"campaign_id"`
	TargetID    int       `db:"target_id" json:"target_id"`
	CallID      string    `db:"call_id" json:"call_id,omitempty"`
	EventType   string    `db:"event_type" json:"event_type"`
	Status      string    `db:"status" json:"status"`
	Disposition string    `db:"disposition" json:"disposition,omitempty"`
	Error       string    `db:"error" json:"error,omitempty"`
	OccurredAt  time.Time `db:"occurred_at" json:"occurred_at"`
}
