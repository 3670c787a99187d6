package repository

import (
	"database/sql"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

// CallEventRepository persists the audit stream consumed from the queue.
type CallEventRepository struct {
	DB *sql.DB
}

func (r *CallEventRepository) Create(e *model.CallEvent) error {
	query := `
        INSERT INTO call_events
            (campaign_id, target_id, call_id, event_type, status, disposition, error, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		e.CampaignID, e.TargetID, e.CallID, e.EventType, e.Status, e.Disposition, e.Error, e.OccurredAt,
	).Scan(&e.ID)
}
