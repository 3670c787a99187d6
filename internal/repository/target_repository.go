package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

type TargetRepositoryInterface interface {
	Create(t *model.Target) error
	Update(t *model.Target) error
	UpdateIfStatus(t *model.Target, expectedStatus string) (bool, error)
	GetByID(id int) (*model.Target, error)
	FindByPhone(campaignID int, phone string) (*model.Target, error)
	FindByCallID(callID string) (*model.Target, error)
	ListDue(campaignID int, now time.Time, limit int) ([]*model.Target, error)
	ListStale(before time.Time) ([]*model.Target, error)
	CancelOpen(campaignID int, disposition string, now time.Time) (int, error)
	RequeueCanceled(campaignID int, now time.Time) (int, error)
	CountByStatus(campaignID int) (map[string]int, error)
	AverageAttempts(campaignID int) (float64, error)
}

type TargetRepository struct {
	DB *sql.DB
}

const targetColumns = `id, campaign_id, contact_id, property_id, phone, status, attempts_made,
       next_attempt_at, last_attempt_at, last_call_id, last_call_status, last_disposition,
       last_error, last_webhook_payload, enrolled_at, completed_at`

func scanTarget(row interface{ Scan(...any) error }) (*model.Target, error) {
	t := &model.Target{}
	var payload []byte
	err := row.Scan(
		&t.ID, &t.CampaignID, &t.ContactID, &t.PropertyID, &t.Phone, &t.Status, &t.AttemptsMade,
		&t.NextAttemptAt, &t.LastAttemptAt, &t.LastCallID, &t.LastCallStatus, &t.LastDisposition,
		&t.LastError, &payload, &t.EnrolledAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.LastWebhookPayload = payload
	return t, nil
}

func (r *TargetRepository) Create(t *model.Target) error {
	query := `
        INSERT INTO targets
            (campaign_id, contact_id, property_id, phone, status, attempts_made,
             next_attempt_at, enrolled_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		t.CampaignID, t.ContactID, t.PropertyID, t.Phone, t.Status, t.AttemptsMade,
		t.NextAttemptAt, t.EnrolledAt,
	).Scan(&t.ID)
}

func (r *TargetRepository) Update(t *model.Target) error {
	query := `
        UPDATE targets
        SET status=$1, attempts_made=$2, next_attempt_at=$3, last_attempt_at=$4,
            last_call_id=$5, last_call_status=$6, last_disposition=$7, last_error=$8,
            last_webhook_payload=$9, completed_at=$10
        WHERE id=$11
    `
	_, err := r.DB.Exec(query,
		t.Status, t.AttemptsMade, t.NextAttemptAt, t.LastAttemptAt,
		t.LastCallID, t.LastCallStatus, t.LastDisposition, t.LastError,
		[]byte(t.LastWebhookPayload), t.CompletedAt, t.ID,
	)
	return err
}

// UpdateIfStatus is an optimistic write: it only lands when the stored row
// still carries expectedStatus, so a bulk cancel racing with an in-flight
// dispatch pass wins. Returns false when the row changed underneath.
func (r *TargetRepository) UpdateIfStatus(t *model.Target, expectedStatus string) (bool, error) {
	query := `
        UPDATE targets
        SET status=$1, attempts_made=$2, next_attempt_at=$3, last_attempt_at=$4,
            last_call_id=$5, last_call_status=$6, last_disposition=$7, last_error=$8,
            last_webhook_payload=$9, completed_at=$10
        WHERE id=$11 AND status=$12
    `
	res, err := r.DB.Exec(query,
		t.Status, t.AttemptsMade, t.NextAttemptAt, t.LastAttemptAt,
		t.LastCallID, t.LastCallStatus, t.LastDisposition, t.LastError,
		[]byte(t.LastWebhookPayload), t.CompletedAt, t.ID, expectedStatus,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *TargetRepository) GetByID(id int) (*model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE id=$1`
	t, err := scanTarget(r.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TargetRepository) FindByPhone(campaignID int, phone string) (*model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE campaign_id=$1 AND phone=$2`
	t, err := scanTarget(r.DB.QueryRow(query, campaignID, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// FindByCallID returns the most recently enrolled target correlated with the
// given provider call id, or nil when no target matches.
func (r *TargetRepository) FindByCallID(callID string) (*model.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM targets WHERE last_call_id=$1 ORDER BY id DESC LIMIT 1`
	t, err := scanTarget(r.DB.QueryRow(query, callID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListDue selects queued targets whose next attempt is due, earliest first with
// id as the FIFO tie-break.
func (r *TargetRepository) ListDue(campaignID int, now time.Time, limit int) ([]*model.Target, error) {
	query := `
        SELECT ` + targetColumns + `
        FROM targets
        WHERE campaign_id=$1 AND status=$2 AND next_attempt_at <= $3
        ORDER BY next_attempt_at ASC, id ASC
        LIMIT $4
    `
	rows, err := r.DB.Query(query, campaignID, model.TargetQueued, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := []*model.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// ListStale returns in_progress targets whose last attempt started before the
// cutoff, used by the optional staleness sweep.
func (r *TargetRepository) ListStale(before time.Time) ([]*model.Target, error) {
	query := `
        SELECT ` + targetColumns + `
        FROM targets
        WHERE status=$1 AND last_attempt_at IS NOT NULL AND last_attempt_at < $2
        ORDER BY id ASC
    `
	rows, err := r.DB.Query(query, model.TargetInProgress, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := []*model.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// CancelOpen bulk-transitions every queued/in_progress target of the campaign
// to canceled and returns the number of rows touched.
func (r *TargetRepository) CancelOpen(campaignID int, disposition string, now time.Time) (int, error) {
	query := `
        UPDATE targets
        SET status=$1, last_disposition=$2, completed_at=$3
        WHERE campaign_id=$4 AND status = ANY($5)
    `
	res, err := r.DB.Exec(query, model.TargetCanceled, disposition, now,
		campaignID, pq.Array([]string{model.TargetQueued, model.TargetInProgress}))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RequeueCanceled puts canceled targets back in the queue, immediately due.
func (r *TargetRepository) RequeueCanceled(campaignID int, now time.Time) (int, error) {
	query := `
        UPDATE targets
        SET status=$1, next_attempt_at=$2, completed_at=NULL
        WHERE campaign_id=$3 AND status=$4
    `
	res, err := r.DB.Exec(query, model.TargetQueued, now, campaignID, model.TargetCanceled)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *TargetRepository) CountByStatus(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM targets WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{
		model.TargetQueued:     0,
		model.TargetInProgress: 0,
		model.TargetCompleted:  0,
		model.TargetExhausted:  0,
		model.TargetCanceled:   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *TargetRepository) AverageAttempts(campaignID int) (float64, error) {
	var avg sql.NullFloat64
	query := `SELECT AVG(attempts_made) FROM targets WHERE campaign_id=$1`
	if err := r.DB.QueryRow(query, campaignID).Scan(&avg); err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

var _ TargetRepositoryInterface = (*TargetRepository)(nil)
