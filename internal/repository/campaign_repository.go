package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/outreachly/voicecampaign-backend/internal/errors"
	"github.com/outreachly/voicecampaign-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	Update(c *model.Campaign) error
	TouchLastRun(id int, at time.Time) error
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	ListActive() ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, status, call_purpose, property_id, contact_role_filter,
       max_attempts, retry_delay_minutes, rate_limit_per_tick, assistant_config,
       last_run_at, started_at, completed_at, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
        INSERT INTO campaigns
            (name, status, call_purpose, property_id, contact_role_filter,
             max_attempts, retry_delay_minutes, rate_limit_per_tick, assistant_config, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.Status, c.CallPurpose, c.PropertyID, c.ContactRoleFilter,
		c.MaxAttempts, c.RetryDelayMinutes, c.RateLimitPerTick, c.AssistantConfig, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, status=$2, call_purpose=$3, property_id=$4, contact_role_filter=$5,
            max_attempts=$6, retry_delay_minutes=$7, rate_limit_per_tick=$8, assistant_config=$9,
            last_run_at=$10, started_at=$11, completed_at=$12, updated_at=NOW()
        WHERE id=$13
    `
	_, err := r.DB.Exec(query,
		c.Name, c.Status, c.CallPurpose, c.PropertyID, c.ContactRoleFilter,
		c.MaxAttempts, c.RetryDelayMinutes, c.RateLimitPerTick, c.AssistantConfig,
		c.LastRunAt, c.StartedAt, c.CompletedAt, c.ID,
	)
	return err
}

// TouchLastRun stamps last_run_at without writing back any other column, so a
// concurrent lifecycle transition is never overwritten by a finishing tick.
func (r *CampaignRepository) TouchLastRun(id int, at time.Time) error {
	query := `UPDATE campaigns SET last_run_at=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, at, id)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c := &model.Campaign{}
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.Name, &c.Status, &c.CallPurpose, &c.PropertyID, &c.ContactRoleFilter,
		&c.MaxAttempts, &c.RetryDelayMinutes, &c.RateLimitPerTick, &c.AssistantConfig,
		&c.LastRunAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Status, &c.CallPurpose, &c.PropertyID, &c.ContactRoleFilter,
			&c.MaxAttempts, &c.RetryDelayMinutes, &c.RateLimitPerTick, &c.AssistantConfig,
			&c.LastRunAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) ListActive() ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id ASC`
	rows, err := r.DB.Query(query, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Status, &c.CallPurpose, &c.PropertyID, &c.ContactRoleFilter,
			&c.MaxAttempts, &c.RetryDelayMinutes, &c.RateLimitPerTick, &c.AssistantConfig,
			&c.LastRunAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
