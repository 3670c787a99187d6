// internal/service/campaign_service.go
package service

import (
	"log"
	"time"

	appErrors "github.com/outreachly/voicecampaign-backend/internal/errors"
	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/phone"
	"github.com/outreachly/voicecampaign-backend/internal/repository"
)

// Default dispatch policy applied on create when the caller leaves a field zero.
const (
	DefaultMaxAttempts       = 3
	DefaultRetryDelayMinutes = 60
	DefaultRateLimitPerTick  = 10
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TargetRepo   repository.TargetRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	PropertyRepo repository.PropertyRepositoryInterface

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ====================== Creation / listing ======================

type CreateCampaignInput struct {
	Name              string
	CallPurpose       string
	PropertyID        *int
	ContactRoleFilter string
	MaxAttempts       int
	RetryDelayMinutes int
	RateLimitPerTick  int
	AssistantConfig   model.AssistantConfig
}

func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	c := &model.Campaign{
		Name:              in.Name,
		Status:            model.CampaignDraft,
		CallPurpose:       in.CallPurpose,
		PropertyID:        in.PropertyID,
		ContactRoleFilter: in.ContactRoleFilter,
		MaxAttempts:       in.MaxAttempts,
		RetryDelayMinutes: in.RetryDelayMinutes,
		RateLimitPerTick:  in.RateLimitPerTick,
		AssistantConfig:   in.AssistantConfig,
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelayMinutes <= 0 {
		c.RetryDelayMinutes = DefaultRetryDelayMinutes
	}
	if c.RateLimitPerTick <= 0 {
		c.RateLimitPerTick = DefaultRateLimitPerTick
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(id int) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(id)
}

// ====================== Lifecycle transitions ======================

// StartCampaign activates a campaign. Targets canceled by a previous cancel are
// put back in the queue, immediately due. started_at is stamped only once.
func (s *CampaignService) StartCampaign(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, appErrors.NewInvalidTransition(id, c.Status, "start")
	}

	now := s.now()
	c.Status = model.CampaignActive
	if c.StartedAt == nil {
		c.StartedAt = &now
	}
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}

	requeued, err := s.TargetRepo.RequeueCanceled(id, now)
	if err != nil {
		return nil, err
	}
	if requeued > 0 {
		log.Printf("campaign %d: requeued %d previously canceled targets", id, requeued)
	}
	return c, nil
}

func (s *CampaignService) PauseCampaign(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, appErrors.NewInvalidTransition(id, c.Status, "pause")
	}
	c.Status = model.CampaignPaused
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) ResumeCampaign(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignPaused && c.Status != model.CampaignDraft {
		return nil, appErrors.NewInvalidTransition(id, c.Status, "resume")
	}
	c.Status = model.CampaignActive
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// CancelCampaign terminates the campaign and bulk-cancels every open target.
// In-flight provider calls are not aborted; their webhooks will land on
// already-canceled targets and reconcile as no-ops for campaign progress.
func (s *CampaignService) CancelCampaign(id int) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.IsTerminal() {
		return nil, appErrors.NewInvalidTransition(id, c.Status, "cancel")
	}

	now := s.now()
	c.Status = model.CampaignCanceled
	c.CompletedAt = &now
	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}

	canceled, err := s.TargetRepo.CancelOpen(id, DispositionCampaignCanceled, now)
	if err != nil {
		return nil, err
	}
	log.Printf("campaign %d: canceled with %d open targets", id, canceled)
	return c, nil
}

// ====================== Enrollment ======================

type EnrollmentRequest struct {
	// ContactIDs enrolls specific directory contacts.
	ContactIDs []int
	// FilterPropertyID/FilterRoles expand to contacts matching the filter.
	FilterPropertyID *int
	FilterRoles      []string
	// RawPhones enrolls bare numbers with no contact link.
	RawPhones []string
	// PropertyID is attached to every created target as its own context ref.
	PropertyID *int
}

type EnrollmentResult struct {
	Requested       int `json:"requested"`
	Added           int `json:"added"`
	SkippedExisting int `json:"skipped_existing"`
	SkippedInvalid  int `json:"skipped_invalid"`
}

type enrollmentCandidate struct {
	rawPhone  string
	contactID *int
}

// AddTargets enrolls targets into a campaign. Duplicates by normalized phone
// within the campaign are skipped, never erred; unparseable phones are counted
// as invalid.
func (s *CampaignService) AddTargets(campaignID int, req EnrollmentRequest) (*EnrollmentResult, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}

	candidates := []enrollmentCandidate{}

	for _, id := range req.ContactIDs {
		contact, err := s.ContactRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if contact == nil {
			candidates = append(candidates, enrollmentCandidate{rawPhone: ""})
			continue
		}
		cid := contact.ID
		candidates = append(candidates, enrollmentCandidate{rawPhone: contact.Phone, contactID: &cid})
	}

	if req.FilterPropertyID != nil || len(req.FilterRoles) > 0 {
		contacts, err := s.ContactRepo.ListByFilter(req.FilterPropertyID, req.FilterRoles)
		if err != nil {
			return nil, err
		}
		for _, contact := range contacts {
			cid := contact.ID
			candidates = append(candidates, enrollmentCandidate{rawPhone: contact.Phone, contactID: &cid})
		}
	}

	for _, raw := range req.RawPhones {
		candidates = append(candidates, enrollmentCandidate{rawPhone: raw})
	}

	result := &EnrollmentResult{Requested: len(candidates)}
	now := s.now()

	for _, cand := range candidates {
		normalized, err := phone.Normalize(cand.rawPhone)
		if err != nil {
			result.SkippedInvalid++
			continue
		}

		existing, err := s.TargetRepo.FindByPhone(campaignID, normalized)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			result.SkippedExisting++
			continue
		}

		t := &model.Target{
			CampaignID:    campaignID,
			ContactID:     cand.contactID,
			PropertyID:    req.PropertyID,
			Phone:         normalized,
			Status:        model.TargetQueued,
			NextAttemptAt: now,
			EnrolledAt:    now,
		}
		if err := s.TargetRepo.Create(t); err != nil {
			return nil, err
		}
		result.Added++
	}

	return result, nil
}

// ====================== Completion detection ======================

// EvaluateCompletion transitions an active campaign to completed once no target
// remains queued or in_progress. This is the only route to completed.
func (s *CampaignService) EvaluateCompletion(c *model.Campaign) (bool, error) {
	if c.Status != model.CampaignActive {
		return false, nil
	}
	counts, err := s.TargetRepo.CountByStatus(c.ID)
	if err != nil {
		return false, err
	}
	if counts[model.TargetQueued] > 0 || counts[model.TargetInProgress] > 0 {
		return false, nil
	}

	now := s.now()
	c.Status = model.CampaignCompleted
	c.CompletedAt = &now
	if err := s.CampaignRepo.Update(c); err != nil {
		return false, err
	}
	log.Printf("campaign %d: completed", c.ID)
	return true, nil
}

// ====================== Analytics ======================

type CampaignAnalytics struct {
	CampaignID   int            `json:"campaign_id"`
	StatusCounts map[string]int `json:"status_counts"`
	Total        int            `json:"total"`
	SuccessRate  float64        `json:"success_rate"`
	AvgAttempts  float64        `json:"avg_attempts"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty"`
}

// Analytics is a read-only rollup; it tolerates being interleaved with a
// running tick and may lag by one in-flight batch.
func (s *CampaignService) Analytics(campaignID int) (*CampaignAnalytics, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.TargetRepo.CountByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	avg, err := s.TargetRepo.AverageAttempts(campaignID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	successRate := 0.0
	if total > 0 {
		successRate = float64(counts[model.TargetCompleted]) / float64(total)
	}

	return &CampaignAnalytics{
		CampaignID:   campaignID,
		StatusCounts: counts,
		Total:        total,
		SuccessRate:  successRate,
		AvgAttempts:  avg,
		LastRunAt:    c.LastRunAt,
	}, nil
}
