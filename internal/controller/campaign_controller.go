// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appErrors "github.com/outreachly/voicecampaign-backend/internal/errors"
	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Scheduler       *service.Scheduler
	Validate        *validator.Validate
}

func NewCampaignController(svc *service.CampaignService, sched *service.Scheduler) *CampaignController {
	return &CampaignController{
		CampaignService: svc,
		Scheduler:       sched,
		Validate:        validator.New(),
	}
}

func writeError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	var invalid *appErrors.ErrInvalidTransition
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func campaignID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name              string                `json:"name" validate:"required"`
		CallPurpose       string                `json:"call_purpose" validate:"required"`
		PropertyID        *int                  `json:"property_id"`
		ContactRoleFilter string                `json:"contact_role_filter"`
		MaxAttempts       int                   `json:"max_attempts" validate:"gte=0,lte=10"`
		RetryDelayMinutes int                   `json:"retry_delay_minutes" validate:"gte=0"`
		RateLimitPerTick  int                   `json:"rate_limit_per_tick" validate:"gte=0,lte=100"`
		AssistantConfig   model.AssistantConfig `json:"assistant_config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(service.CreateCampaignInput{
		Name:              body.Name,
		CallPurpose:       body.CallPurpose,
		PropertyID:        body.PropertyID,
		ContactRoleFilter: body.ContactRoleFilter,
		MaxAttempts:       body.MaxAttempts,
		RetryDelayMinutes: body.RetryDelayMinutes,
		RateLimitPerTick:  body.RateLimitPerTick,
		AssistantConfig:   body.AssistantConfig,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.GetCampaign(id)
	if err != nil {
		writeError(w, err)
		return
	}
	analytics, err := c.CampaignService.Analytics(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign":  campaign,
		"analytics": analytics,
	})
}

func (c *CampaignController) lifecycle(w http.ResponseWriter, r *http.Request, action func(int) (*model.Campaign, error)) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := action(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.StartCampaign)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.PauseCampaign)
}

func (c *CampaignController) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.ResumeCampaign)
}

func (c *CampaignController) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.CampaignService.CancelCampaign)
}

func (c *CampaignController) AddTargets(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	var body struct {
		ContactIDs       []int    `json:"contact_ids"`
		FilterPropertyID *int     `json:"filter_property_id"`
		FilterRoles      []string `json:"filter_roles" validate:"dive,required"`
		RawPhones        []string `json:"raw_phones"`
		PropertyID       *int     `json:"property_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := c.CampaignService.AddTargets(id, service.EnrollmentRequest{
		ContactIDs:       body.ContactIDs,
		FilterPropertyID: body.FilterPropertyID,
		FilterRoles:      body.FilterRoles,
		RawPhones:        body.RawPhones,
		PropertyID:       body.PropertyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// TriggerTick runs one manual bounded tick, sharing the scheduler lock.
func (c *CampaignController) TriggerTick(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}
	maxCalls, _ := strconv.Atoi(r.URL.Query().Get("max"))

	result, err := c.Scheduler.TriggerCampaign(r.Context(), id, maxCalls)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (c *CampaignController) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		http.Error(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	analytics, err := c.CampaignService.Analytics(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(analytics)
}
