// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/outreachly/voicecampaign-backend/internal/errors"
	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/queue"
	"github.com/outreachly/voicecampaign-backend/internal/vapi"
)

// Dispatcher runs one bounded batch of due targets for a campaign.
type Dispatcher struct {
	Service *CampaignService
	Caller  vapi.CallPlacer
	Events  queue.EventPublisher

	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type TickResult struct {
	CampaignID int `json:"campaign_id"`
	Selected   int `json:"selected"`
	Dispatched int `json:"dispatched"`
	Retried    int `json:"retried"`
	Exhausted  int `json:"exhausted"`
}

// TickCampaign selects due targets up to min(requestedMax, rate_limit_per_tick)
// and dispatches them sequentially in (next_attempt_at, id) order. Per-target
// failures are absorbed into the retry policy and never abort the batch. Each
// touched target is persisted individually so one failure cannot roll back the
// rest of the pass.
func (d *Dispatcher) TickCampaign(ctx context.Context, campaign *model.Campaign, requestedMax int) (*TickResult, error) {
	budget := campaign.RateLimitPerTick
	if requestedMax > 0 && requestedMax < budget {
		budget = requestedMax
	}

	now := d.now()
	targets, err := d.Service.TargetRepo.ListDue(campaign.ID, now, budget)
	if err != nil {
		return nil, err
	}

	result := &TickResult{CampaignID: campaign.ID, Selected: len(targets)}

	for _, target := range targets {
		d.dispatchTarget(ctx, campaign, target, result)
	}

	runAt := d.now()
	campaign.LastRunAt = &runAt
	if err := d.Service.CampaignRepo.TouchLastRun(campaign.ID, runAt); err != nil {
		return result, err
	}

	// Completion runs against a fresh row: the campaign may have been paused
	// or canceled while this tick was dispatching.
	fresh, err := d.Service.CampaignRepo.GetByID(campaign.ID)
	if err != nil {
		return result, err
	}
	if _, err := d.Service.EvaluateCompletion(fresh); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Dispatcher) dispatchTarget(ctx context.Context, campaign *model.Campaign, target *model.Target, result *TickResult) {
	now := d.now()

	target.AttemptsMade++
	target.LastAttemptAt = &now
	target.LastError = ""

	propertyID, resolveErr := d.resolveContext(campaign, target)

	var placeErr error
	if resolveErr != nil {
		placeErr = resolveErr
	} else {
		res, err := d.Caller.PlaceCall(ctx, vapi.PlaceCallRequest{
			Phone:           target.Phone,
			Purpose:         campaign.CallPurpose,
			AssistantConfig: campaign.AssistantConfig,
			Metadata: map[string]string{
				"campaign_id":     strconv.Itoa(campaign.ID),
				"target_id":       strconv.Itoa(target.ID),
				"property_id":     strconv.Itoa(propertyID),
				"idempotency_key": uuid.NewString(),
			},
		})
		if err != nil {
			placeErr = err
		} else {
			target.Status = model.TargetInProgress
			target.LastCallID = res.CallID
			target.LastCallStatus = res.Status
			target.LastDisposition = DispositionDialing
		}
	}

	outcome := ""
	if placeErr != nil {
		outcome = ApplyRetryPolicy(campaign, target, placeErr.Error(), now)
		log.Printf("campaign %d target %d: dispatch failed (%s): %v", campaign.ID, target.ID, outcome, placeErr)
	}

	// Optimistic write: the target was selected as queued, so the row must
	// still be queued for this pass to land. A cancel that raced the dispatch
	// owns the row instead.
	ok, err := d.Service.TargetRepo.UpdateIfStatus(target, model.TargetQueued)
	if err != nil {
		log.Printf("campaign %d target %d: persist failed: %v", campaign.ID, target.ID, err)
		return
	}
	if !ok {
		log.Printf("campaign %d target %d: status changed during dispatch, keeping stored row", campaign.ID, target.ID)
		return
	}

	switch outcome {
	case OutcomeRetry:
		result.Retried++
	case OutcomeExhausted:
		result.Exhausted++
	default:
		result.Dispatched++
	}

	d.publishEvent(campaign, target, "dispatch", now)
}

// resolveContext finds the property the call is about: the target's own ref,
// else the campaign default, else the linked contact's property.
func (d *Dispatcher) resolveContext(campaign *model.Campaign, target *model.Target) (int, error) {
	var propertyID *int
	switch {
	case target.PropertyID != nil:
		propertyID = target.PropertyID
	case campaign.PropertyID != nil:
		propertyID = campaign.PropertyID
	case target.ContactID != nil:
		contact, err := d.Service.ContactRepo.GetByID(*target.ContactID)
		if err != nil {
			return 0, err
		}
		if contact != nil {
			propertyID = contact.PropertyID
		}
	}
	if propertyID == nil {
		return 0, fmt.Errorf("no context")
	}
	property, err := d.Service.PropertyRepo.GetByID(*propertyID)
	if err != nil {
		return 0, err
	}
	if property == nil {
		return 0, fmt.Errorf("no context")
	}
	return property.ID, nil
}

func (d *Dispatcher) publishEvent(campaign *model.Campaign, target *model.Target, eventType string, at time.Time) {
	if d.Events == nil {
		return
	}
	err := d.Events.Publish(model.CallEvent{
		CampaignID:  campaign.ID,
		TargetID:    target.ID,
		CallID:      target.LastCallID,
		EventType:   eventType,
		Status:      target.Status,
		Disposition: target.LastDisposition,
		Error:       target.LastError,
		OccurredAt:  at,
	})
	if err != nil {
		log.Println("⚠️ Failed to publish call event:", err)
	}
}

// Scheduler owns the process-wide lock that serializes every dispatch pass.
// An overlapping timer tick and a manually triggered tick can never interleave
// on the same target.
type Scheduler struct {
	mu         sync.Mutex
	Service    *CampaignService
	Dispatcher *Dispatcher
	Interval   time.Duration
	// StaleAfter enables the in_progress staleness sweep; zero disables it.
	StaleAfter time.Duration
}

// Run blocks, scanning active campaigns every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.Printf("scheduler running, scan interval %s", s.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.ScanActiveCampaigns(ctx); err != nil {
				log.Println("⚠️ Scan failed:", err)
			}
		}
	}
}

// ScanActiveCampaigns runs one bounded tick per active campaign, sequentially.
func (s *Scheduler) ScanActiveCampaigns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StaleAfter > 0 {
		s.sweepStale()
	}

	campaigns, err := s.Service.CampaignRepo.ListActive()
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		if _, err := s.Dispatcher.TickCampaign(ctx, c, 0); err != nil {
			log.Printf("campaign %d: tick failed: %v", c.ID, err)
		}
	}
	return nil
}

// TriggerCampaign is the manual entry point; it shares the scan lock.
func (s *Scheduler) TriggerCampaign(ctx context.Context, campaignID, requestedMax int) (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Service.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, appErrors.NewInvalidTransition(campaignID, c.Status, "tick")
	}
	return s.Dispatcher.TickCampaign(ctx, c, requestedMax)
}

// sweepStale routes targets stuck in_progress beyond the window through the
// shared retry policy. Attempts are not re-counted; the stalled dispatch
// already incremented them.
func (s *Scheduler) sweepStale() {
	now := s.Dispatcher.now()
	stale, err := s.Service.TargetRepo.ListStale(now.Add(-s.StaleAfter))
	if err != nil {
		log.Println("⚠️ Stale sweep failed:", err)
		return
	}

	touched := map[int]bool{}
	for _, target := range stale {
		campaign, err := s.Service.CampaignRepo.GetByID(target.CampaignID)
		if err != nil {
			log.Printf("stale target %d: campaign lookup failed: %v", target.ID, err)
			continue
		}
		ApplyRetryPolicy(campaign, target, "stale call timeout", now)
		ok, err := s.Service.TargetRepo.UpdateIfStatus(target, model.TargetInProgress)
		if err != nil {
			log.Printf("stale target %d: persist failed: %v", target.ID, err)
			continue
		}
		if !ok {
			continue
		}
		s.Dispatcher.publishEvent(campaign, target, "stale_sweep", now)
		touched[campaign.ID] = true
	}

	for campaignID := range touched {
		campaign, err := s.Service.CampaignRepo.GetByID(campaignID)
		if err != nil {
			continue
		}
		if _, err := s.Service.EvaluateCompletion(campaign); err != nil {
			log.Printf("campaign %d: completion check failed: %v", campaignID, err)
		}
	}
}
