package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/outreachly/voicecampaign-backend/internal/errors"
	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/repository"
	"github.com/outreachly/voicecampaign-backend/internal/service"
	"github.com/outreachly/voicecampaign-backend/internal/vapi"
)

// ===== in-memory repositories =====

type memCampaignRepo struct {
	mu        sync.Mutex
	nextID    int
	campaigns map[int]model.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: map[int]model.Campaign{}}
}

func (r *memCampaignRepo) Create(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	r.campaigns[c.ID] = *c
	return nil
}

func (r *memCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	out := c
	return &out, nil
}

func (r *memCampaignRepo) Update(c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return appErrors.NewCampaignNotFound(c.ID)
	}
	r.campaigns[c.ID] = *c
	return nil
}

func (r *memCampaignRepo) TouchLastRun(id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	stamp := at
	c.LastRunAt = &stamp
	r.campaigns[id] = c
	return nil
}

func (r *memCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status != "" && c.Status != status {
			continue
		}
		out := c
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *memCampaignRepo) ListActive() ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status == model.CampaignActive {
			out := c
			active = append(active, &out)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

type memTargetRepo struct {
	mu      sync.Mutex
	nextID  int
	targets map[int]model.Target
}

func newMemTargetRepo() *memTargetRepo {
	return &memTargetRepo{targets: map[int]model.Target{}}
}

func (r *memTargetRepo) Create(t *model.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	r.targets[t.ID] = *t
	return nil
}

func (r *memTargetRepo) Update(t *model.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[t.ID]; !ok {
		return fmt.Errorf("target %d not found", t.ID)
	}
	r.targets[t.ID] = *t
	return nil
}

func (r *memTargetRepo) UpdateIfStatus(t *model.Target, expectedStatus string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.targets[t.ID]
	if !ok {
		return false, fmt.Errorf("target %d not found", t.ID)
	}
	if stored.Status != expectedStatus {
		return false, nil
	}
	r.targets[t.ID] = *t
	return true, nil
}

func (r *memTargetRepo) GetByID(id int) (*model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[id]
	if !ok {
		return nil, nil
	}
	out := t
	return &out, nil
}

func (r *memTargetRepo) FindByPhone(campaignID int, phone string) (*model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.targets {
		if t.CampaignID == campaignID && t.Phone == phone {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memTargetRepo) FindByCallID(callID string) (*model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Target
	for _, t := range r.targets {
		if t.LastCallID == callID {
			if found == nil || t.ID > found.ID {
				out := t
				found = &out
			}
		}
	}
	return found, nil
}

func (r *memTargetRepo) ListDue(campaignID int, now time.Time, limit int) ([]*model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := []*model.Target{}
	for _, t := range r.targets {
		if t.CampaignID == campaignID && t.Status == model.TargetQueued && !t.NextAttemptAt.After(now) {
			out := t
			due = append(due, &out)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *memTargetRepo) ListStale(before time.Time) ([]*model.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stale := []*model.Target{}
	for _, t := range r.targets {
		if t.Status == model.TargetInProgress && t.LastAttemptAt != nil && t.LastAttemptAt.Before(before) {
			out := t
			stale = append(stale, &out)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale, nil
}

func (r *memTargetRepo) CancelOpen(campaignID int, disposition string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.targets {
		if t.CampaignID == campaignID && (t.Status == model.TargetQueued || t.Status == model.TargetInProgress) {
			t.Status = model.TargetCanceled
			t.LastDisposition = disposition
			completed := now
			t.CompletedAt = &completed
			r.targets[id] = t
			n++
		}
	}
	return n, nil
}

func (r *memTargetRepo) RequeueCanceled(campaignID int, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.targets {
		if t.CampaignID == campaignID && t.Status == model.TargetCanceled {
			t.Status = model.TargetQueued
			t.NextAttemptAt = now
			t.CompletedAt = nil
			r.targets[id] = t
			n++
		}
	}
	return n, nil
}

func (r *memTargetRepo) CountByStatus(campaignID int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{
		model.TargetQueued:     0,
		model.TargetInProgress: 0,
		model.TargetCompleted:  0,
		model.TargetExhausted:  0,
		model.TargetCanceled:   0,
	}
	for _, t := range r.targets {
		if t.CampaignID == campaignID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (r *memTargetRepo) AverageAttempts(campaignID int) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum, n := 0, 0
	for _, t := range r.targets {
		if t.CampaignID == campaignID {
			sum += t.AttemptsMade
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

type memContactRepo struct {
	contacts map[int]model.Contact
}

func (r *memContactRepo) GetByID(id int) (*model.Contact, error) {
	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (r *memContactRepo) ListByFilter(propertyID *int, roles []string) ([]model.Contact, error) {
	roleSet := map[string]bool{}
	for _, role := range roles {
		roleSet[role] = true
	}
	matches := []model.Contact{}
	for _, c := range r.contacts {
		if propertyID != nil && (c.PropertyID == nil || *c.PropertyID != *propertyID) {
			continue
		}
		if len(roleSet) > 0 && !roleSet[c.Role] {
			continue
		}
		matches = append(matches, c)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

type memPropertyRepo struct {
	properties map[int]model.Property
}

func (r *memPropertyRepo) GetByID(id int) (*model.Property, error) {
	p, ok := r.properties[id]
	if !ok {
		return nil, nil
	}
	out := p
	return &out, nil
}

// ===== scripted call placer =====

type placeOutcome struct {
	res *vapi.PlaceCallResult
	err error
}

type fakeCaller struct {
	mu       sync.Mutex
	calls    []vapi.PlaceCallRequest
	script   []placeOutcome
	nextCall int
}

func (f *fakeCaller) queueSuccess(callID string) {
	f.script = append(f.script, placeOutcome{res: &vapi.PlaceCallResult{CallID: callID, Status: "queued"}})
}

func (f *fakeCaller) queueFailure(msg string) {
	f.script = append(f.script, placeOutcome{err: fmt.Errorf("%s", msg)})
}

func (f *fakeCaller) PlaceCall(_ context.Context, req vapi.PlaceCallRequest) (*vapi.PlaceCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.script) > 0 {
		out := f.script[0]
		f.script = f.script[1:]
		return out.res, out.err
	}
	f.nextCall++
	return &vapi.PlaceCallResult{CallID: fmt.Sprintf("call-%d", f.nextCall), Status: "queued"}, nil
}

// callPlacerFunc lets a test inject behavior that runs while a call is
// being placed, such as mutating campaign state mid-dispatch.
type callPlacerFunc func(ctx context.Context, req vapi.PlaceCallRequest) (*vapi.PlaceCallResult, error)

func (fn callPlacerFunc) PlaceCall(ctx context.Context, req vapi.PlaceCallRequest) (*vapi.PlaceCallResult, error) {
	return fn(ctx, req)
}

// ===== event capture =====

type capturePublisher struct {
	mu     sync.Mutex
	events []model.CallEvent
}

func (p *capturePublisher) Publish(event model.CallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// ===== fixture =====

type fixture struct {
	campaigns  *memCampaignRepo
	targets    *memTargetRepo
	contacts   *memContactRepo
	properties *memPropertyRepo
	caller     *fakeCaller
	events     *capturePublisher

	svc        *service.CampaignService
	dispatcher *service.Dispatcher
	webhooks   *service.WebhookService

	now time.Time
}

func newFixture() *fixture {
	f := &fixture{
		campaigns:  newMemCampaignRepo(),
		targets:    newMemTargetRepo(),
		contacts:   &memContactRepo{contacts: map[int]model.Contact{}},
		properties: &memPropertyRepo{properties: map[int]model.Property{}},
		caller:     &fakeCaller{},
		events:     &capturePublisher{},
		now:        time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.svc = &service.CampaignService{
		CampaignRepo: f.campaigns,
		TargetRepo:   f.targets,
		ContactRepo:  f.contacts,
		PropertyRepo: f.properties,
		Now:          clock,
	}
	f.dispatcher = &service.Dispatcher{
		Service: f.svc,
		Caller:  f.caller,
		Events:  f.events,
		Now:     clock,
	}
	f.webhooks = &service.WebhookService{
		Service: f.svc,
		Events:  f.events,
		Now:     clock,
	}
	return f
}

func newTestScheduler(f *fixture) *service.Scheduler {
	return &service.Scheduler{
		Service:    f.svc,
		Dispatcher: f.dispatcher,
		Interval:   time.Minute,
	}
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) property(id int) *int {
	f.properties.properties[id] = model.Property{ID: id, Name: fmt.Sprintf("Property %d", id)}
	return &id
}

// activeCampaign creates and starts a campaign with the given policy.
func (f *fixture) activeCampaign(maxAttempts, retryDelayMinutes, rateLimit int) *model.Campaign {
	c, err := f.svc.CreateCampaign(service.CreateCampaignInput{
		Name:              "spring outreach",
		CallPurpose:       "lease renewal",
		PropertyID:        f.property(1),
		MaxAttempts:       maxAttempts,
		RetryDelayMinutes: retryDelayMinutes,
		RateLimitPerTick:  rateLimit,
	})
	if err != nil {
		panic(err)
	}
	c, err = f.svc.StartCampaign(c.ID)
	if err != nil {
		panic(err)
	}
	return c
}

func (f *fixture) enrollPhones(campaignID int, phones ...string) *service.EnrollmentResult {
	res, err := f.svc.AddTargets(campaignID, service.EnrollmentRequest{RawPhones: phones})
	if err != nil {
		panic(err)
	}
	return res
}

var _ repository.CampaignRepositoryInterface = (*memCampaignRepo)(nil)
var _ repository.TargetRepositoryInterface = (*memTargetRepo)(nil)
var _ repository.ContactRepositoryInterface = (*memContactRepo)(nil)
var _ repository.PropertyRepositoryInterface = (*memPropertyRepo)(nil)
