// internal/service/webhook_service.go
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/queue"
)

// Reconciliation results.
const (
	ReconcileUnmatched   = "unmatched"
	ReconcileNonTerminal = "non_terminal"
	ReconcileRetry       = "retry"
	ReconcileExhausted   = "exhausted"
	ReconcileCompleted   = "completed"
)

// ProviderEvent is the fixed internal shape every inbound webhook is reduced
// to. The reconciler never branches on provider payload structure, only on
// these fields.
type ProviderEvent struct {
	CallID      string
	CallStatus  string
	EndedReason string
	EventType   string
	TargetID    int
	Raw         json.RawMessage
}

// WebhookService maps inbound provider events onto targets and advances state.
type WebhookService struct {
	Service *CampaignService
	Events  queue.EventPublisher

	Now func() time.Time
}

func (s *WebhookService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ErrMalformedEvent marks a payload that cannot be parsed at all, as opposed
// to a transient processing failure. Callers use it to decide whether asking
// the provider to redeliver makes sense.
var ErrMalformedEvent = errors.New("malformed provider event")

// ExtractEvent normalizes a loosely-typed provider payload. Known nestings are
// top-level, call.*, and message.call.*; the correlation target id rides in an
// opaque per-call metadata map when present.
func ExtractEvent(raw []byte) (*ProviderEvent, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	root := payload
	if m, ok := payload["message"].(map[string]any); ok {
		root = m
	}

	call, _ := root["call"].(map[string]any)
	if call == nil {
		call = root
	}

	ev := &ProviderEvent{
		EventType:   firstString(root["type"], payload["type"], root["event"]),
		CallID:      firstString(call["id"], root["callId"], root["call_id"]),
		CallStatus:  firstString(root["status"], call["status"]),
		EndedReason: firstString(root["endedReason"], call["endedReason"], root["ended_reason"], call["ended_reason"]),
		Raw:         raw,
	}

	if metadata, ok := call["metadata"].(map[string]any); ok {
		ev.TargetID = intFromAny(metadata["target_id"])
	}

	return ev, nil
}

func firstString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err == nil {
			return i
		}
	}
	return 0
}

// ProcessEvent reconciles one inbound provider event. Unmatched events mutate
// nothing, which makes duplicate and foreign webhooks safe to replay.
func (s *WebhookService) ProcessEvent(raw []byte) (string, error) {
	ev, err := ExtractEvent(raw)
	if err != nil {
		return "", err
	}

	target, err := s.matchTarget(ev)
	if err != nil {
		return "", err
	}
	if target == nil {
		log.Printf("webhook: unmatched event (call %q, type %q)", ev.CallID, ev.EventType)
		return ReconcileUnmatched, nil
	}

	campaign, err := s.Service.CampaignRepo.GetByID(target.CampaignID)
	if err != nil {
		return "", err
	}

	// Audit fields are recorded regardless of how the event classifies.
	target.LastWebhookPayload = ev.Raw
	if ev.CallStatus != "" {
		target.LastCallStatus = ev.CallStatus
	}
	if target.LastCallID == "" && ev.CallID != "" {
		target.LastCallID = ev.CallID
	}

	now := s.now()
	result := s.classify(campaign, target, ev, now)

	if err := s.Service.TargetRepo.Update(target); err != nil {
		return "", err
	}

	if result != ReconcileNonTerminal {
		s.publishEvent(campaign, target, ev, now)
	}
	if _, err := s.Service.EvaluateCompletion(campaign); err != nil {
		return result, err
	}
	return result, nil
}

func (s *WebhookService) matchTarget(ev *ProviderEvent) (*model.Target, error) {
	if ev.TargetID > 0 {
		target, err := s.Service.TargetRepo.GetByID(ev.TargetID)
		if err != nil || target != nil {
			return target, err
		}
	}
	if ev.CallID != "" {
		return s.Service.TargetRepo.FindByCallID(ev.CallID)
	}
	return nil, nil
}

// inFlightStatuses are provider call statuses that mean the call is still
// running; events carrying them never change target status.
var inFlightStatuses = map[string]bool{
	"queued":      true,
	"ringing":     true,
	"in-progress": true,
	"in_progress": true,
	"active":      true,
}

var terminalStatusHints = []string{"ended", "completed", "busy", "no-answer", "failed", "canceled", "voicemail"}

var terminalEventHints = []string{"ended", "end-of-call", "completed", "hangup", "hang-up"}

// failureVocabulary marks a terminal call outcome as unsuccessful.
var failureVocabulary = []string{
	"busy", "no-answer", "voicemail", "failed", "error",
	"canceled", "rejected", "timeout", "unanswered",
}

func (s *WebhookService) classify(campaign *model.Campaign, target *model.Target, ev *ProviderEvent, now time.Time) string {
	// A target already in a terminal state only gets its audit fields updated;
	// late webhooks after a cancel or a duplicate completion change nothing.
	if !target.IsOpen() {
		return ReconcileNonTerminal
	}

	// A queued target whose last retry was scheduled off this same call has
	// already absorbed this outcome; a duplicate delivery must not push
	// next_attempt_at out again.
	if target.Status == model.TargetQueued && ev.CallID != "" &&
		ev.CallID == target.LastCallID && target.LastDisposition == DispositionRetryScheduled {
		return ReconcileNonTerminal
	}

	status := strings.ToLower(ev.CallStatus)
	if inFlightStatuses[status] {
		return ReconcileNonTerminal
	}

	if !isTerminalEvent(ev) {
		return ReconcileNonTerminal
	}

	if reason, failed := failureReason(ev); failed {
		outcome := ApplyRetryPolicy(campaign, target, fmt.Sprintf("call ended: %s", reason), now)
		if outcome == OutcomeRetry {
			return ReconcileRetry
		}
		return ReconcileExhausted
	}

	completedAt := now
	target.Status = model.TargetCompleted
	target.CompletedAt = &completedAt
	target.LastDisposition = DispositionCompleted
	target.LastError = ""
	return ReconcileCompleted
}

func isTerminalEvent(ev *ProviderEvent) bool {
	if ev.EndedReason != "" {
		return true
	}
	status := strings.ToLower(ev.CallStatus)
	for _, hint := range terminalStatusHints {
		if status == hint {
			return true
		}
	}
	eventType := strings.ToLower(ev.EventType)
	for _, hint := range terminalEventHints {
		if strings.Contains(eventType, hint) {
			return true
		}
	}
	return false
}

// failureReason checks endedReason then callStatus against the failure
// vocabulary; separators are normalized so "no_answer" matches "no-answer".
func failureReason(ev *ProviderEvent) (string, bool) {
	for _, field := range []string{ev.EndedReason, ev.CallStatus} {
		if field == "" {
			continue
		}
		normalized := strings.ReplaceAll(strings.ToLower(field), "_", "-")
		for _, word := range failureVocabulary {
			if strings.Contains(normalized, word) {
				return field, true
			}
		}
	}
	return "", false
}

func (s *WebhookService) publishEvent(campaign *model.Campaign, target *model.Target, ev *ProviderEvent, at time.Time) {
	if s.Events == nil {
		return
	}
	eventType := ev.EventType
	if eventType == "" {
		eventType = "webhook"
	}
	err := s.Events.Publish(model.CallEvent{
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
