// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/outreachly/voicecampaign-backend/internal/service"
)

// WebhookHandler accepts inbound provider events. It always answers 200 for
// well-formed payloads, including unmatched ones, so the provider never enters
// a redelivery storm over events we deliberately ignore.
type WebhookHandler struct {
	Webhooks *service.WebhookService
}

func (h *WebhookHandler) HandleProviderEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	result, err := h.Webhooks.ProcessEvent(body)
	if err != nil {
		// A payload we cannot parse will never parse on redelivery; answer
		// 400 so the provider drops it instead of retrying forever. 500 asks
		// for redelivery, which is safe because unmatched and duplicate
		// events reconcile as no-ops.
		if errors.Is(err, service.ErrMalformedEvent) {
			log.Println("⚠️ Rejecting malformed webhook payload:", err)
			http.Error(w, "malformed event payload", http.StatusBadRequest)
			return
		}
		log.Println("⚠️ Webhook processing failed:", err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"result": result})
}
