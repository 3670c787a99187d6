// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/outreachly/voicecampaign-backend/internal/controller"
	"github.com/outreachly/voicecampaign-backend/internal/db"
	"github.com/outreachly/voicecampaign-backend/internal/handler"
	"github.com/outreachly/voicecampaign-backend/internal/model"
	"github.com/outreachly/voicecampaign-backend/internal/queue"
	"github.com/outreachly/voicecampaign-backend/internal/repository"
	"github.com/outreachly/voicecampaign-backend/internal/service"
	"github.com/outreachly/voicecampaign-backend/internal/vapi"
)

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	targetRepo := &repository.TargetRepository{DB: db.DB}
	contactRepo := &repository.ContactRepository{DB: db.DB}
	propertyRepo := &repository.PropertyRepository{DB: db.DB}

	var events queue.EventPublisher
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		pub, err := queue.NewAMQPPublisher(amqpURL)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer pub.Close()
		events = pub
	} else {
		log.Println("⚠️ AMQP_URL not set, call events stay in-process")
		mem := queue.NewInMemoryPublisher()
		mem.Subscribe(func(e model.CallEvent) {
			log.Printf("call event: campaign=%d target=%d type=%s status=%s disposition=%s",
				e.CampaignID, e.TargetID, e.EventType, e.Status, e.Disposition)
		})
		events = mem
	}

	rateLimit, _ := strconv.ParseFloat(os.Getenv("VAPI_RATE_LIMIT_PER_SECOND"), 64)
	caller := vapi.NewClient(os.Getenv("VAPI_BASE_URL"), os.Getenv("VAPI_API_KEY"), rateLimit)

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		TargetRepo:   targetRepo,
		ContactRepo:  contactRepo,
		PropertyRepo: propertyRepo,
	}
	dispatcher := &service.Dispatcher{
		Service: campaignService,
		Caller:  caller,
		Events:  events,
	}
	scheduler := &service.Scheduler{
		Service:    campaignService,
		Dispatcher: dispatcher,
		Interval:   time.Duration(envInt("SCAN_INTERVAL_SECONDS", 60)) * time.Second,
		StaleAfter: time.Duration(envInt("STALE_CALL_TIMEOUT_MINUTES", 0)) * time.Minute,
	}
	webhookService := &service.WebhookService{
		Service: campaignService,
		Events:  events,
	}

	campaignController := controller.NewCampaignController(campaignService, scheduler)
	webhookHandler := &handler.WebhookHandler{Webhooks: webhookService}

	go scheduler.Run(context.Background())

	r := chi.NewRouter()

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/targets", campaignController.AddTargets)
	r.Post("/campaigns/{id}/tick", campaignController.TriggerTick)
	r.Get("/campaigns/{id}/analytics", campaignController.GetAnalytics)
	r.Post("/webhooks/vapi", webhookHandler.HandleProviderEvent)

	log.Println("🚀 Server running on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
