package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/messaging"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

var webhookTracer = otel.Tracer("nelo.internal.http.webhook")

// turnTimeout bounds one full conversation turn, model calls included.
const turnTimeout = 90 * time.Second

// WebhookHandler accepts inbound WhatsApp messages from Twilio.
type WebhookHandler struct {
	service   *conversation.Service
	authToken string
	logger    *logging.Logger
}

// NewWebhookHandler builds the handler. An empty authToken disables
// signature validation (local development).
func NewWebhookHandler(service *conversation.Service, authToken string, logger *logging.Logger) *WebhookHandler {
	if service == nil {
		panic("handlers: conversation service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		service:   service,
		authToken: authToken,
		logger:    logger.Component("webhook"),
	}
}

// Handle processes POST /webhooks/twilio/whatsapp. The turn runs detached
// from the request so Twilio gets its ack within its timeout; replies go
// out through the dispatcher, not the webhook response.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	_, span := webhookTracer.Start(r.Context(), "http.webhook.inbound")
	defer span.End()

	if h.authToken != "" {
		if !messaging.ValidateTwilioSignature(r, h.authToken, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature", "remote_ip", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	from := r.FormValue("From")
	body := r.FormValue("Body")
	if from == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("nelo.from", messaging.NormalizePhone(from)))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		if err := h.service.HandleInboundMessage(ctx, from, body); err != nil {
			h.logger.Error("inbound turn failed", "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
