package handlers

import (
	"net/http"

	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// CalendarHandler runs the Google Calendar OAuth connect flow. The phone
// number rides in the OAuth state parameter so the callback can bind the
// tokens to the right user.
type CalendarHandler struct {
	google  *calendar.GoogleClient
	service *conversation.Service
	logger  *logging.Logger
}

func NewCalendarHandler(google *calendar.GoogleClient, service *conversation.Service, logger *logging.Logger) *CalendarHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CalendarHandler{
		google:  google,
		service: service,
		logger:  logger.Component("calendar_oauth"),
	}
}

// Connect handles GET /api/calendar/connect?phone=..., redirecting to the
// Google consent screen.
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, "calendar integration not configured", http.StatusServiceUnavailable)
		return
	}
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		http.Error(w, "missing phone parameter", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.google.AuthURL(phone), http.StatusFound)
}

// Callback handles GET /api/calendar/callback. On success the conversation
// moves on to the lifestyle question over WhatsApp.
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		http.Error(w, "calendar integration not configured", http.StatusServiceUnavailable)
		return
	}
	code := r.URL.Query().Get("code")
	phone := r.URL.Query().Get("state")
	if code == "" || phone == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	creds, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		http.Error(w, "calendar connection failed", http.StatusBadGateway)
		return
	}
	if err := h.service.CalendarConnected(r.Context(), phone, creds); err != nil {
		h.logger.Error("calendar connect transition failed", "phone", phone, "error", err)
		http.Error(w, "calendar connection failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h2>Calendar connected! 🎉</h2><p>You can close this tab and go back to WhatsApp.</p></body></html>"))
}
