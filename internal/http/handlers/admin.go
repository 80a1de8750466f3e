package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// MatchRunner triggers one matching pass on demand.
type MatchRunner interface {
	RunPass(ctx context.Context) error
}

// AdminHandler serves the operator endpoints behind JWT auth.
type AdminHandler struct {
	users   users.Repository
	appts   appointments.Repository
	log     chatlog.Repository
	matcher MatchRunner
	logger  *logging.Logger
}

func NewAdminHandler(repo users.Repository, appts appointments.Repository, log chatlog.Repository, matcher MatchRunner, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{
		users:   repo,
		appts:   appts,
		log:     log,
		matcher: matcher,
		logger:  logger.Component("admin"),
	}
}

type adminUserView struct {
	Phone          string    `json:"phone"`
	Name           string    `json:"name"`
	TargetLanguage string    `json:"target_language"`
	NativeLanguage string    `json:"native_language"`
	Level          string    `json:"level"`
	Phase          string    `json:"phase"`
	PointsBalance  int       `json:"points_balance"`
	TrustScore     int       `json:"trust_score"`
	CalendarLinked bool      `json:"calendar_linked"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list users failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]adminUserView, 0, len(all))
	for _, u := range all {
		views = append(views, adminUserView{
			Phone:          u.Phone,
			Name:           u.Name,
			TargetLanguage: u.TargetLanguage,
			NativeLanguage: u.NativeLanguage,
			Level:          string(u.Level),
			Phase:          string(u.Phase),
			PointsBalance:  u.PointsBalance,
			TrustScore:     u.TrustScore,
			CalendarLinked: u.Calendar.Connected(),
			CreatedAt:      u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views, "total": len(views)})
}

// Stats handles GET /admin/stats with per-phase population counts, total
// appointments booked, and today's message volume.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.ListAll(r.Context())
	if err != nil {
		h.logger.Error("stats failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	byPhase := make(map[string]int)
	connected := 0
	for _, u := range all {
		byPhase[string(u.Phase)]++
		if u.Calendar.Connected() {
			connected++
		}
	}

	apptCount := 0
	if h.appts != nil {
		if apptCount, err = h.appts.Count(r.Context()); err != nil {
			h.logger.Error("appointment count failed", "error", err)
		}
	}
	messagesToday := 0
	if h.log != nil {
		if messagesToday, err = h.log.TodayTotalCount(r.Context()); err != nil {
			h.logger.Error("message count failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":              len(all),
		"by_phase":           byPhase,
		"calendar_connected": connected,
		"appointments":       apptCount,
		"messages_today":     messagesToday,
	})
}

// TriggerMatch handles POST /admin/match, running one synchronous pass.
func (h *AdminHandler) TriggerMatch(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		http.Error(w, "matching not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.matcher.RunPass(r.Context()); err != nil {
		h.logger.Error("manual matching pass failed", "error", err)
		http.Error(w, "matching pass failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type creditRequest struct {
	Phone  string `json:"phone"`
	Points int    `json:"points"`
}

// CreditPoints handles POST /admin/points/credit.
func (h *AdminHandler) CreditPoints(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Points == 0 {
		http.Error(w, "phone and non-zero points required", http.StatusBadRequest)
		return
	}
	if err := h.users.CreditPoints(r.Context(), req.Phone, req.Points); err != nil {
		if err == users.ErrNotFound {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("credit points failed", "phone", req.Phone, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("points credited", "phone", req.Phone, "points", req.Points)
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
