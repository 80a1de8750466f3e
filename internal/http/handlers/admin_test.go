package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	"github.com/nelo-ai/nelo-bot/internal/users"
)

type fakeMatchRunner struct {
	runs int
	err  error
}

func (f *fakeMatchRunner) RunPass(context.Context) error {
	f.runs++
	return f.err
}

func seedAdminUsers(t *testing.T, repo *users.InMemoryRepository) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []*users.User{
		{Phone: "+1", Name: "Maria", Phase: users.PhaseWaiting, PointsBalance: 100},
		{Phone: "+2", Name: "Ken", Phase: users.PhaseRegistration},
	} {
		if err := repo.Upsert(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestAdminListUsers(t *testing.T) {
	repo := users.NewInMemoryRepository()
	seedAdminUsers(t, repo)
	h := NewAdminHandler(repo, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.ListUsers(rec, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 {
		t.Errorf("total = %d, want 2", body.Total)
	}
}

func TestAdminStats(t *testing.T) {
	ctx := context.Background()
	repo := users.NewInMemoryRepository()
	seedAdminUsers(t, repo)

	apptRepo := appointments.NewInMemoryRepository()
	if err := apptRepo.Create(ctx, &appointments.Appointment{
		User1Phone: "+1", User2Phone: "+2", Status: appointments.StatusConfirmed,
	}); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	logRepo := chatlog.NewInMemoryRepository()
	if err := logRepo.Append(ctx, &chatlog.Entry{Phone: "+1", Direction: chatlog.DirectionInbound, Text: "hi"}); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	h := NewAdminHandler(repo, apptRepo, logRepo, nil, nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	var body struct {
		Total         int            `json:"total"`
		ByPhase       map[string]int `json:"by_phase"`
		Appointments  int            `json:"appointments"`
		MessagesToday int            `json:"messages_today"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || body.ByPhase["registration"] != 1 {
		t.Errorf("stats = %+v, want 2 users with 1 in registration", body)
	}
	if body.Appointments != 1 || body.MessagesToday != 1 {
		t.Errorf("counts = %d appts, %d messages, want 1 and 1", body.Appointments, body.MessagesToday)
	}
}

func TestAdminTriggerMatch(t *testing.T) {
	runner := &fakeMatchRunner{}
	h := NewAdminHandler(users.NewInMemoryRepository(), nil, nil, runner, nil)

	rec := httptest.NewRecorder()
	h.TriggerMatch(rec, httptest.NewRequest(http.MethodPost, "/admin/match", nil))
	if rec.Code != http.StatusOK || runner.runs != 1 {
		t.Errorf("status = %d, runs = %d", rec.Code, runner.runs)
	}

	runner.err = errors.New("boom")
	rec = httptest.NewRecorder()
	h.TriggerMatch(rec, httptest.NewRequest(http.MethodPost, "/admin/match", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failed pass status = %d, want 500", rec.Code)
	}
}

func TestAdminCreditPoints(t *testing.T) {
	repo := users.NewInMemoryRepository()
	seedAdminUsers(t, repo)
	h := NewAdminHandler(repo, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/points/credit",
		strings.NewReader(`{"phone": "+1", "points": 200}`))
	rec := httptest.NewRecorder()
	h.CreditPoints(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	u, _ := repo.GetByPhone(context.Background(), "+1")
	if u.PointsBalance != 300 {
		t.Errorf("balance = %d, want 300", u.PointsBalance)
	}
}

func TestAdminCreditPointsValidation(t *testing.T) {
	h := NewAdminHandler(users.NewInMemoryRepository(), nil, nil, nil, nil)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing phone", `{"points": 10}`, http.StatusBadRequest},
		{"zero points", `{"phone": "+1"}`, http.StatusBadRequest},
		{"unknown user", `{"phone": "+404", "points": 10}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/points/credit", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.CreditPoints(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
