package messaging

import (
	"context"
	"strings"
	"testing"
)

func TestTwilioSenderValidatesInput(t *testing.T) {
	s := NewTwilioSender("AC123", "token", "+14155550100", nil)

	if _, err := s.SendMessage(context.Background(), "", "hi"); err == nil {
		t.Error("empty recipient should be rejected")
	}
	if _, err := s.SendMessage(context.Background(), "+14155550101", "   "); err == nil {
		t.Error("blank body should be rejected")
	}

	missing := NewTwilioSender("", "", "+14155550100", nil)
	if _, err := missing.SendMessage(context.Background(), "+14155550101", "hi"); err == nil {
		t.Error("missing credentials should be rejected")
	}
}

func TestFormatTwilioError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"structured", 400, `{"code":21211,"message":"Invalid 'To' number","status":400}`, "status 400 code 21211: Invalid 'To' number"},
		{"message only", 401, `{"message":"Authenticate"}`, "status 401: Authenticate"},
		{"plain text", 500, "upstream broke", "status 500: upstream broke"},
		{"empty body", 503, "", "status 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatTwilioError(tt.status, []byte(tt.body))
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
