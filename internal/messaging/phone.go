package messaging

import "strings"

// NormalizePhone canonicalizes a transport identifier to bare E.164.
// Twilio delivers WhatsApp senders as "whatsapp:+8180...", storage keys are
// the bare "+8180..." form. The function is idempotent.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "whatsapp:") {
		value = value[len("whatsapp:"):]
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// WhatsAppAddress adds the transport prefix expected by the Twilio API.
func WhatsAppAddress(phone string) string {
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(phone), "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
