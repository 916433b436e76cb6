package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderBookingNotice(t *testing.T) {
	subject, body, err := renderBookingNotice(BookingNotice{
		TenantName: "Acme Dental",
		LeadName:   "Sam <Smith>",
		LeadPhone:  "+447700900123",
		Service:    "cleaning",
		Start:      time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		EventID:    "evt-1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(subject, "New booking: cleaning on Tue 3 Mar 2026 10:00") {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "evt-1") || !strings.Contains(body, "+447700900123") {
		t.Fatal("body is missing booking details")
	}
	if strings.Contains(body, "<Smith>") {
		t.Fatal("lead name must be html escaped")
	}
}
