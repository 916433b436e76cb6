package domain

import (
	"testing"
	"time"

	"leadbooking_backend/internal/slots"

	"github.com/google/uuid"
)

func TestOfferChoose(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	first := slots.Candidate{Start: now.Add(time.Hour), End: now.Add(90 * time.Minute)}
	second := slots.Candidate{Start: now.Add(2 * time.Hour), End: now.Add(150 * time.Minute)}
	offer := NewOffer(Lead{ID: uuid.New(), TenantID: "acme"}, []slots.Candidate{first, second}, now, time.Hour)

	got, ok := offer.Choose(2, now.Add(time.Minute))
	if !ok || !got.Start.Equal(second.Start) {
		t.Fatalf("expected second slot, got %v %v", got, ok)
	}
	if _, ok := offer.Choose(3, now); ok {
		t.Fatal("key beyond offer length must not resolve")
	}
	if _, ok := offer.Choose(0, now); ok {
		t.Fatal("key 0 must not resolve")
	}
	if _, ok := offer.Choose(1, now.Add(time.Hour)); ok {
		t.Fatal("expired offer must not resolve")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusBooked, StatusOptedOut, StatusExpired} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range OutreachStatuses {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
