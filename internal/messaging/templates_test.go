package messaging

import (
	"strings"
	"testing"
	"time"

	"leadbooking_backend/internal/slots"
)

func candidateAt(day, hour int) slots.Candidate {
	start := time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
	return slots.Candidate{Start: start, End: start.Add(30 * time.Minute)}
}

func TestSlotOptionsKeysFollowListOrder(t *testing.T) {
	got := SlotOptions([]slots.Candidate{
		candidateAt(3, 10),
		candidateAt(3, 14),
		candidateAt(4, 9),
	}, time.UTC)

	want := "1) Tue 10:00 2) Tue 14:00 3) Wed 09:00 - reply 1, 2 or 3"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSlotOptionsTwoCandidates(t *testing.T) {
	got := SlotOptions([]slots.Candidate{candidateAt(3, 10), candidateAt(3, 14)}, time.UTC)
	if !strings.HasSuffix(got, "- reply 1 or 2") {
		t.Fatalf("unexpected options %q", got)
	}
}

func TestOfferTextGreetsByFirstName(t *testing.T) {
	got := OfferText("Acme Dental", "Sam Smith", []slots.Candidate{candidateAt(3, 10)}, time.UTC)
	if !strings.HasPrefix(got, "Hi Sam,") || !strings.Contains(got, "1) Tue 10:00 - reply 1") {
		t.Fatalf("unexpected offer text %q", got)
	}
}
