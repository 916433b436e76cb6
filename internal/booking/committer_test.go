package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadbooking_backend/internal/calendar"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/events/eventstest"
	"leadbooking_backend/internal/leads/domain"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"

	"github.com/google/uuid"
)

const tenantYAML = `
tenants:
  - id: acme
    name: Acme Dental
    calendar_id: acme@calendar.test
    timezone: Europe/London
    internal_phone: "+441134960001"
    business_hours:
      monday:
        - {start: "09:00", end: "17:00"}
`

type fakeStore struct {
	active    map[uuid.UUID]Booking
	createErr error
}

func (s *fakeStore) Create(_ context.Context, b Booking) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.active[b.LeadID]; ok {
		return ErrActiveBookingExists
	}
	s.active[b.LeadID] = b
	return nil
}

func (s *fakeStore) GetActiveForLead(_ context.Context, leadID uuid.UUID) (Booking, error) {
	b, ok := s.active[leadID]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

type fakeLeads struct {
	lead   domain.Lead
	booked int
}

func (l *fakeLeads) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	return l.lead, nil
}

func (l *fakeLeads) MarkBooked(_ context.Context, id uuid.UUID) (bool, error) {
	if l.lead.Status == domain.StatusBooked {
		return false, nil
	}
	l.lead.Status = domain.StatusBooked
	l.booked++
	return true, nil
}

type fakeCalendar struct {
	free          bool
	revalidateErr error
	created       []calendar.EventDetails
}

func (c *fakeCalendar) Revalidate(context.Context, string, calendar.Interval) (bool, error) {
	return c.free, c.revalidateErr
}

func (c *fakeCalendar) CreateEvent(_ context.Context, _ string, details calendar.EventDetails) (string, error) {
	c.created = append(c.created, details)
	return "evt-1", nil
}

type fakeSender struct {
	to []string
}

func (s *fakeSender) SendMessage(_ context.Context, to, _ string) (messaging.Receipt, error) {
	s.to = append(s.to, to)
	return messaging.Receipt{Provider: "test"}, nil
}

type fakeQueue struct {
	inserted []retryqueue.InsertParams
	expired  int
}

func (q *fakeQueue) Insert(_ context.Context, p retryqueue.InsertParams) (uuid.UUID, error) {
	q.inserted = append(q.inserted, p)
	return uuid.New(), nil
}

func (q *fakeQueue) ExpirePendingForLead(context.Context, uuid.UUID, []string, string) (int64, error) {
	q.expired++
	return 0, nil
}

func (q *fakeQueue) reasons() []string {
	out := make([]string, 0, len(q.inserted))
	for _, p := range q.inserted {
		out = append(out, p.Reason)
	}
	return out
}

type harness struct {
	committer *Committer
	store     *fakeStore
	leads     *fakeLeads
	calendar  *fakeCalendar
	sender    *fakeSender
	queue     *fakeQueue
	bus       *eventstest.Recorder
	tenant    *tenants.Tenant
	slot      slots.Candidate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := tenants.Parse([]byte(tenantYAML), nil)
	if err != nil {
		t.Fatalf("parse tenants: %v", err)
	}
	tenant, _ := reg.Get("acme")

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := &harness{
		store: &fakeStore{active: map[uuid.UUID]Booking{}},
		leads: &fakeLeads{lead: domain.Lead{
			ID:       uuid.New(),
			TenantID: "acme",
			Phone:    "+447700900123",
			Name:     "Sam Lee",
			Service:  "cleaning",
			Status:   domain.StatusAwaitingReply,
			Attempts: 1,
		}},
		calendar: &fakeCalendar{free: true},
		sender:   &fakeSender{},
		queue:    &fakeQueue{},
		bus:      &eventstest.Recorder{},
		tenant:   tenant,
		slot: slots.Candidate{
			Start: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC),
		},
	}
	h.committer = NewCommitter(Deps{
		Store:    h.store,
		Leads:    h.leads,
		Calendar: h.calendar,
		Sender:   h.sender,
		Queue:    h.queue,
		Bus:      h.bus,
		Now:      func() time.Time { return now },
	})
	return h
}

func (h *harness) request() CommitRequest {
	return CommitRequest{Tenant: h.tenant, LeadID: h.leads.lead.ID, Slot: h.slot}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestCommitBooksFreeSlot(t *testing.T) {
	h := newHarness(t)

	b, err := h.committer.Commit(context.Background(), h.request())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !b.Persisted || b.ExternalEventID != "evt-1" || b.Service != "cleaning" {
		t.Fatalf("unexpected booking %+v", b)
	}
	if h.leads.booked != 1 {
		t.Fatalf("expected lead marked booked once, got %d", h.leads.booked)
	}
	if len(h.sender.to) != 2 || h.sender.to[0] != "+447700900123" || h.sender.to[1] != "+441134960001" {
		t.Fatalf("expected customer and internal confirmation, got %v", h.sender.to)
	}
	reasons := h.queue.reasons()
	if !contains(reasons, retryqueue.ReasonReminder24h) || !contains(reasons, retryqueue.ReasonReminder2h) {
		t.Fatalf("expected both reminders, got %v", reasons)
	}
	if h.queue.expired != 1 {
		t.Fatal("expected pending follow-ups to be expired")
	}
	if !h.bus.Has(events.BookingCommitted{}.EventName()) || !contains(h.bus.States(), events.StateSlotChosen) {
		t.Fatal("expected commit event and SLOT_CHOSEN state")
	}
}

func TestCommitTwiceIsSlotConflict(t *testing.T) {
	h := newHarness(t)

	if _, err := h.committer.Commit(context.Background(), h.request()); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := h.committer.Commit(context.Background(), h.request())
	if !apperr.Is(err, apperr.KindSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if len(h.calendar.created) != 1 {
		t.Fatalf("expected a single external event, got %d", len(h.calendar.created))
	}
}

func TestCommitBusySlotIsSlotConflict(t *testing.T) {
	h := newHarness(t)
	h.calendar.free = false

	_, err := h.committer.Commit(context.Background(), h.request())
	if !apperr.Is(err, apperr.KindSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if len(h.calendar.created) != 0 {
		t.Fatal("no event may be created for a busy slot")
	}
	if !h.bus.Has(events.BookingConflicted{}.EventName()) {
		t.Fatal("expected conflict event")
	}
}

func TestCommitCalendarOutageIsTransient(t *testing.T) {
	h := newHarness(t)
	h.calendar.revalidateErr = apperr.Transient("calendar", errors.New("timeout"))

	_, err := h.committer.Commit(context.Background(), h.request())
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if h.leads.booked != 0 {
		t.Fatal("lead must not be booked on provider failure")
	}
}

func TestCommitPersistFailureQueuesReconcile(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = errors.New("connection reset")

	b, err := h.committer.Commit(context.Background(), h.request())
	if err != nil {
		t.Fatalf("external event exists, commit must succeed: %v", err)
	}
	if b.Persisted {
		t.Fatal("booking must report it was not persisted")
	}
	if !contains(h.queue.reasons(), retryqueue.ReasonReconcileBooking) {
		t.Fatalf("expected reconcile entry, got %v", h.queue.reasons())
	}
}

func TestCommitLosingRaceQueuesOrphanEvent(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = ErrActiveBookingExists

	_, err := h.committer.Commit(context.Background(), h.request())
	if !apperr.Is(err, apperr.KindSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	if !contains(h.queue.reasons(), retryqueue.ReasonReconcileOrphanEvent) {
		t.Fatalf("expected orphan event entry, got %v", h.queue.reasons())
	}
	if h.leads.booked != 0 {
		t.Fatal("losing commit must not mark the lead booked")
	}
}

func TestCommitValidation(t *testing.T) {
	h := newHarness(t)
	req := h.request()
	req.Slot.End = req.Slot.Start

	if _, err := h.committer.Commit(context.Background(), req); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.committer.Commit(context.Background(), CommitRequest{LeadID: uuid.New(), Slot: h.slot}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing tenant, got %v", err)
	}
}

func TestReconcileTreatsSameEventAsDone(t *testing.T) {
	h := newHarness(t)
	b := Booking{ID: uuid.New(), TenantID: "acme", LeadID: h.leads.lead.ID, Slot: h.slot, ExternalEventID: "evt-1"}
	h.store.active[b.LeadID] = b

	if err := h.committer.Reconcile(context.Background(), b); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if h.leads.booked != 1 {
		t.Fatal("reconcile must mark the lead booked")
	}

	other := b
	other.ExternalEventID = "evt-2"
	if err := h.committer.Reconcile(context.Background(), other); err == nil {
		t.Fatal("expected error when the lead holds a booking for another event")
	}
}
