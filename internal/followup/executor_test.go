package followup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/events/eventstest"
	"leadbooking_backend/internal/leads/domain"
	"leadbooking_backend/internal/leads/leadstest"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/outreach"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"

	"github.com/google/uuid"
)

type stubOutreach struct {
	triggers []outreach.TriggerRequest
	reoffers []outreach.OfferMode
	err      error
}

func (o *stubOutreach) Trigger(_ context.Context, req outreach.TriggerRequest) (outreach.TriggerResult, error) {
	o.triggers = append(o.triggers, req)
	return outreach.TriggerResult{}, o.err
}

func (o *stubOutreach) Reoffer(_ context.Context, _ *tenants.Tenant, _ domain.Lead, mode outreach.OfferMode) ([]slots.Candidate, error) {
	o.reoffers = append(o.reoffers, mode)
	return nil, o.err
}

type stubBookings map[uuid.UUID]booking.Booking

func (s stubBookings) GetByID(_ context.Context, id uuid.UUID) (booking.Booking, error) {
	b, ok := s[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

type stubReconciler struct{ reconciled []booking.Booking }

func (r *stubReconciler) Reconcile(_ context.Context, b booking.Booking) error {
	r.reconciled = append(r.reconciled, b)
	return nil
}

type stubTenants struct{ tenant *tenants.Tenant }

func (s stubTenants) Get(id string) (*tenants.Tenant, error) {
	if id != s.tenant.ID {
		return nil, apperr.NotFound("tenant not found")
	}
	return s.tenant, nil
}

type textLog struct{ bodies []string }

func (l *textLog) SendMessage(_ context.Context, _, body string) (messaging.Receipt, error) {
	l.bodies = append(l.bodies, body)
	return messaging.Receipt{Provider: "test"}, nil
}

type stubQueue struct{ inserted []retryqueue.InsertParams }

func (q *stubQueue) Insert(_ context.Context, p retryqueue.InsertParams) (uuid.UUID, error) {
	q.inserted = append(q.inserted, p)
	return uuid.New(), nil
}

type fixture struct {
	exec       *Executor
	leads      *leadstest.Store
	outreach   *stubOutreach
	bookings   stubBookings
	reconciler *stubReconciler
	texts      *textLog
	queue      *stubQueue
	bus        *eventstest.Recorder
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		leads:      leadstest.New(),
		outreach:   &stubOutreach{},
		bookings:   stubBookings{},
		reconciler: &stubReconciler{},
		texts:      &textLog{},
		queue:      &stubQueue{},
		bus:        &eventstest.Recorder{},
		now:        time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.exec = NewExecutor(Deps{
		Leads:         f.leads,
		Outreach:      f.outreach,
		Bookings:      f.bookings,
		Reconciler:    f.reconciler,
		Tenants:       stubTenants{tenant: &tenants.Tenant{ID: "acme", Name: "Acme Dental"}},
		Sender:        messaging.NewGuardedSender(f.texts, f.leads, false, nil),
		Queue:         f.queue,
		Bus:           f.bus,
		FollowUpDelay: 24 * time.Hour,
		MaxNudges:     2,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) lead(status domain.Status) domain.Lead {
	return f.leads.Add(domain.Lead{TenantID: "acme", Phone: "+447700900123", Name: "Sam", Status: status, Attempts: 1})
}

func entry(t *testing.T, lead domain.Lead, reason string, p retryqueue.Payload) retryqueue.Entry {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return retryqueue.Entry{ID: uuid.New(), TenantID: "acme", LeadID: &lead.ID, Reason: reason, Payload: raw, MaxAttempts: 5}
}

func TestNudgeChainsUntilExpire(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusAwaitingReply)

	if err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpNudge, retryqueue.Payload{})); err != nil {
		t.Fatalf("first nudge: %v", err)
	}
	if len(f.queue.inserted) != 1 || f.queue.inserted[0].Reason != retryqueue.ReasonFollowUpNudge || f.queue.inserted[0].Payload.Nudge != 1 {
		t.Fatalf("expected second nudge, got %+v", f.queue.inserted)
	}
	if !f.queue.inserted[0].ScheduledFor.Equal(f.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected schedule %s", f.queue.inserted[0].ScheduledFor)
	}

	if err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpNudge, f.queue.inserted[0].Payload)); err != nil {
		t.Fatalf("second nudge: %v", err)
	}
	if len(f.queue.inserted) != 2 || f.queue.inserted[1].Reason != retryqueue.ReasonFollowUpExpire {
		t.Fatalf("expected expire after last nudge, got %+v", f.queue.inserted)
	}
	if len(f.outreach.reoffers) != 2 || f.outreach.reoffers[0] != outreach.OfferNudge {
		t.Fatalf("expected two nudge offers, got %v", f.outreach.reoffers)
	}
}

func TestNudgeForBookedLeadIsObsolete(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusBooked)

	err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpNudge, retryqueue.Payload{}))
	if !errors.Is(err, ErrObsolete) {
		t.Fatalf("expected obsolete, got %v", err)
	}
	if len(f.outreach.reoffers) != 0 {
		t.Fatal("booked lead must not be nudged")
	}
}

func TestNudgeProviderFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusAwaitingReply)
	f.outreach.err = apperr.Transient("messaging", errors.New("503"))

	err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpNudge, retryqueue.Payload{}))
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(f.queue.inserted) != 0 {
		t.Fatal("no chain entry after a failed nudge")
	}
}

func TestExpireMovesAwaitingLead(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusAwaitingReply)

	if err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpExpire, retryqueue.Payload{})); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if got := f.leads.Lead(lead.ID).Status; got != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", got)
	}
	states := f.bus.States()
	if len(states) != 1 || states[0] != events.StateExpired {
		t.Fatalf("expected EXPIRED event, got %v", states)
	}
}

func TestRecallTriggersNextAttempt(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusAwaitingReply)

	if err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonFollowUpRecall, retryqueue.Payload{Attempt: 2})); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(f.outreach.triggers) != 1 || f.outreach.triggers[0].Attempt != 2 || f.outreach.triggers[0].Lead.Phone != lead.Phone {
		t.Fatalf("unexpected triggers %+v", f.outreach.triggers)
	}
}

func TestReminderOnlyForActiveBooking(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusBooked)
	start := f.now.Add(24 * time.Hour)
	active := booking.Booking{ID: uuid.New(), LeadID: lead.ID, Status: booking.StatusActive,
		Slot: slots.Candidate{Start: start, End: start.Add(30 * time.Minute)}}
	cancelled := active
	cancelled.ID = uuid.New()
	cancelled.Status = booking.StatusCancelled
	f.bookings[active.ID] = active
	f.bookings[cancelled.ID] = cancelled

	if err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonReminder24h, retryqueue.Payload{BookingID: &active.ID})); err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if len(f.texts.bodies) != 1 || f.texts.bodies[0] != messaging.ReminderText("Acme Dental", active.Slot, time.UTC) {
		t.Fatalf("unexpected reminder %v", f.texts.bodies)
	}

	err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonReminder2h, retryqueue.Payload{BookingID: &cancelled.ID}))
	if !errors.Is(err, ErrObsolete) {
		t.Fatalf("expected obsolete for cancelled booking, got %v", err)
	}
}

func TestReminderToOptedOutLeadIsCompliance(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusBooked)
	start := f.now.Add(2 * time.Hour)
	b := booking.Booking{ID: uuid.New(), LeadID: lead.ID, Status: booking.StatusActive,
		Slot: slots.Candidate{Start: start, End: start.Add(30 * time.Minute)}}
	f.bookings[b.ID] = b
	_ = f.leads.SetOptStatus(context.Background(), lead.Phone, true)

	err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonReminder2h, retryqueue.Payload{BookingID: &b.ID}))
	if !apperr.Is(err, apperr.KindCompliance) {
		t.Fatalf("expected compliance error, got %v", err)
	}
	if len(f.texts.bodies) != 0 {
		t.Fatal("opted-out lead must not be reminded")
	}
}

func TestReconcileBookingPersistsFromPayload(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusAwaitingReply)
	id := uuid.New()
	start := f.now.Add(48 * time.Hour)
	end := start.Add(30 * time.Minute)

	err := f.exec.Execute(context.Background(), entry(t, lead, retryqueue.ReasonReconcileBooking, retryqueue.Payload{
		BookingID: &id, ExternalEventID: "evt-9", SlotStart: &start, SlotEnd: &end,
	}))
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(f.reconciler.reconciled) != 1 || f.reconciler.reconciled[0].ID != id || f.reconciler.reconciled[0].ExternalEventID != "evt-9" {
		t.Fatalf("unexpected reconcile %+v", f.reconciler.reconciled)
	}
}

func TestUnknownReasonIsObsolete(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(domain.StatusNew)

	err := f.exec.Execute(context.Background(), entry(t, lead, "carrier_pigeon", retryqueue.Payload{}))
	if !errors.Is(err, ErrObsolete) {
		t.Fatalf("expected obsolete, got %v", err)
	}
}
