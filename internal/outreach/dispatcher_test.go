package outreach

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/calendar"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/events/eventstest"
	"leadbooking_backend/internal/leads/domain"
	"leadbooking_backend/internal/leads/leadstest"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/internal/voice"
	"leadbooking_backend/platform/apperr"

	"github.com/google/uuid"
)

const tenantYAML = `
tenants:
  - id: acme
    name: Acme Dental
    calendar_id: acme@calendar.test
    timezone: Europe/London
    phone_numbers: ["+441134960000"]
    default_duration: 30m
    business_hours:
      monday:
        - {start: "09:00", end: "12:00"}
    credentials:
      voice_agent_id: agent-1
`

const leadPhone = "+447700900123"

type stubConfig struct{ failClosed bool }

func (stubConfig) GetCallTimeout() time.Duration   { return time.Second }
func (stubConfig) GetOfferTTL() time.Duration      { return 72 * time.Hour }
func (stubConfig) GetSlotHorizon() time.Duration   { return 7 * 24 * time.Hour }
func (stubConfig) GetFollowUpDelay() time.Duration { return 24 * time.Hour }
func (stubConfig) GetDefaultPhoneRegion() string   { return "GB" }
func (c stubConfig) GetOptOutFailClosed() bool     { return c.failClosed }

type stubCalendar struct {
	busy []calendar.Interval
	err  error
}

func (c stubCalendar) FreeBusy(context.Context, string, time.Time, time.Time) ([]calendar.Interval, error) {
	return c.busy, c.err
}

type stubVoice struct {
	callID   string
	err      error
	requests []voice.CallRequest
}

func (v *stubVoice) PlaceCall(_ context.Context, req voice.CallRequest) (string, error) {
	v.requests = append(v.requests, req)
	return v.callID, v.err
}

type sentMessage struct{ to, body string }

type stubSender struct {
	sent []sentMessage
	err  error
}

func (s *stubSender) SendMessage(_ context.Context, to, body string) (messaging.Receipt, error) {
	if s.err != nil {
		return messaging.Receipt{}, s.err
	}
	s.sent = append(s.sent, sentMessage{to, body})
	return messaging.Receipt{Provider: "test"}, nil
}

type stubQueue struct{ inserted []retryqueue.InsertParams }

func (q *stubQueue) Insert(_ context.Context, p retryqueue.InsertParams) (uuid.UUID, error) {
	q.inserted = append(q.inserted, p)
	return uuid.New(), nil
}

func (q *stubQueue) only(t *testing.T, reason string) retryqueue.InsertParams {
	t.Helper()
	if len(q.inserted) != 1 || q.inserted[0].Reason != reason {
		t.Fatalf("expected a single %s entry, got %+v", reason, q.inserted)
	}
	return q.inserted[0]
}

type stubCommitter struct {
	requests []booking.CommitRequest
	err      error
}

func (c *stubCommitter) Commit(_ context.Context, req booking.CommitRequest) (booking.Booking, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return booking.Booking{}, c.err
	}
	return booking.Booking{ID: uuid.New(), Slot: req.Slot, Persisted: true}, nil
}

type fixture struct {
	dispatcher *Dispatcher
	leads      *leadstest.Store
	calendar   *stubCalendar
	voice      *stubVoice
	sender     *stubSender
	queue      *stubQueue
	committer  *stubCommitter
	bus        *eventstest.Recorder
	tenant     *tenants.Tenant
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := tenants.Parse([]byte(tenantYAML), nil)
	if err != nil {
		t.Fatalf("parse tenants: %v", err)
	}
	tenant, _ := reg.Get("acme")

	// Monday 2 March 2026, London is on GMT.
	f := &fixture{
		leads: leadstest.New(),
		calendar: &stubCalendar{busy: []calendar.Interval{{
			Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
		}}},
		voice:     &stubVoice{err: errors.New("carrier rejected call")},
		sender:    &stubSender{},
		queue:     &stubQueue{},
		committer: &stubCommitter{},
		bus:       &eventstest.Recorder{},
		tenant:    tenant,
		now:       time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.dispatcher = NewDispatcher(Deps{
		Leads:     f.leads,
		Calendar:  f.calendar,
		Voice:     f.voice,
		Sender:    f.sender,
		Committer: f.committer,
		Queue:     f.queue,
		Bus:       f.bus,
		Config:    stubConfig{},
		Now:       func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) trigger(t *testing.T) TriggerResult {
	t.Helper()
	res, err := f.dispatcher.Trigger(context.Background(), TriggerRequest{
		Tenant: f.tenant,
		Lead:   LeadInput{Phone: "07700 900123", Name: "Sam Lee", Service: "Cleaning"},
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	return res
}

func hasState(states []string, want string) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestTriggerVoiceFailureSendsKeyedSMS(t *testing.T) {
	f := newFixture(t)

	res := f.trigger(t)

	if res.State != events.StateAwaitingReply {
		t.Fatalf("expected AWAITING_REPLY, got %s", res.State)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != leadPhone {
		t.Fatalf("expected one SMS to %s, got %+v", leadPhone, f.sender.sent)
	}
	want := "1) Mon 09:00 2) Mon 09:30 3) Mon 10:30 - reply 1, 2 or 3"
	if !strings.Contains(f.sender.sent[0].body, want) {
		t.Fatalf("expected options %q in %q", want, f.sender.sent[0].body)
	}

	lead := f.leads.Lead(res.Lead.ID)
	if lead.Status != domain.StatusAwaitingReply || lead.Attempts != 1 {
		t.Fatalf("unexpected lead state %+v", lead)
	}
	offer, ok := f.leads.Offer(lead.ID)
	if !ok || len(offer.Slots) != 3 {
		t.Fatalf("expected durable offer with 3 slots, got %+v", offer)
	}
	f.queue.only(t, retryqueue.ReasonFollowUpNudge)

	states := f.bus.States()
	for _, s := range []string{events.StateNew, events.StateCallAttempted, events.StateCallFailed, events.StateSMSFallbackSent, events.StateAwaitingReply} {
		if !hasState(states, s) {
			t.Fatalf("missing state %s in %v", s, states)
		}
	}
	if len(f.voice.requests) != 1 || len(f.voice.requests[0].Candidates) != 3 || f.voice.requests[0].AgentID != "agent-1" {
		t.Fatalf("expected call carrying candidates, got %+v", f.voice.requests)
	}
}

func TestTriggerCallPlacedSkipsSMS(t *testing.T) {
	f := newFixture(t)
	f.voice.err = nil
	f.voice.callID = "call-1"

	res := f.trigger(t)

	if res.State != events.StateCallSucceeded || res.CallID != "call-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no SMS expected when the call was placed")
	}
	if f.leads.Lead(res.Lead.ID).Status != domain.StatusCallAttempted {
		t.Fatal("lead should stay call_attempted until the outcome arrives")
	}
}

func TestTriggerWithoutCandidatesTakesColdPath(t *testing.T) {
	f := newFixture(t)
	f.calendar.err = apperr.Transient("calendar", errors.New("timeout"))

	res := f.trigger(t)

	if res.State != events.StateAwaitingReply || len(res.Candidates) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(f.sender.sent[0].body, "Say YES") {
		t.Fatalf("expected cold text, got %q", f.sender.sent[0].body)
	}
	entry := f.queue.only(t, retryqueue.ReasonFollowUpRecall)
	if entry.Payload.Attempt != 2 {
		t.Fatalf("recall should start attempt 2, got %d", entry.Payload.Attempt)
	}
	if _, ok := f.leads.Offer(res.Lead.ID); ok {
		t.Fatal("no offer may be stored without candidates")
	}
}

func TestTriggerSMSFailureQueuesOfferRetry(t *testing.T) {
	f := newFixture(t)
	f.sender.err = apperr.Transient("messaging", errors.New("503"))

	res, err := f.dispatcher.Trigger(context.Background(), TriggerRequest{
		Tenant: f.tenant,
		Lead:   LeadInput{Phone: leadPhone},
	})
	if err != nil {
		t.Fatalf("channel failure must not surface: %v", err)
	}
	if res.State != events.StateCallFailed {
		t.Fatalf("expected CALL_FAILED, got %s", res.State)
	}
	f.queue.only(t, retryqueue.ReasonFollowUpOffer)
}

func TestTriggerRefusesOptedOutNumber(t *testing.T) {
	f := newFixture(t)
	if err := f.leads.SetOptStatus(context.Background(), leadPhone, true); err != nil {
		t.Fatalf("opt out: %v", err)
	}

	_, err := f.dispatcher.Trigger(context.Background(), TriggerRequest{Tenant: f.tenant, Lead: LeadInput{Phone: leadPhone}})
	if !apperr.Is(err, apperr.KindCompliance) {
		t.Fatalf("expected compliance error, got %v", err)
	}
	if len(f.voice.requests) != 0 || len(f.sender.sent) != 0 {
		t.Fatal("nothing may be sent to an opted-out number")
	}
}

func TestTriggerOptOutLookupFailClosed(t *testing.T) {
	f := newFixture(t)
	f.leads.OptOutErr = errors.New("db down")
	f.dispatcher.cfg = stubConfig{failClosed: true}

	_, err := f.dispatcher.Trigger(context.Background(), TriggerRequest{Tenant: f.tenant, Lead: LeadInput{Phone: leadPhone}})
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTriggerRejectsInvalidPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Trigger(context.Background(), TriggerRequest{Tenant: f.tenant, Lead: LeadInput{Phone: "not a number"}})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleCallOutcomeChosenKeyCommitsOfferedSlot(t *testing.T) {
	f := newFixture(t)
	f.voice.err = nil
	f.voice.callID = "call-1"
	res := f.trigger(t)

	err := f.dispatcher.HandleCallOutcome(context.Background(), CallOutcome{
		Tenant:    f.tenant,
		LeadID:    res.Lead.ID,
		CallID:    "call-1",
		Status:    OutcomeCompleted,
		ChosenKey: 2,
	})
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if len(f.committer.requests) != 1 {
		t.Fatalf("expected one commit, got %d", len(f.committer.requests))
	}
	if got := f.committer.requests[0].Slot; !got.Start.Equal(res.Candidates[1].Start) {
		t.Fatalf("expected slot 2 (%s), got %s", res.Candidates[1].Start, got.Start)
	}
}

func TestHandleCallOutcomeNoAnswerSendsStoredOffer(t *testing.T) {
	f := newFixture(t)
	f.voice.err = nil
	f.voice.callID = "call-1"
	res := f.trigger(t)

	err := f.dispatcher.HandleCallOutcome(context.Background(), CallOutcome{
		Tenant: f.tenant,
		LeadID: res.Lead.ID,
		CallID: "call-1",
		Status: OutcomeNoAnswer,
	})
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if len(f.committer.requests) != 0 {
		t.Fatal("no commit expected without a chosen key")
	}
	if len(f.sender.sent) != 1 || !strings.Contains(f.sender.sent[0].body, "1) Mon 09:00") {
		t.Fatalf("expected stored offer by SMS, got %+v", f.sender.sent)
	}
	if f.leads.Lead(res.Lead.ID).Status != domain.StatusAwaitingReply {
		t.Fatal("lead should await a reply")
	}
}

func TestHandleCallOutcomeRepeatedDeliveryIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.voice.err = nil
	f.voice.callID = "call-1"
	res := f.trigger(t)
	queued := len(f.queue.inserted)

	out := CallOutcome{Tenant: f.tenant, LeadID: res.Lead.ID, CallID: "call-1", Status: OutcomeNoAnswer}
	for i := 0; i < 2; i++ {
		if err := f.dispatcher.HandleCallOutcome(context.Background(), out); err != nil {
			t.Fatalf("outcome %d: %v", i, err)
		}
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one offer SMS, got %d", len(f.sender.sent))
	}
	if got := len(f.queue.inserted) - queued; got != 1 {
		t.Fatalf("expected one follow-up chain, got %d entries", got)
	}
}

func TestHandleCallOutcomeRetriesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.voice.err = nil
	f.voice.callID = "call-1"
	res := f.trigger(t)
	f.committer.err = apperr.Internal("insert booking")

	out := CallOutcome{Tenant: f.tenant, LeadID: res.Lead.ID, CallID: "call-1", Status: OutcomeCompleted, ChosenKey: 1}
	if err := f.dispatcher.HandleCallOutcome(context.Background(), out); err == nil {
		t.Fatal("expected commit failure")
	}

	f.committer.err = nil
	if err := f.dispatcher.HandleCallOutcome(context.Background(), out); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(f.committer.requests) != 2 {
		t.Fatalf("expected the redelivery to commit, got %d requests", len(f.committer.requests))
	}
}

func TestHandleCallOutcomeRequiresCallID(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.HandleCallOutcome(context.Background(), CallOutcome{Tenant: f.tenant, LeadID: uuid.New(), Status: OutcomeBusy})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReofferAfterConflictUsesFreshCandidates(t *testing.T) {
	f := newFixture(t)
	lead := f.leads.Add(domain.Lead{TenantID: "acme", Phone: leadPhone, Status: domain.StatusAwaitingReply})
	f.calendar.busy = append(f.calendar.busy, calendar.Interval{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})

	got, err := f.dispatcher.Reoffer(context.Background(), f.tenant, lead, OfferConflict)
	if err != nil {
		t.Fatalf("reoffer: %v", err)
	}
	if len(got) != 3 || !got[0].Start.Equal(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected candidates %+v", got)
	}
	if !strings.HasPrefix(f.sender.sent[0].body, "Sorry, that time was just taken.") {
		t.Fatalf("unexpected body %q", f.sender.sent[0].body)
	}
	offer, _ := f.leads.Offer(lead.ID)
	if len(offer.Slots) != 3 || !offer.Slots[0].Start.Equal(got[0].Start) {
		t.Fatal("fresh candidates must replace the stored offer")
	}
}

func TestEventsCarryDispatcherClock(t *testing.T) {
	f := newFixture(t)
	f.trigger(t)

	recorded := f.bus.Events()
	if len(recorded) == 0 {
		t.Fatal("expected events")
	}
	for _, e := range recorded {
		if !e.OccurredAt().Equal(f.now) {
			t.Fatalf("%s stamped %s, expected %s", e.EventName(), e.OccurredAt(), f.now)
		}
	}
}
