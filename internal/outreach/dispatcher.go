// Package outreach drives a lead from first contact to an offered slot list.
//
// Every attempt places a voice call first. When the call cannot be placed,
// or ends without a booking, the lead receives an SMS listing up to three
// candidate slots keyed 1, 2 and 3. Channel failures never surface to the
// caller; they become retry queue entries.
package outreach

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/calendar"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/leads/domain"
	leadrepo "leadbooking_backend/internal/leads/repository"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/nurture"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/internal/voice"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/config"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"
	"leadbooking_backend/platform/phone"

	"github.com/google/uuid"
)

// Config is the configuration the dispatcher reads.
type Config interface {
	config.OutreachConfig
	GetFollowUpDelay() time.Duration
	GetDefaultPhoneRegion() string
	GetOptOutFailClosed() bool
}

// LeadStore is the lead persistence the dispatcher needs.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindOrCreateLead(ctx context.Context, params leadrepo.CreateLeadParams) (domain.Lead, bool, error)
	BeginAttempt(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status) (bool, error)
	StoreProposedChoice(ctx context.Context, offer domain.Offer) error
	GetOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error)
	IsOptedOut(ctx context.Context, phone string) (bool, error)
	RecordDelivery(ctx context.Context, messageID, tenantID string) (bool, error)
	ForgetDelivery(ctx context.Context, messageID string) error
}

// Availability answers free/busy queries.
type Availability interface {
	FreeBusy(ctx context.Context, calendarID string, start, end time.Time) ([]calendar.Interval, error)
}

// Committer books a chosen slot.
type Committer interface {
	Commit(ctx context.Context, req booking.CommitRequest) (booking.Booking, error)
}

// Queue schedules follow-ups.
type Queue interface {
	Insert(ctx context.Context, p retryqueue.InsertParams) (uuid.UUID, error)
}

type Deps struct {
	Leads     LeadStore
	Calendar  Availability
	Voice     voice.Dispatcher
	Sender    messaging.Sender
	Nurture   nurture.Workflow
	Committer Committer
	Queue     Queue
	Bus       events.Bus
	Config    Config
	Log       *logger.Logger
	Now       func() time.Time
}

// LeadInput identifies the lead to contact.
type LeadInput struct {
	Phone   string `json:"phone" validate:"required"`
	Name    string `json:"name" validate:"max=200"`
	Service string `json:"service" validate:"max=100"`
}

// TriggerRequest starts an outreach attempt. Attempt is the caller's view of
// the attempt number; the persisted counter wins when it is higher.
type TriggerRequest struct {
	Tenant  *tenants.Tenant
	Lead    LeadInput
	Attempt int
}

// TriggerResult reports where the attempt ended.
type TriggerResult struct {
	Lead       domain.Lead
	State      string
	CallID     string
	Candidates []slots.Candidate
}

// OfferMode selects how a slot list is (re)sent.
type OfferMode int

const (
	// OfferFallback is the first SMS after a call that did not book.
	OfferFallback OfferMode = iota
	// OfferResend repeats the stored offer while it is still valid.
	OfferResend
	// OfferConflict follows a slot that was taken at commit time.
	OfferConflict
	// OfferNudge is a follow-up for a lead that has not replied.
	OfferNudge
)

// Call outcome statuses reported by the voice provider.
const (
	OutcomeCompleted = "completed"
	OutcomeNoAnswer  = "no_answer"
	OutcomeBusy      = "busy"
	OutcomeFailed    = "failed"
	OutcomeVoicemail = "voicemail"
)

// CallOutcome is the voice provider's report for a finished call. ChosenKey
// is the 1-based key of the offered slot the lead accepted, or zero.
type CallOutcome struct {
	Tenant    *tenants.Tenant
	LeadID    uuid.UUID
	CallID    string
	Status    string
	ChosenKey int
}

type Dispatcher struct {
	leads     LeadStore
	calendar  Availability
	voice     voice.Dispatcher
	sender    messaging.Sender
	nurture   nurture.Workflow
	committer Committer
	queue     Queue
	bus       events.Bus
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func NewDispatcher(d Deps) *Dispatcher {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Voice == nil {
		d.Voice = voice.Unavailable{}
	}
	if d.Nurture == nil {
		d.Nurture = nurture.LogWorkflow{}
	}
	return &Dispatcher{
		leads:     d.Leads,
		calendar:  d.Calendar,
		voice:     d.Voice,
		sender:    d.Sender,
		nurture:   d.Nurture,
		committer: d.Committer,
		queue:     d.Queue,
		bus:       d.Bus,
		cfg:       d.Config,
		log:       d.Log,
		now:       d.Now,
	}
}

// Trigger runs one outreach attempt: record the offer, call, and fall back to
// SMS when the call cannot be placed. Only validation, compliance and
// storage failures are returned.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	const op = "outreach.Trigger"

	if req.Tenant == nil {
		return TriggerResult{}, apperr.Validation("tenant is required").WithOp(op)
	}
	tenant := req.Tenant
	number, err := phone.Parse(req.Lead.Phone, d.cfg.GetDefaultPhoneRegion())
	if err != nil {
		return TriggerResult{}, apperr.Validation("phone must be a valid phone number").WithOp(op)
	}
	if err := d.checkOptOut(ctx, number); err != nil {
		return TriggerResult{}, err
	}

	lead, created, err := d.leads.FindOrCreateLead(ctx, leadrepo.CreateLeadParams{
		TenantID: tenant.ID,
		Phone:    number,
		Name:     strings.TrimSpace(req.Lead.Name),
		Service:  strings.ToLower(strings.TrimSpace(req.Lead.Service)),
	})
	if err != nil {
		return TriggerResult{}, apperr.Wrap(apperr.KindInternal, "find or create lead", err).WithOp(op)
	}
	if created {
		d.publishState(ctx, lead, events.StateNew, "")
	}
	if !lead.Status.In(domain.OutreachStatuses...) {
		return TriggerResult{}, apperr.Compliance("lead is not open for outreach").WithOp(op)
	}

	log := d.log.WithContext(ctx).WithTenant(tenant.ID)
	candidates, err := d.Candidates(ctx, tenant, lead.Service)
	if err != nil {
		log.Warn("availability unavailable, using cold path", "lead_id", lead.ID.String(), "error", err.Error())
		candidates = nil
	}
	d.storeOffer(ctx, log, lead, candidates)

	lead, err = d.leads.BeginAttempt(ctx, lead.ID)
	if errors.Is(err, leadrepo.ErrInvalidTransition) {
		return TriggerResult{}, apperr.Conflict("lead left outreach concurrently").WithOp(op)
	}
	if err != nil {
		return TriggerResult{}, apperr.Wrap(apperr.KindInternal, "begin attempt", err).WithOp(op)
	}
	attempt := lead.Attempts
	if req.Attempt > attempt {
		attempt = req.Attempt
	}
	d.publishState(ctx, lead, events.StateCallAttempted, "")

	if err := d.nurture.AttemptStarted(ctx, nurture.AttemptStarted{
		TenantID:  tenant.ID,
		LeadID:    lead.ID,
		Phone:     lead.Phone,
		Attempt:   attempt,
		StartedAt: d.now().UTC(),
	}); err != nil {
		log.Warn("nurture notification failed", "lead_id", lead.ID.String(), "error", err.Error())
	}

	result := TriggerResult{Lead: lead, Candidates: candidates}

	callID, err := d.placeCall(ctx, tenant, lead, attempt, candidates)
	if err == nil {
		d.publishState(ctx, lead, events.StateCallSucceeded, callID)
		result.State = events.StateCallSucceeded
		result.CallID = callID
		return result, nil
	}

	log.ProviderFailure("voice", "placeCall", err)
	metrics.RecordProviderError("voice", "placeCall")
	d.publishState(ctx, lead, events.StateCallFailed, "")

	result.State = d.smsFallback(ctx, tenant, lead, attempt, candidates)
	return result, nil
}

// HandleCallOutcome applies the voice provider's report for a placed call,
// once per call id. A chosen key books the matching slot of the stored offer;
// anything else runs the SMS fallback.
func (d *Dispatcher) HandleCallOutcome(ctx context.Context, out CallOutcome) error {
	const op = "outreach.HandleCallOutcome"

	if out.Tenant == nil || out.LeadID == uuid.Nil {
		return apperr.Validation("tenant and lead are required").WithOp(op)
	}
	if strings.TrimSpace(out.CallID) == "" {
		return apperr.Validation("callId is required").WithOp(op)
	}

	deliveryID := "call:" + out.CallID
	fresh, err := d.leads.RecordDelivery(ctx, deliveryID, out.Tenant.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "record call outcome", err).WithOp(op)
	}
	if !fresh {
		d.log.WithContext(ctx).WithTenant(out.Tenant.ID).Info("duplicate call outcome discarded", "call_id", out.CallID)
		return nil
	}

	err = d.applyCallOutcome(ctx, out)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		if ferr := d.leads.ForgetDelivery(context.WithoutCancel(ctx), deliveryID); ferr != nil {
			d.log.WithContext(ctx).DatabaseError("release call outcome", ferr)
		}
	}
	return err
}

func (d *Dispatcher) applyCallOutcome(ctx context.Context, out CallOutcome) error {
	const op = "outreach.HandleCallOutcome"

	lead, err := d.leads.GetByID(ctx, out.LeadID)
	if errors.Is(err, leadrepo.ErrNotFound) || (err == nil && lead.TenantID != out.Tenant.ID) {
		return apperr.NotFound("lead not found").WithOp(op)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load lead", err).WithOp(op)
	}
	if lead.Status == domain.StatusBooked || lead.Status == domain.StatusOptedOut {
		return nil
	}

	log := d.log.WithContext(ctx).WithTenant(out.Tenant.ID)
	offer, offerErr := d.leads.GetOffer(ctx, lead.ID)
	if offerErr != nil && !errors.Is(offerErr, leadrepo.ErrOfferNotFound) {
		log.DatabaseError("load offer", offerErr)
	}

	if out.ChosenKey > 0 && offerErr == nil {
		if slot, ok := offer.Choose(out.ChosenKey, d.now()); ok {
			_, err := d.committer.Commit(ctx, booking.CommitRequest{
				Tenant:  out.Tenant,
				LeadID:  lead.ID,
				Service: lead.Service,
				Slot:    slot,
			})
			if apperr.Is(err, apperr.KindSlotConflict) {
				_, err = d.Reoffer(ctx, out.Tenant, lead, OfferConflict)
				if err != nil {
					log.Warn("re-offer after conflict failed", "lead_id", lead.ID.String(), "error", err.Error())
				}
				return nil
			}
			return err
		}
	}

	if out.Status != OutcomeCompleted {
		d.publishState(ctx, lead, events.StateCallFailed, out.Status)
	}

	var candidates []slots.Candidate
	if offerErr == nil && !offer.Expired(d.now()) {
		candidates = offer.Slots
	} else if candidates, err = d.Candidates(ctx, out.Tenant, lead.Service); err != nil {
		log.Warn("availability unavailable, using cold path", "lead_id", lead.ID.String(), "error", err.Error())
		candidates = nil
	} else {
		d.storeOffer(ctx, log, lead, candidates)
	}
	d.smsFallback(ctx, out.Tenant, lead, lead.Attempts, candidates)
	return nil
}

// Reoffer sends the lead a slot list and returns it. OfferResend reuses the
// stored offer while valid; the other modes compute fresh candidates. An
// empty list sends the cold text. Send failures outside the retry queue
// become follow_up_offer entries.
func (d *Dispatcher) Reoffer(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, mode OfferMode) ([]slots.Candidate, error) {
	log := d.log.WithContext(ctx).WithTenant(tenant.ID)

	var candidates []slots.Candidate
	fresh := true
	if mode == OfferResend {
		offer, err := d.leads.GetOffer(ctx, lead.ID)
		if err == nil && !offer.Expired(d.now()) {
			candidates = offer.Slots
			fresh = false
		}
	}
	if fresh {
		var err error
		candidates, err = d.Candidates(ctx, tenant, lead.Service)
		if err != nil {
			if mode == OfferResend || mode == OfferNudge {
				return nil, err
			}
			log.Warn("availability unavailable, using cold path", "lead_id", lead.ID.String(), "error", err.Error())
			candidates = nil
		}
		d.storeOffer(ctx, log, lead, candidates)
	}

	if err := d.deliverOffer(ctx, tenant, lead, candidates, mode); err != nil {
		if mode != OfferResend && mode != OfferNudge && !apperr.Is(err, apperr.KindCompliance) {
			d.enqueue(ctx, log, lead, retryqueue.ReasonFollowUpOffer, d.now(), retryqueue.Payload{})
		}
		return nil, err
	}
	return candidates, nil
}

// Candidates computes up to three free slots for service, starting now.
func (d *Dispatcher) Candidates(ctx context.Context, tenant *tenants.Tenant, service string) ([]slots.Candidate, error) {
	now := d.now()
	horizon := d.cfg.GetSlotHorizon()
	busy, err := d.calendar.FreeBusy(ctx, tenant.CalendarID, now, now.Add(horizon))
	if err != nil {
		return nil, err
	}
	return slots.Generate(slots.Request{
		Duration: tenant.DurationFor(service),
		Hours:    tenant.Hours(),
		Busy:     busy,
		From:     now,
		Horizon:  horizon,
		Location: tenant.Location(),
		Limit:    slots.DefaultLimit,
	}), nil
}

// placeCall dials the lead under the per-call deadline.
func (d *Dispatcher) placeCall(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, attempt int, candidates []slots.Candidate) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.GetCallTimeout())
	defer cancel()

	var callerID string
	if len(tenant.PhoneNumbers) > 0 {
		callerID = tenant.PhoneNumbers[0]
	}
	return d.voice.PlaceCall(callCtx, voice.CallRequest{
		TenantID:   tenant.ID,
		AgentID:    tenant.Credentials.VoiceAgentID,
		CallerID:   callerID,
		LeadID:     lead.ID,
		LeadName:   lead.Name,
		Phone:      lead.Phone,
		Service:    lead.Service,
		Attempt:    attempt,
		Candidates: candidates,
	})
}

// smsFallback texts the candidates (or the cold text) and schedules the next
// follow-up. It returns the state the lead ended in.
func (d *Dispatcher) smsFallback(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, attempt int, candidates []slots.Candidate) string {
	log := d.log.WithContext(ctx).WithTenant(tenant.ID)

	if err := d.deliverOffer(ctx, tenant, lead, candidates, OfferFallback); err != nil {
		if apperr.Is(err, apperr.KindCompliance) {
			return events.StateCallFailed
		}
		d.enqueue(ctx, log, lead, retryqueue.ReasonFollowUpOffer, d.now(), retryqueue.Payload{Attempt: attempt})
		return events.StateCallFailed
	}

	next := d.now().Add(d.cfg.GetFollowUpDelay())
	if len(candidates) == 0 {
		d.enqueue(ctx, log, lead, retryqueue.ReasonFollowUpRecall, next, retryqueue.Payload{Attempt: attempt + 1})
	} else {
		d.enqueue(ctx, log, lead, retryqueue.ReasonFollowUpNudge, next, retryqueue.Payload{Attempt: attempt})
	}
	return events.StateAwaitingReply
}

func (d *Dispatcher) deliverOffer(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, candidates []slots.Candidate, mode OfferMode) error {
	loc := tenant.Location()

	var body string
	switch {
	case len(candidates) == 0:
		body = messaging.ColdText(tenant.Name, lead.Name)
	case mode == OfferConflict:
		body = messaging.ReofferText(candidates, loc)
	case mode == OfferNudge:
		body = messaging.NudgeText(tenant.Name, candidates, loc)
	default:
		body = messaging.OfferText(tenant.Name, lead.Name, candidates, loc)
	}

	if _, err := d.sender.SendMessage(ctx, lead.Phone, body); err != nil {
		return err
	}

	if mode == OfferFallback {
		d.publishState(ctx, lead, events.StateSMSFallbackSent, "")
	}
	if len(candidates) > 0 {
		d.bus.Publish(ctx, events.OfferSent{
			BaseEvent: events.NewBaseEventAt(d.now()),
			TenantID:  lead.TenantID,
			LeadID:    lead.ID,
			Slots:     offerSlots(candidates),
			ExpiresAt: d.now().Add(d.cfg.GetOfferTTL()).UTC(),
		})
	}

	moved, err := d.leads.TransitionStatus(ctx, lead.ID,
		[]domain.Status{domain.StatusNew, domain.StatusCallAttempted}, domain.StatusAwaitingReply)
	if err != nil {
		d.log.WithContext(ctx).DatabaseError("transition to awaiting_reply", err)
		return nil
	}
	if moved {
		d.publishState(ctx, lead, events.StateAwaitingReply, "")
	}
	return nil
}

func (d *Dispatcher) storeOffer(ctx context.Context, log *logger.Logger, lead domain.Lead, candidates []slots.Candidate) {
	if len(candidates) == 0 {
		return
	}
	offer := domain.NewOffer(lead, candidates, d.now().UTC(), d.cfg.GetOfferTTL())
	if err := d.leads.StoreProposedChoice(ctx, offer); err != nil {
		log.DatabaseError("store offer", err)
	}
}

// checkOptOut refuses opted-out numbers. A failed lookup proceeds unless the
// dispatcher is configured fail-closed.
func (d *Dispatcher) checkOptOut(ctx context.Context, number string) error {
	optedOut, err := d.leads.IsOptedOut(ctx, number)
	switch {
	case err != nil && d.cfg.GetOptOutFailClosed():
		metrics.RecordOptOutLookupFailure()
		return apperr.Transient("optout store", err).WithOp("outreach.Trigger")
	case err != nil:
		metrics.RecordOptOutLookupFailure()
		d.log.WithContext(ctx).Warn("opt-out lookup failed, proceeding", "error", err.Error())
	case optedOut:
		metrics.RecordComplianceBlock("voice")
		d.log.WithContext(ctx).ComplianceBlocked("voice", "recipient opted out")
		return apperr.Compliance("recipient has opted out").WithOp("outreach.Trigger")
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, log *logger.Logger, lead domain.Lead, reason string, at time.Time, payload retryqueue.Payload) {
	_, err := d.queue.Insert(ctx, retryqueue.InsertParams{
		TenantID:     lead.TenantID,
		LeadID:       &lead.ID,
		Reason:       reason,
		ScheduledFor: at,
		Payload:      payload,
	})
	if err != nil {
		log.Error("enqueue follow-up failed", "lead_id", lead.ID.String(), "reason", reason, "error", err.Error())
		metrics.RecordRetryEntry(reason, "enqueue_failed")
		return
	}
	metrics.RecordRetryEntry(reason, "enqueued")
}

func (d *Dispatcher) publishState(ctx context.Context, lead domain.Lead, state, detail string) {
	PublishState(ctx, d.bus, d.log, d.now(), lead, state, detail)
}

// PublishState logs, counts and publishes a dispatcher state change.
func PublishState(ctx context.Context, bus events.Bus, log *logger.Logger, at time.Time, lead domain.Lead, state, detail string) {
	log.WithContext(ctx).LeadTransition(lead.TenantID, lead.ID.String(), string(lead.Status), state)
	metrics.RecordTransition(state)
	bus.Publish(ctx, events.LeadStateChanged{
		BaseEvent: events.NewBaseEventAt(at),
		TenantID:  lead.TenantID,
		LeadID:    lead.ID,
		State:     state,
		Attempt:   lead.Attempts,
		Detail:    detail,
	})
}

func offerSlots(candidates []slots.Candidate) []events.OfferSlot {
	out := make([]events.OfferSlot, len(candidates))
	for i, c := range candidates {
		out[i] = events.OfferSlot{Key: i + 1, Start: c.Start.UTC(), End: c.End.UTC()}
	}
	return out
}
