package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadbooking_backend/internal/calendar"
	"leadbooking_backend/internal/email"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/leads/domain"
	leadrepo "leadbooking_backend/internal/leads/repository"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"

	"github.com/google/uuid"
)

// Reminder offsets before the appointment start.
var reminderOffsets = []struct {
	reason string
	before time.Duration
}{
	{retryqueue.ReasonReminder24h, 24 * time.Hour},
	{retryqueue.ReasonReminder2h, 2 * time.Hour},
}

// Store is the local booking persistence used by the Committer.
type Store interface {
	Create(ctx context.Context, b Booking) error
	GetActiveForLead(ctx context.Context, leadID uuid.UUID) (Booking, error)
}

// Leads is the subset of the lead store needed to commit.
type Leads interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	MarkBooked(ctx context.Context, id uuid.UUID) (bool, error)
}

// Calendar is the availability surface needed to commit.
type Calendar interface {
	Revalidate(ctx context.Context, calendarID string, slot calendar.Interval) (bool, error)
	CreateEvent(ctx context.Context, calendarID string, details calendar.EventDetails) (string, error)
}

// Queue schedules reminders and reconciliation work.
type Queue interface {
	Insert(ctx context.Context, p retryqueue.InsertParams) (uuid.UUID, error)
	ExpirePendingForLead(ctx context.Context, leadID uuid.UUID, reasons []string, cause string) (int64, error)
}

type Deps struct {
	Store    Store
	Leads    Leads
	Calendar Calendar
	Sender   messaging.Sender
	Email    email.Sender
	Queue    Queue
	Bus      events.Bus
	Log      *logger.Logger
	Now      func() time.Time
}

// Committer turns a chosen slot into a booking. The external calendar event
// is created first; the local row follows and is reconciled when it fails.
type Committer struct {
	store    Store
	leads    Leads
	calendar Calendar
	sender   messaging.Sender
	email    email.Sender
	queue    Queue
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewCommitter(d Deps) *Committer {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Email == nil {
		d.Email = email.NoopSender{}
	}
	return &Committer{
		store:    d.Store,
		leads:    d.Leads,
		calendar: d.Calendar,
		sender:   d.Sender,
		email:    d.Email,
		queue:    d.Queue,
		bus:      d.Bus,
		log:      d.Log,
		now:      d.Now,
	}
}

// Commit books req.Slot for the lead.
//
// A lead that already holds an active booking, a slot that is no longer free
// and a losing concurrent commit all return a SlotConflict. Calendar outages
// return Transient. Confirmation failures are logged and never returned.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (Booking, error) {
	const op = "booking.Commit"

	if err := validate(req); err != nil {
		return Booking{}, err.WithOp(op)
	}
	tenant := req.Tenant
	log := c.log.WithContext(ctx).WithTenant(tenant.ID)

	lead, err := c.leads.GetByID(ctx, req.LeadID)
	if errors.Is(err, leadrepo.ErrNotFound) {
		return Booking{}, apperr.NotFound("lead not found").WithOp(op)
	}
	if err != nil {
		return Booking{}, apperr.Wrap(apperr.KindInternal, "load lead", err).WithOp(op)
	}
	if lead.TenantID != tenant.ID {
		return Booking{}, apperr.NotFound("lead not found").WithOp(op)
	}
	switch lead.Status {
	case domain.StatusBooked:
		return Booking{}, c.conflict(ctx, lead, req.Slot, "lead already booked")
	case domain.StatusOptedOut:
		return Booking{}, apperr.Compliance("lead has opted out").WithOp(op)
	}

	if _, err := c.store.GetActiveForLead(ctx, lead.ID); err == nil {
		return Booking{}, c.conflict(ctx, lead, req.Slot, "lead already booked")
	} else if !errors.Is(err, ErrNotFound) {
		return Booking{}, apperr.Wrap(apperr.KindInternal, "load active booking", err).WithOp(op)
	}

	free, err := c.calendar.Revalidate(ctx, tenant.CalendarID, req.Slot.Interval())
	if err != nil {
		return Booking{}, err
	}
	if !free {
		return Booking{}, c.conflict(ctx, lead, req.Slot, "slot no longer available")
	}

	service := req.Service
	if service == "" {
		service = lead.Service
	}
	b := Booking{
		ID:       uuid.New(),
		TenantID: tenant.ID,
		LeadID:   lead.ID,
		Service:  service,
		Slot:     req.Slot,
		Status:   StatusActive,
	}

	eventID, err := c.calendar.CreateEvent(ctx, tenant.CalendarID, calendar.EventDetails{
		Summary:     eventSummary(service, lead),
		Description: fmt.Sprintf("Booked via lead outreach. Phone: %s", lead.Phone),
		Start:       req.Slot.Start,
		End:         req.Slot.End,
		Timezone:    tenant.Timezone,
		RequestID:   requestID(lead.ID, req.Slot),
	})
	if err != nil {
		return Booking{}, err
	}
	b.ExternalEventID = eventID

	switch err := c.store.Create(ctx, b); {
	case errors.Is(err, ErrActiveBookingExists):
		c.enqueue(ctx, log, retryqueue.InsertParams{
			TenantID: tenant.ID,
			LeadID:   &lead.ID,
			Reason:   retryqueue.ReasonReconcileOrphanEvent,
			Payload: retryqueue.Payload{
				ExternalEventID: eventID,
				CalendarID:      tenant.CalendarID,
				SlotStart:       &req.Slot.Start,
				SlotEnd:         &req.Slot.End,
			},
		})
		return Booking{}, c.conflict(ctx, lead, req.Slot, "concurrent booking won")
	case err != nil:
		log.DatabaseError("create booking", err)
		c.enqueue(ctx, log, reconcileParams(b))
		metrics.RecordBooking("reconcile")
	default:
		b.Persisted = true
		b.CreatedAt = c.now().UTC()
	}

	c.markBooked(ctx, log, lead)
	c.confirm(ctx, log, tenant, lead, b)
	c.scheduleReminders(ctx, log, b)
	if _, err := c.queue.ExpirePendingForLead(ctx, lead.ID, retryqueue.FollowUpReasons, "lead booked"); err != nil {
		log.Warn("expire follow-ups failed", "lead_id", lead.ID.String(), "error", err.Error())
	}

	if b.Persisted {
		metrics.RecordBooking("committed")
	}
	c.bus.Publish(ctx, events.BookingCommitted{
		BaseEvent:       events.NewBaseEventAt(c.now()),
		TenantID:        tenant.ID,
		LeadID:          lead.ID,
		BookingID:       b.ID,
		Service:         b.Service,
		Start:           b.Slot.Start,
		End:             b.Slot.End,
		ExternalEventID: b.ExternalEventID,
		Persisted:       b.Persisted,
	})
	return b, nil
}

// Reconcile writes the local row for a booking whose external event already
// exists. A row already present for the same event counts as done.
func (c *Committer) Reconcile(ctx context.Context, b Booking) error {
	err := c.store.Create(ctx, b)
	if errors.Is(err, ErrActiveBookingExists) {
		existing, getErr := c.store.GetActiveForLead(ctx, b.LeadID)
		if getErr != nil {
			return getErr
		}
		if existing.ExternalEventID != b.ExternalEventID {
			return fmt.Errorf("lead %s holds booking %s for another event", b.LeadID, existing.ID)
		}
		err = nil
	}
	if err != nil {
		return err
	}
	if _, err := c.leads.MarkBooked(ctx, b.LeadID); err != nil {
		return err
	}
	metrics.RecordBooking("reconciled")
	return nil
}

func validate(req CommitRequest) *apperr.Error {
	if req.Tenant == nil {
		return apperr.Validation("tenant is required")
	}
	if req.LeadID == uuid.Nil {
		return apperr.Validation("leadId is required")
	}
	if req.Slot.Start.IsZero() || !req.Slot.End.After(req.Slot.Start) {
		return apperr.Validation("slot must end after it starts")
	}
	return nil
}

func (c *Committer) conflict(ctx context.Context, lead domain.Lead, slot slots.Candidate, reason string) error {
	metrics.RecordBooking("conflict")
	c.bus.Publish(ctx, events.BookingConflicted{
		BaseEvent: events.NewBaseEventAt(c.now()),
		TenantID:  lead.TenantID,
		LeadID:    lead.ID,
		Start:     slot.Start,
		End:       slot.End,
		Reason:    reason,
	})
	return apperr.SlotConflict(reason).WithOp("booking.Commit")
}

func (c *Committer) markBooked(ctx context.Context, log *logger.Logger, lead domain.Lead) {
	ok, err := c.leads.MarkBooked(ctx, lead.ID)
	if err != nil {
		log.DatabaseError("mark lead booked", err)
		return
	}
	if !ok {
		return
	}
	log.LeadTransition(lead.TenantID, lead.ID.String(), string(lead.Status), string(domain.StatusBooked))
	metrics.RecordTransition(events.StateSlotChosen)
	c.bus.Publish(ctx, events.LeadStateChanged{
		BaseEvent: events.NewBaseEventAt(c.now()),
		TenantID:  lead.TenantID,
		LeadID:    lead.ID,
		State:     events.StateSlotChosen,
		Attempt:   lead.Attempts,
	})
}

func (c *Committer) confirm(ctx context.Context, log *logger.Logger, tenant *tenants.Tenant, lead domain.Lead, b Booking) {
	loc := tenant.Location()

	if _, err := c.sender.SendMessage(ctx, lead.Phone, messaging.BookingConfirmation(tenant.Name, b.Service, b.Slot, loc)); err != nil {
		log.Warn("booking confirmation failed", "lead_id", lead.ID.String(), "error", err.Error())
	}
	if tenant.InternalPhone != "" {
		body := messaging.InternalBookingText(lead.Name, lead.Phone, b.Service, b.Slot, loc)
		if _, err := c.sender.SendMessage(ctx, tenant.InternalPhone, body); err != nil {
			log.Warn("internal booking text failed", "error", err.Error())
		}
	}
	if tenant.InternalEmail != "" {
		notice := email.BookingNotice{
			TenantName: tenant.Name,
			LeadName:   lead.Name,
			LeadPhone:  lead.Phone,
			Service:    b.Service,
			Start:      b.Slot.Start,
			Location:   loc,
			EventID:    b.ExternalEventID,
		}
		if err := c.email.SendBookingNotice(ctx, tenant.InternalEmail, notice); err != nil {
			log.Warn("internal booking email failed", "error", err.Error())
		}
	}
}

func (c *Committer) scheduleReminders(ctx context.Context, log *logger.Logger, b Booking) {
	now := c.now()
	for _, r := range reminderOffsets {
		at := b.Slot.Start.Add(-r.before)
		if !at.After(now) {
			continue
		}
		c.enqueue(ctx, log, retryqueue.InsertParams{
			TenantID:     b.TenantID,
			LeadID:       &b.LeadID,
			Reason:       r.reason,
			ScheduledFor: at,
			Payload: retryqueue.Payload{
				BookingID:       &b.ID,
				ExternalEventID: b.ExternalEventID,
				Service:         b.Service,
				SlotStart:       &b.Slot.Start,
				SlotEnd:         &b.Slot.End,
			},
		})
	}
}

func (c *Committer) enqueue(ctx context.Context, log *logger.Logger, p retryqueue.InsertParams) {
	if _, err := c.queue.Insert(ctx, p); err != nil {
		log.Error("enqueue retry entry failed", "reason", p.Reason, "error", err.Error())
		metrics.RecordRetryEntry(p.Reason, "enqueue_failed")
	}
}

func reconcileParams(b Booking) retryqueue.InsertParams {
	return retryqueue.InsertParams{
		TenantID: b.TenantID,
		LeadID:   &b.LeadID,
		Reason:   retryqueue.ReasonReconcileBooking,
		Payload: retryqueue.Payload{
			BookingID:       &b.ID,
			ExternalEventID: b.ExternalEventID,
			Service:         b.Service,
			SlotStart:       &b.Slot.Start,
			SlotEnd:         &b.Slot.End,
		},
	}
}

// FromPayload rebuilds a booking from a reconcile_booking entry.
func FromPayload(tenantID string, leadID uuid.UUID, p retryqueue.Payload) (Booking, error) {
	if p.BookingID == nil || p.SlotStart == nil || p.SlotEnd == nil || p.ExternalEventID == "" {
		return Booking{}, errors.New("reconcile payload is incomplete")
	}
	return Booking{
		ID:              *p.BookingID,
		TenantID:        tenantID,
		LeadID:          leadID,
		Service:         p.Service,
		Slot:            slots.Candidate{Start: *p.SlotStart, End: *p.SlotEnd},
		ExternalEventID: p.ExternalEventID,
		Status:          StatusActive,
	}, nil
}

func eventSummary(service string, lead domain.Lead) string {
	who := lead.Name
	if who == "" {
		who = lead.Phone
	}
	if service == "" {
		return who
	}
	return fmt.Sprintf("%s: %s", service, who)
}

// requestID keys the provider create call so a retried commit of the same
// slot does not create a second event.
func requestID(leadID uuid.UUID, slot slots.Candidate) string {
	return fmt.Sprintf("%s-%d", leadID, slot.Start.Unix())
}
