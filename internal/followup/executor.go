// Package followup executes claimed retry queue entries.
package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadbooking_backend/internal/booking"
	"leadbooking_backend/internal/events"
	"leadbooking_backend/internal/leads/domain"
	leadrepo "leadbooking_backend/internal/leads/repository"
	"leadbooking_backend/internal/messaging"
	"leadbooking_backend/internal/outreach"
	"leadbooking_backend/internal/retryqueue"
	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrObsolete marks an entry whose work no longer applies, e.g. a nudge for
// a lead that already booked. Such entries expire without retry.
var ErrObsolete = errors.New("retry entry no longer applies")

type Leads interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status) (bool, error)
}

type Outreach interface {
	Trigger(ctx context.Context, req outreach.TriggerRequest) (outreach.TriggerResult, error)
	Reoffer(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, mode outreach.OfferMode) ([]slots.Candidate, error)
}

type Bookings interface {
	GetByID(ctx context.Context, id uuid.UUID) (booking.Booking, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, b booking.Booking) error
}

type Tenants interface {
	Get(id string) (*tenants.Tenant, error)
}

type Queue interface {
	Insert(ctx context.Context, p retryqueue.InsertParams) (uuid.UUID, error)
}

type Deps struct {
	Leads         Leads
	Outreach      Outreach
	Bookings      Bookings
	Reconciler    Reconciler
	Tenants       Tenants
	Sender        messaging.Sender
	Queue         Queue
	Bus           events.Bus
	Log           *logger.Logger
	FollowUpDelay time.Duration
	MaxNudges     int
	Now           func() time.Time
}

type Executor struct {
	leads      Leads
	outreach   Outreach
	bookings   Bookings
	reconciler Reconciler
	tenants    Tenants
	sender     messaging.Sender
	queue      Queue
	bus        events.Bus
	log        *logger.Logger
	delay      time.Duration
	maxNudges  int
	now        func() time.Time
}

func NewExecutor(d Deps) *Executor {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.FollowUpDelay <= 0 {
		d.FollowUpDelay = 24 * time.Hour
	}
	return &Executor{
		leads:      d.Leads,
		outreach:   d.Outreach,
		bookings:   d.Bookings,
		reconciler: d.Reconciler,
		tenants:    d.Tenants,
		sender:     d.Sender,
		queue:      d.Queue,
		bus:        d.Bus,
		log:        d.Log,
		delay:      d.FollowUpDelay,
		maxNudges:  d.MaxNudges,
		now:        d.Now,
	}
}

// Execute runs one entry. A nil error means sent. ErrObsolete and compliance
// errors mean the entry should expire; anything else is retried.
func (e *Executor) Execute(ctx context.Context, entry retryqueue.Entry) error {
	payload, err := entry.DecodePayload()
	if err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrObsolete, err)
	}
	tenant, err := e.tenants.Get(entry.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrObsolete, err)
	}

	if entry.Reason == retryqueue.ReasonReconcileOrphanEvent {
		e.log.WithTenant(tenant.ID).Error("orphan calendar event needs manual removal",
			"event_id", payload.ExternalEventID, "calendar_id", payload.CalendarID, "entry_id", entry.ID.String())
		return nil
	}

	if entry.LeadID == nil {
		return fmt.Errorf("%w: entry has no lead", ErrObsolete)
	}
	lead, err := e.leads.GetByID(ctx, *entry.LeadID)
	if errors.Is(err, leadrepo.ErrNotFound) {
		return fmt.Errorf("%w: lead not found", ErrObsolete)
	}
	if err != nil {
		return err
	}

	switch {
	case retryqueue.IsReminder(entry.Reason):
		return e.remind(ctx, tenant, lead, payload)
	case entry.Reason == retryqueue.ReasonReconcileBooking:
		b, err := booking.FromPayload(tenant.ID, lead.ID, payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrObsolete, err)
		}
		return e.reconciler.Reconcile(ctx, b)
	case strings.HasPrefix(entry.Reason, "follow_up"):
		return e.followUp(ctx, entry.Reason, tenant, lead, payload)
	default:
		return fmt.Errorf("%w: unknown reason %q", ErrObsolete, entry.Reason)
	}
}

func (e *Executor) followUp(ctx context.Context, reason string, tenant *tenants.Tenant, lead domain.Lead, p retryqueue.Payload) error {
	switch reason {
	case retryqueue.ReasonFollowUpNudge:
		if !lead.Status.In(domain.StatusCallAttempted, domain.StatusAwaitingReply) {
			return ErrObsolete
		}
		if _, err := e.outreach.Reoffer(ctx, tenant, lead, outreach.OfferNudge); err != nil {
			return err
		}
		next := p
		next.Nudge++
		if next.Nudge < e.maxNudges {
			return e.schedule(ctx, lead, retryqueue.ReasonFollowUpNudge, next)
		}
		return e.schedule(ctx, lead, retryqueue.ReasonFollowUpExpire, retryqueue.Payload{Attempt: p.Attempt})

	case retryqueue.ReasonFollowUpOffer:
		if !lead.Status.In(domain.OutreachStatuses...) {
			return ErrObsolete
		}
		if _, err := e.outreach.Reoffer(ctx, tenant, lead, outreach.OfferResend); err != nil {
			return err
		}
		return e.schedule(ctx, lead, retryqueue.ReasonFollowUpNudge, retryqueue.Payload{Attempt: p.Attempt})

	case retryqueue.ReasonFollowUpRecall:
		if !lead.Status.In(domain.OutreachStatuses...) {
			return ErrObsolete
		}
		_, err := e.outreach.Trigger(ctx, outreach.TriggerRequest{
			Tenant:  tenant,
			Lead:    outreach.LeadInput{Phone: lead.Phone, Name: lead.Name, Service: lead.Service},
			Attempt: p.Attempt,
		})
		return err

	case retryqueue.ReasonFollowUpExpire:
		moved, err := e.leads.TransitionStatus(ctx, lead.ID,
			[]domain.Status{domain.StatusCallAttempted, domain.StatusAwaitingReply}, domain.StatusExpired)
		if err != nil {
			return err
		}
		if !moved {
			return ErrObsolete
		}
		outreach.PublishState(ctx, e.bus, e.log, e.now(), lead, events.StateExpired, "no reply")
		return nil
	}
	return fmt.Errorf("%w: unknown reason %q", ErrObsolete, reason)
}

// remind texts the lead while the booking is still active.
func (e *Executor) remind(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, p retryqueue.Payload) error {
	if p.BookingID == nil {
		return fmt.Errorf("%w: reminder without booking", ErrObsolete)
	}
	b, err := e.bookings.GetByID(ctx, *p.BookingID)
	if errors.Is(err, booking.ErrNotFound) {
		return fmt.Errorf("%w: booking not found", ErrObsolete)
	}
	if err != nil {
		return err
	}
	if b.Status != booking.StatusActive || !b.Slot.Start.After(e.now()) {
		return ErrObsolete
	}
	_, err = e.sender.SendMessage(ctx, lead.Phone, messaging.ReminderText(tenant.Name, b.Slot, tenant.Location()))
	return err
}

func (e *Executor) schedule(ctx context.Context, lead domain.Lead, reason string, p retryqueue.Payload) error {
	_, err := e.queue.Insert(ctx, retryqueue.InsertParams{
		TenantID:     lead.TenantID,
		LeadID:       &lead.ID,
		Reason:       reason,
		ScheduledFor: e.now().Add(e.delay),
		Payload:      p,
	})
	if err != nil {
		// The send already happened; do not retry it.
		e.log.Error("schedule next follow-up failed", "lead_id", lead.ID.String(), "reason", reason, "error", err.Error())
	}
	return nil
}
