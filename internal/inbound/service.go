package inbound

import (
	"context"
	"errors"
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
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the lead persistence the interpreter needs.
type Store interface {
	RecordDelivery(ctx context.Context, messageID, tenantID string) (bool, error)
	ForgetDelivery(ctx context.Context, messageID string) error
	RecordOptStatus(ctx context.Context, messageID, tenantID, phone string, optedOut bool) (bool, error)
	FindLatestByPhone(ctx context.Context, tenantID, phone string) (domain.Lead, error)
	IsOptedOut(ctx context.Context, phone string) (bool, error)
	GetOffer(ctx context.Context, leadID uuid.UUID) (domain.Offer, error)
}

// Outreach starts calls and re-sends offers.
type Outreach interface {
	Trigger(ctx context.Context, req outreach.TriggerRequest) (outreach.TriggerResult, error)
	Reoffer(ctx context.Context, tenant *tenants.Tenant, lead domain.Lead, mode outreach.OfferMode) ([]slots.Candidate, error)
}

type Committer interface {
	Commit(ctx context.Context, req booking.CommitRequest) (booking.Booking, error)
}

type Queue interface {
	ExpirePendingForLead(ctx context.Context, leadID uuid.UUID, reasons []string, cause string) (int64, error)
}

type Deps struct {
	Store     Store
	Outreach  Outreach
	Committer Committer
	Sender    messaging.Sender
	Queue     Queue
	Bus       events.Bus
	Log       *logger.Logger
	Region    string
	Now       func() time.Time
}

// Message is one inbound SMS as delivered by the messaging provider.
type Message struct {
	Tenant    *tenants.Tenant
	From      string
	To        string
	Body      string
	MessageID string
}

// Result reports what a message did.
type Result struct {
	Command   Command
	Duplicate bool
	LeadID    *uuid.UUID
}

type Service struct {
	store     Store
	outreach  Outreach
	committer Committer
	sender    messaging.Sender
	queue     Queue
	bus       events.Bus
	log       *logger.Logger
	region    string
	now       func() time.Time
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Region == "" {
		d.Region = phone.DefaultRegion
	}
	return &Service{
		store:     d.Store,
		outreach:  d.Outreach,
		committer: d.Committer,
		sender:    d.Sender,
		queue:     d.Queue,
		bus:       d.Bus,
		log:       d.Log,
		region:    d.Region,
		now:       d.Now,
	}
}

// Handle processes msg at most once per provider message id. Opt flag
// changes are stored together with the delivery. When a command fails the
// delivery is released again so the provider's retry is not discarded.
func (s *Service) Handle(ctx context.Context, msg Message) (Result, error) {
	const op = "inbound.Handle"

	if msg.Tenant == nil {
		return Result{}, apperr.Validation("tenant is required").WithOp(op)
	}
	if strings.TrimSpace(msg.MessageID) == "" {
		return Result{}, apperr.Validation("messageId is required").WithOp(op)
	}
	from, err := phone.Parse(msg.From, s.region)
	if err != nil {
		return Result{}, apperr.Validation("from must be a valid phone number").WithOp(op)
	}
	tenant := msg.Tenant
	cmd := Interpret(msg.Body)

	var lead *domain.Lead
	switch found, err := s.store.FindLatestByPhone(ctx, tenant.ID, from); {
	case err == nil:
		lead = &found
	case !errors.Is(err, leadrepo.ErrNotFound):
		return Result{}, apperr.Wrap(apperr.KindInternal, "find lead", err).WithOp(op)
	}

	var fresh bool
	switch cmd.Kind {
	case KindOptOut, KindOptIn:
		fresh, err = s.store.RecordOptStatus(ctx, msg.MessageID, tenant.ID, from, cmd.Kind == KindOptOut)
	default:
		fresh, err = s.store.RecordDelivery(ctx, msg.MessageID, tenant.ID)
	}
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "record delivery", err).WithOp(op)
	}
	if !fresh {
		return Result{Command: cmd, Duplicate: true}, nil
	}

	result := Result{Command: cmd}
	if lead != nil {
		result.LeadID = &lead.ID
	}
	s.bus.Publish(ctx, events.InboundInterpreted{
		BaseEvent: events.NewBaseEventAt(s.now()),
		TenantID:  tenant.ID,
		LeadID:    result.LeadID,
		Command:   cmd.String(),
	})

	log := s.log.WithContext(ctx).WithTenant(tenant.ID)
	switch cmd.Kind {
	case KindOptOut:
		s.optOut(ctx, log, lead)
	case KindOptIn:
		s.optIn(ctx, log, tenant, from, lead)
	case KindCallNow:
		err = s.callNow(ctx, tenant, from, lead)
	case KindChoose:
		err = s.choose(ctx, log, tenant, from, lead, cmd.Choice)
	default:
		s.reply(ctx, log, from, messaging.HelpText)
	}
	if err != nil {
		if ferr := s.store.ForgetDelivery(context.WithoutCancel(ctx), msg.MessageID); ferr != nil {
			log.Error("release failed delivery", "message_id", msg.MessageID, "error", ferr.Error())
		}
		return Result{}, err
	}
	return result, nil
}

// optOut runs after the opt-out is stored. No text is sent afterwards.
func (s *Service) optOut(ctx context.Context, log *logger.Logger, lead *domain.Lead) {
	if lead == nil {
		return
	}
	if _, err := s.queue.ExpirePendingForLead(ctx, lead.ID, retryqueue.FollowUpReasons, "opted out"); err != nil {
		log.Warn("expire follow-ups failed", "lead_id", lead.ID.String(), "error", err.Error())
	}
	if lead.Status.In(domain.OutreachStatuses...) {
		outreach.PublishState(ctx, s.bus, s.log, s.now(), *lead, events.StateOptedOut, "")
	}
}

func (s *Service) optIn(ctx context.Context, log *logger.Logger, tenant *tenants.Tenant, from string, lead *domain.Lead) {
	if lead != nil && lead.Status == domain.StatusOptedOut {
		outreach.PublishState(ctx, s.bus, s.log, s.now(), *lead, events.StateNew, "opt_in")
	}
	s.reply(ctx, log, from, messaging.OptInConfirmation(tenant.Name))
}

func (s *Service) callNow(ctx context.Context, tenant *tenants.Tenant, from string, lead *domain.Lead) error {
	optedOut, err := s.store.IsOptedOut(ctx, from)
	if err == nil && optedOut {
		return nil
	}

	input := outreach.LeadInput{Phone: from}
	if lead != nil {
		input.Name = lead.Name
		input.Service = lead.Service
	}
	_, err = s.outreach.Trigger(ctx, outreach.TriggerRequest{Tenant: tenant, Lead: input})
	if apperr.Is(err, apperr.KindCompliance) {
		return nil
	}
	return err
}

// choose books slot n of the lead's stored offer. Without an unexpired offer
// holding at least n slots the lead gets the help text and nothing is booked.
func (s *Service) choose(ctx context.Context, log *logger.Logger, tenant *tenants.Tenant, from string, lead *domain.Lead, n int) error {
	if lead == nil || !lead.Status.In(domain.BookableStatuses...) {
		s.reply(ctx, log, from, messaging.HelpText)
		return nil
	}
	offer, err := s.store.GetOffer(ctx, lead.ID)
	if err != nil && !errors.Is(err, leadrepo.ErrOfferNotFound) {
		log.DatabaseError("load offer", err)
	}
	slot, ok := offer.Choose(n, s.now())
	if err != nil || !ok {
		s.reply(ctx, log, from, messaging.HelpText)
		return nil
	}

	_, err = s.committer.Commit(ctx, booking.CommitRequest{
		Tenant:  tenant,
		LeadID:  lead.ID,
		Service: lead.Service,
		Slot:    slot,
	})
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindSlotConflict):
		if _, err := s.outreach.Reoffer(ctx, tenant, *lead, outreach.OfferConflict); err != nil {
			log.Warn("re-offer after conflict failed", "lead_id", lead.ID.String(), "error", err.Error())
		}
		return nil
	case apperr.Is(err, apperr.KindTransient):
		log.Warn("commit unavailable, asking lead to retry", "lead_id", lead.ID.String(), "error", err.Error())
		s.reply(ctx, log, from, messaging.ChoiceRetryText(n))
		return nil
	default:
		return err
	}
}

// reply sends body through the guarded sender. An opted-out recipient is
// silently skipped.
func (s *Service) reply(ctx context.Context, log *logger.Logger, to, body string) {
	if _, err := s.sender.SendMessage(ctx, to, body); err != nil && !apperr.Is(err, apperr.KindCompliance) {
		log.Warn("reply failed", "error", err.Error())
	}
}
