// Package leadstest provides an in-memory lead store for tests. It mirrors
// the guarded transitions of the Postgres repository.
package leadstest

import (
	"context"
	"sync"
	"time"

	"leadbooking_backend/internal/leads/domain"
	"leadbooking_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type Store struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]domain.Lead
	order      []uuid.UUID
	offers     map[uuid.UUID]domain.Offer
	optOuts    map[string]bool
	deliveries map[string]bool

	// OptOutErr, when set, fails every IsOptedOut lookup.
	OptOutErr error
	// FailNextOptWrite, when set, fails the next opt flag write and is
	// then cleared. Nothing of the failed write is kept.
	FailNextOptWrite error
}

var _ repository.LeadStore = (*Store)(nil)

func New() *Store {
	return &Store{
		leads:      make(map[uuid.UUID]domain.Lead),
		offers:     make(map[uuid.UUID]domain.Offer),
		optOuts:    make(map[string]bool),
		deliveries: make(map[string]bool),
	}
}

// Add stores lead as is, assigning an id when it has none.
func (s *Store) Add(lead domain.Lead) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.Status == "" {
		lead.Status = domain.StatusNew
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	s.leads[lead.ID] = lead
	s.order = append(s.order, lead.ID)
	return lead
}

// Lead returns the current state of a stored lead.
func (s *Store) Lead(id uuid.UUID) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[id]
}

// Offer returns the stored offer for a lead.
func (s *Store) Offer(id uuid.UUID) (domain.Offer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	return o, ok
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *Store) FindLatestByPhone(_ context.Context, tenantID, phone string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		lead := s.leads[s.order[i]]
		if lead.TenantID == tenantID && lead.Phone == phone {
			return lead, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (s *Store) FindOrCreateLead(_ context.Context, p repository.CreateLeadParams) (domain.Lead, bool, error) {
	s.mu.Lock()
	for _, id := range s.order {
		lead := s.leads[id]
		if lead.TenantID == p.TenantID && lead.Phone == p.Phone &&
			lead.Status != domain.StatusBooked && lead.Status != domain.StatusExpired {
			if p.Name != "" {
				lead.Name = p.Name
			}
			if p.Service != "" {
				lead.Service = p.Service
			}
			s.leads[id] = lead
			s.mu.Unlock()
			return lead, false, nil
		}
	}
	s.mu.Unlock()
	lead := s.Add(domain.Lead{TenantID: p.TenantID, Phone: p.Phone, Name: p.Name, Service: p.Service})
	return lead, true, nil
}

func (s *Store) BeginAttempt(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok || !lead.Status.In(domain.OutreachStatuses...) {
		return domain.Lead{}, repository.ErrInvalidTransition
	}
	lead.Status = domain.StatusCallAttempted
	lead.Attempts++
	s.leads[id] = lead
	return lead, nil
}

func (s *Store) TransitionStatus(_ context.Context, id uuid.UUID, from []domain.Status, to domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok || !lead.Status.In(from...) {
		return false, nil
	}
	lead.Status = to
	s.leads[id] = lead
	return true, nil
}

func (s *Store) MarkBooked(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.TransitionStatus(ctx, id, domain.BookableStatuses, domain.StatusBooked)
}

func (s *Store) StoreProposedChoice(_ context.Context, offer domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.LeadID] = offer
	return nil
}

func (s *Store) GetOffer(_ context.Context, leadID uuid.UUID) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[leadID]
	if !ok {
		return domain.Offer{}, repository.ErrOfferNotFound
	}
	return o, nil
}

func (s *Store) IsOptedOut(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OptOutErr != nil {
		return false, s.OptOutErr
	}
	return s.optOuts[phone], nil
}

func (s *Store) SetOptStatus(_ context.Context, phone string, optedOut bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setOptStatus(phone, optedOut)
}

func (s *Store) setOptStatus(phone string, optedOut bool) error {
	if err := s.FailNextOptWrite; err != nil {
		s.FailNextOptWrite = nil
		return err
	}
	s.optOuts[phone] = optedOut
	for id, lead := range s.leads {
		if lead.Phone != phone {
			continue
		}
		switch {
		case optedOut && lead.Status.In(domain.OutreachStatuses...):
			lead.Status = domain.StatusOptedOut
		case !optedOut && lead.Status == domain.StatusOptedOut:
			lead.Status = domain.StatusNew
		default:
			continue
		}
		s.leads[id] = lead
	}
	return nil
}

func (s *Store) RecordDelivery(_ context.Context, messageID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries[messageID] {
		return false, nil
	}
	s.deliveries[messageID] = true
	return true, nil
}

func (s *Store) ForgetDelivery(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deliveries, messageID)
	return nil
}

func (s *Store) RecordOptStatus(_ context.Context, messageID, _, phone string, optedOut bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveries[messageID] {
		return false, nil
	}
	if err := s.setOptStatus(phone, optedOut); err != nil {
		return false, err
	}
	s.deliveries[messageID] = true
	return true, nil
}

// Delivered reports whether messageID is recorded in the inbox.
func (s *Store) Delivered(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[messageID]
}
