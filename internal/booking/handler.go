package booking

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leadbooking_backend/internal/slots"
	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/httpkit"
	"leadbooking_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest   = "invalid request body"
	errInvalidBookingID = "invalid booking ID"
	errInvalidLeadID    = "invalid lead ID"
)

type TenantLookup interface {
	Get(id string) (*tenants.Tenant, error)
}

type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Booking, error)
}

type Service interface {
	Commit(ctx context.Context, req CommitRequest) (Booking, error)
}

// Handler handles booking HTTP requests.
type Handler struct {
	svc     Service
	reader  Reader
	tenants TenantLookup
	val     *validator.Validator
}

func NewHandler(svc Service, reader Reader, lookup TenantLookup, val *validator.Validator) *Handler {
	return &Handler{svc: svc, reader: reader, tenants: lookup, val: val}
}

type SlotBody struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// CommitBody books a slot for a lead directly, bypassing the SMS reply path.
type CommitBody struct {
	TenantID string   `json:"tenantId" validate:"required,max=100"`
	LeadID   string   `json:"leadId" validate:"required"`
	Service  string   `json:"service" validate:"max=100"`
	Slot     SlotBody `json:"slot"`
}

type Response struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenantId"`
	LeadID          uuid.UUID `json:"leadId"`
	Service         string    `json:"service,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	ExternalEventID string    `json:"externalEventId"`
	Status          string    `json:"status"`
	Persisted       bool      `json:"persisted"`
}

func toResponse(b Booking) Response {
	return Response{
		ID:              b.ID,
		TenantID:        b.TenantID,
		LeadID:          b.LeadID,
		Service:         b.Service,
		Start:           b.Slot.Start,
		End:             b.Slot.End,
		ExternalEventID: b.ExternalEventID,
		Status:          string(b.Status),
		Persisted:       b.Persisted,
	}
}

// HandleCommit books a slot.
// POST /api/v1/bookings
func (h *Handler) HandleCommit(c *gin.Context) {
	var req CommitBody
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}
	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidLeadID, nil)
		return
	}
	if !httpkit.AuthorizeTenant(c, req.TenantID) {
		return
	}
	tenant, err := h.tenants.Get(req.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	b, err := h.svc.Commit(c.Request.Context(), CommitRequest{
		Tenant:  tenant,
		LeadID:  leadID,
		Service: req.Service,
		Slot:    slots.Candidate{Start: req.Slot.Start, End: req.Slot.End},
	})
	if httpkit.HandleError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, toResponse(b))
}

// HandleGet returns a booking by id.
// GET /api/v1/bookings/:id
func (h *Handler) HandleGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidBookingID, nil)
		return
	}

	b, err := h.reader.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httpkit.HandleError(c, apperr.NotFound("booking not found"))
		return
	}
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "load booking", err))
		return
	}
	caller := httpkit.MustGetIdentity(c)
	if caller == nil {
		return
	}
	// Another tenant's booking is reported as missing.
	if caller.TenantID() != "" && caller.TenantID() != b.TenantID {
		httpkit.HandleError(c, apperr.NotFound("booking not found"))
		return
	}
	httpkit.OK(c, toResponse(b))
}
