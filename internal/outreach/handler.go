package outreach

import (
	"context"
	"net/http"
	"time"

	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/httpkit"
	"leadbooking_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errInvalidLeadID  = "invalid lead ID"
)

type TenantLookup interface {
	Get(id string) (*tenants.Tenant, error)
}

// Service is the part of the dispatcher the HTTP layer drives.
type Service interface {
	Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error)
	HandleCallOutcome(ctx context.Context, out CallOutcome) error
}

// Handler handles outreach HTTP requests.
type Handler struct {
	svc     Service
	tenants TenantLookup
	val     *validator.Validator
}

func NewHandler(svc Service, lookup TenantLookup, val *validator.Validator) *Handler {
	return &Handler{svc: svc, tenants: lookup, val: val}
}

// TriggerBody starts outreach for a lead.
type TriggerBody struct {
	TenantID string    `json:"tenantId" validate:"required,max=100"`
	Lead     LeadInput `json:"lead"`
}

type LeadResponse struct {
	ID       uuid.UUID `json:"id"`
	Phone    string    `json:"phone"`
	Name     string    `json:"name,omitempty"`
	Service  string    `json:"service,omitempty"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type TriggerResponse struct {
	Lead   LeadResponse   `json:"lead"`
	State  string         `json:"state"`
	CallID string         `json:"callId,omitempty"`
	Slots  []SlotResponse `json:"slots"`
}

// HandleTrigger runs an outreach attempt.
// POST /api/v1/outreach/trigger
func (h *Handler) HandleTrigger(c *gin.Context) {
	var req TriggerBody
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}
	if !httpkit.AuthorizeTenant(c, req.TenantID) {
		return
	}
	tenant, err := h.tenants.Get(req.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	res, err := h.svc.Trigger(c.Request.Context(), TriggerRequest{Tenant: tenant, Lead: req.Lead})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := TriggerResponse{
		Lead: LeadResponse{
			ID:       res.Lead.ID,
			Phone:    res.Lead.Phone,
			Name:     res.Lead.Name,
			Service:  res.Lead.Service,
			Status:   string(res.Lead.Status),
			Attempts: res.Lead.Attempts,
		},
		State:  res.State,
		CallID: res.CallID,
		Slots:  make([]SlotResponse, 0, len(res.Candidates)),
	}
	for _, cand := range res.Candidates {
		resp.Slots = append(resp.Slots, SlotResponse{Start: cand.Start, End: cand.End})
	}
	c.JSON(http.StatusCreated, resp)
}

// CallOutcomeBody is the voice provider's completion callback.
type CallOutcomeBody struct {
	TenantID  string `json:"tenantId" validate:"required,max=100"`
	LeadID    string `json:"leadId" validate:"required"`
	CallID    string `json:"callId" validate:"required,max=200"`
	Status    string `json:"status" validate:"required,oneof=completed no_answer busy failed voicemail"`
	ChosenKey int    `json:"chosenKey" validate:"min=0,max=9"`
}

// HandleCallOutcome records a finished call.
// POST /api/v1/voice/outcomes
func (h *Handler) HandleCallOutcome(c *gin.Context) {
	var req CallOutcomeBody
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
	tenant, err := h.tenants.Get(req.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	err = h.svc.HandleCallOutcome(c.Request.Context(), CallOutcome{
		Tenant:    tenant,
		LeadID:    leadID,
		CallID:    req.CallID,
		Status:    req.Status,
		ChosenKey: req.ChosenKey,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
