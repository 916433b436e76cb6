package inbound

import (
	"context"
	"net/http"
	"strings"

	"leadbooking_backend/internal/tenants"
	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/httpkit"
	"leadbooking_backend/platform/phone"
	"leadbooking_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const errInvalidRequest = "invalid request body"

// TenantLookup resolves the tenant a message belongs to.
type TenantLookup interface {
	Get(id string) (*tenants.Tenant, error)
	ByPhoneNumber(number string) (*tenants.Tenant, error)
}

// MessageHandler processes a single inbound message.
type MessageHandler interface {
	Handle(ctx context.Context, msg Message) (Result, error)
}

// Handler handles the messaging provider's inbound webhook.
type Handler struct {
	messages MessageHandler
	tenants  TenantLookup
	val      *validator.Validator
	region   string
}

func NewHandler(messages MessageHandler, lookup TenantLookup, val *validator.Validator, region string) *Handler {
	if region == "" {
		region = phone.DefaultRegion
	}
	return &Handler{messages: messages, tenants: lookup, val: val, region: region}
}

// MessageRequest is the provider's inbound SMS callback. TenantID is optional;
// without it the tenant is resolved from the number the lead texted.
type MessageRequest struct {
	TenantID  string `json:"tenantId" validate:"max=100"`
	From      string `json:"from" validate:"required,max=32"`
	To        string `json:"to" validate:"required,max=32"`
	Body      string `json:"body" validate:"max=1600"`
	MessageID string `json:"messageId" validate:"required,max=200"`
}

type MessageResponse struct {
	Command   string     `json:"command"`
	Duplicate bool       `json:"duplicate"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
}

// HandleMessage processes one inbound SMS.
// POST /api/v1/inbound/messages
func (h *Handler) HandleMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if httpkit.HandleError(c, h.val.Check(req)) {
		return
	}

	tenant, err := h.resolveTenant(req)
	if httpkit.HandleError(c, err) {
		return
	}

	res, err := h.messages.Handle(c.Request.Context(), Message{
		Tenant:    tenant,
		From:      req.From,
		To:        req.To,
		Body:      req.Body,
		MessageID: req.MessageID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, MessageResponse{
		Command:   res.Command.String(),
		Duplicate: res.Duplicate,
		LeadID:    res.LeadID,
	})
}

func (h *Handler) resolveTenant(req MessageRequest) (*tenants.Tenant, error) {
	if id := strings.TrimSpace(req.TenantID); id != "" {
		return h.tenants.Get(id)
	}
	to, err := phone.Parse(req.To, h.region)
	if err != nil {
		return nil, apperr.Validation("to must be a valid phone number")
	}
	return h.tenants.ByPhoneNumber(to)
}
