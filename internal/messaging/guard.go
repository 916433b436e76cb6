package messaging

import (
	"context"

	"leadbooking_backend/platform/apperr"
	"leadbooking_backend/platform/logger"
	"leadbooking_backend/platform/metrics"
)

// OptOutChecker reads the opt-out set.
type OptOutChecker interface {
	IsOptedOut(ctx context.Context, phone string) (bool, error)
}

// GuardedSender consults the opt-out set before every send.
//
// A recipient in the set gets a Compliance error and nothing is sent. When
// the lookup itself fails the send proceeds with a warning, unless the guard
// was built fail-closed, in which case a Transient error is returned.
type GuardedSender struct {
	next       Sender
	optOuts    OptOutChecker
	failClosed bool
	log        *logger.Logger
}

func NewGuardedSender(next Sender, optOuts OptOutChecker, failClosed bool, log *logger.Logger) *GuardedSender {
	if log == nil {
		log = logger.Nop()
	}
	return &GuardedSender{next: next, optOuts: optOuts, failClosed: failClosed, log: log}
}

func (g *GuardedSender) SendMessage(ctx context.Context, to, body string) (Receipt, error) {
	optedOut, err := g.optOuts.IsOptedOut(ctx, to)
	switch {
	case err != nil && g.failClosed:
		metrics.RecordOptOutLookupFailure()
		return Receipt{}, apperr.Transient("optout store", err).WithOp("messaging.SendMessage")
	case err != nil:
		metrics.RecordOptOutLookupFailure()
		g.log.Warn("opt-out lookup failed, sending anyway", "error", err.Error())
	case optedOut:
		metrics.RecordComplianceBlock("sms")
		g.log.ComplianceBlocked("sms", "recipient opted out")
		return Receipt{}, apperr.Compliance("recipient has opted out").WithOp("messaging.SendMessage")
	}

	receipt, err := g.next.SendMessage(ctx, to, body)
	if err != nil {
		metrics.RecordProviderError("messaging", "send")
		g.log.ProviderFailure("messaging", "send", err)
		return Receipt{}, apperr.Transient("messaging", err).WithOp("messaging.SendMessage")
	}
	return receipt, nil
}
