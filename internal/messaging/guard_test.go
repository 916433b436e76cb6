package messaging

import (
	"context"
	"errors"
	"testing"

	"leadbooking_backend/platform/apperr"
)

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) SendMessage(_ context.Context, to, _ string) (Receipt, error) {
	if s.err != nil {
		return Receipt{}, s.err
	}
	s.sent = append(s.sent, to)
	return Receipt{Provider: "test"}, nil
}

type stubOptOuts struct {
	optedOut map[string]bool
	err      error
}

func (s stubOptOuts) IsOptedOut(_ context.Context, phone string) (bool, error) {
	return s.optedOut[phone], s.err
}

func TestGuardedSenderBlocksOptedOut(t *testing.T) {
	next := &recordingSender{}
	guard := NewGuardedSender(next, stubOptOuts{optedOut: map[string]bool{"+447700900123": true}}, false, nil)

	_, err := guard.SendMessage(context.Background(), "+447700900123", "hello")
	if apperr.GetKind(err) != apperr.KindCompliance {
		t.Fatalf("expected compliance error, got %v", err)
	}
	if len(next.sent) != 0 {
		t.Fatal("opted-out recipient must not receive a message")
	}
}

func TestGuardedSenderFailsOpenByDefault(t *testing.T) {
	next := &recordingSender{}
	guard := NewGuardedSender(next, stubOptOuts{err: errors.New("db down")}, false, nil)

	if _, err := guard.SendMessage(context.Background(), "+447700900123", "hello"); err != nil {
		t.Fatalf("expected send to proceed, got %v", err)
	}
	if len(next.sent) != 1 {
		t.Fatal("expected message to be sent when lookup fails open")
	}
}

func TestGuardedSenderFailClosed(t *testing.T) {
	next := &recordingSender{}
	guard := NewGuardedSender(next, stubOptOuts{err: errors.New("db down")}, true, nil)

	_, err := guard.SendMessage(context.Background(), "+447700900123", "hello")
	if apperr.GetKind(err) != apperr.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(next.sent) != 0 {
		t.Fatal("fail-closed guard must not send")
	}
}

func TestGuardedSenderWrapsProviderFailure(t *testing.T) {
	guard := NewGuardedSender(&recordingSender{err: errors.New("gateway 502")}, stubOptOuts{}, false, nil)

	_, err := guard.SendMessage(context.Background(), "+447700900123", "hello")
	if apperr.GetKind(err) != apperr.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}
