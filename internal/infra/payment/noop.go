package payment

import (
	"context"
	"fmt"
	"sync"

	"elverra-membership/internal/domain/ports/adapter"
)

const GatewayNoop = "noop"

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway is an in-memory gateway for development and tests. Payments stay
// pending until Settle is called.
type NoopGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]adapter.GatewayStatus // transaction id -> status
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{intents: make(map[string]adapter.GatewayStatus)}
}

func (g *NoopGateway) Name() string { return GatewayNoop }

func (g *NoopGateway) ValidatePhone(phone string) (string, error) {
	local, ok := normalizeMaliPhone(phone, "")
	if !ok {
		return "", adapter.NewInvalidInputError(GatewayNoop, "payment.invalid_phone")
	}
	return local, nil
}

func (g *NoopGateway) InitiatePayment(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	if _, err := g.ValidatePhone(req.Phone); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.intents[id] = adapter.GatewayStatusPending
	return &adapter.PaymentResult{
		Success:       true,
		TransactionID: id,
		RedirectURL:   "https://example.test/pay/" + id,
		Status:        adapter.GatewayStatusPending,
	}, nil
}

func (g *NoopGateway) CheckStatus(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.intents[q.TransactionID]
	if !ok {
		return "", adapter.NewRejectedError(GatewayNoop, "404", "payment.not_found")
	}
	return st, nil
}

// Settle sets the status later reported for a transaction.
func (g *NoopGateway) Settle(transactionID string, status adapter.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[transactionID] = status
}
