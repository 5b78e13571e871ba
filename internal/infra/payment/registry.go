package payment

import (
	"sort"
	"sync"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/ports/adapter"
)

// Registry resolves gateways by name.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]adapter.PaymentGateway
}

func NewRegistry(gws ...adapter.PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[string]adapter.PaymentGateway, len(gws))}
	for _, g := range gws {
		r.Register(g)
	}
	return r
}

// NewRegistryFromConfig registers the three mobile money providers and, when
// enabled, the noop gateway.
func NewRegistryFromConfig(cfg config.PaymentConfig) *Registry {
	r := NewRegistry(
		NewOrangeMoneyGateway(cfg.OrangeMoney, cfg.HTTPTimeout),
		NewSamaMoneyGateway(cfg.SamaMoney, cfg.HTTPTimeout),
		NewCinetPayGateway(cfg.CinetPay, cfg.HTTPTimeout),
	)
	if cfg.EnableNoop {
		r.Register(NewNoopGateway())
	}
	return r
}

func (r *Registry) Register(g adapter.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Name()] = g
}

func (r *Registry) Get(name string) (adapter.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[name]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return g, nil
}

// Webhook returns the callback parser of a gateway.
func (r *Registry) Webhook(name string) (WebhookParser, error) {
	g, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	p, ok := g.(WebhookParser)
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
var _ adapter.GatewayRegistry = (*Registry)(nil)
