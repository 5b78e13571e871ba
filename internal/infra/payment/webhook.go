package payment

import (
	"fmt"
	"net/http"
	"strings"

	"elverra-membership/internal/domain"
)

// WebhookParser extracts the transaction reference from a provider callback.
// The body's status is never trusted; callers re-check with the provider.
type WebhookParser interface {
	ParseWebhook(r *http.Request) (string, error)
}

var (
	_ WebhookParser = (*OrangeMoneyGateway)(nil)
	_ WebhookParser = (*SamaMoneyGateway)(nil)
	_ WebhookParser = (*NoopGateway)(nil)
)

// ParseWebhook reads the ref query parameter we append to notif_url.
func (g *OrangeMoneyGateway) ParseWebhook(r *http.Request) (string, error) {
	return queryRef(r)
}

// ParseWebhook reads the cmd form field SAMA echoes back.
func (g *SamaMoneyGateway) ParseWebhook(r *http.Request) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ref := strings.TrimSpace(r.Form.Get("cmd"))
	if ref == "" {
		return queryRef(r)
	}
	return ref, nil
}

func (g *NoopGateway) ParseWebhook(r *http.Request) (string, error) {
	return queryRef(r)
}

func queryRef(r *http.Request) (string, error) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		return "", domain.ErrValidation
	}
	return ref, nil
}

// NotifyURL builds the callback URL for a gateway and payment.
func NotifyURL(publicBaseURL, gateway, paymentID string) string {
	return strings.TrimRight(publicBaseURL, "/") + "/api/payments/webhook/" + gateway + "?ref=" + paymentID
}
