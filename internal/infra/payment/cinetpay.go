package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/ports/adapter"
)

const GatewayCinetPay = "cinetpay"

var (
	_ adapter.PaymentGateway = (*CinetPayGateway)(nil)
	_ WebhookParser          = (*CinetPayGateway)(nil)
)

// CinetPayGateway uses the CinetPay checkout v2 API. The transaction id sent
// to CinetPay is our own payment reference.
type CinetPayGateway struct {
	api       apiClient
	apiKey    string
	siteID    string
	secretKey []byte
}

func NewCinetPayGateway(cfg config.CinetPayConfig, timeout time.Duration) *CinetPayGateway {
	return &CinetPayGateway{
		api:       newAPIClient(GatewayCinetPay, cfg.BaseURL, timeout),
		apiKey:    cfg.APIKey,
		siteID:    cfg.SiteID,
		secretKey: []byte(cfg.SecretKey),
	}
}

func (g *CinetPayGateway) Name() string { return GatewayCinetPay }

// ValidatePhone returns +223XXXXXXXX.
func (g *CinetPayGateway) ValidatePhone(phone string) (string, error) {
	local, ok := normalizeMaliPhone(phone, "")
	if !ok {
		return "", adapter.NewInvalidInputError(GatewayCinetPay, "payment.invalid_phone")
	}
	return "+" + maliCountryCode + local, nil
}

type cpPaymentRequest struct {
	APIKey          string `json:"apikey"`
	SiteID          string `json:"site_id"`
	TransactionID   string `json:"transaction_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	NotifyURL       string `json:"notify_url"`
	ReturnURL       string `json:"return_url"`
	Channels        string `json:"channels"`
	CustomerName    string `json:"customer_name"`
	CustomerSurname string `json:"customer_surname"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	CustomerPhone   string `json:"customer_phone_number"`
	Lang            string `json:"lang"`
}

type cpPaymentResponse struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
	Data        struct {
		PaymentToken string `json:"payment_token"`
		PaymentURL   string `json:"payment_url"`
	} `json:"data"`
}

type cpCheckRequest struct {
	APIKey        string `json:"apikey"`
	SiteID        string `json:"site_id"`
	TransactionID string `json:"transaction_id"`
}

type cpCheckResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status string `json:"status"`
	} `json:"data"`
}

func cinetPayError(code string) error {
	switch code {
	case "602":
		return adapter.NewRejectedError(GatewayCinetPay, code, "payment.insufficient_balance")
	case "604":
		return adapter.NewRejectedError(GatewayCinetPay, code, "payment.cinetpay.otp")
	case "606", "609", "613":
		return adapter.NewRejectedError(GatewayCinetPay, code, "payment.cinetpay.settings")
	case "608":
		ge := adapter.NewInvalidInputError(GatewayCinetPay, "payment.cinetpay.fields")
		ge.Code = code
		return ge
	case "627":
		return adapter.NewRejectedError(GatewayCinetPay, code, "payment.cancelled")
	}
	return adapter.NewRejectedError(GatewayCinetPay, code, "payment.cinetpay.rejected")
}

func (g *CinetPayGateway) InitiatePayment(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	phone, err := g.ValidatePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Reference == "" {
		return nil, adapter.NewInvalidInputError(GatewayCinetPay, "payment.invalid_amount")
	}
	first, last := splitName(req.CustomerName)
	body := cpPaymentRequest{
		APIKey:          g.apiKey,
		SiteID:          g.siteID,
		TransactionID:   req.Reference,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		NotifyURL:       req.NotifyURL,
		ReturnURL:       req.ReturnURL,
		Channels:        "MOBILE_MONEY",
		CustomerName:    first,
		CustomerSurname: last,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   phone,
		Lang:            "fr",
	}
	var out cpPaymentResponse
	if _, err := g.api.postJSON(ctx, "payment", "/payment", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Code != "201" || out.Data.PaymentURL == "" {
		return nil, cinetPayError(out.Code)
	}
	return &adapter.PaymentResult{
		Success:       true,
		TransactionID: req.Reference,
		RedirectURL:   out.Data.PaymentURL,
		Status:        adapter.GatewayStatusPending,
	}, nil
}

func (g *CinetPayGateway) CheckStatus(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error) {
	id := q.TransactionID
	if id == "" {
		id = q.Reference
	}
	var out cpCheckResponse
	if _, err := g.api.postJSON(ctx, "check", "/payment/check", nil,
		cpCheckRequest{APIKey: g.apiKey, SiteID: g.siteID, TransactionID: id}, &out); err != nil {
		return "", err
	}
	switch out.Code {
	case "00":
	case "623", "662":
		return adapter.GatewayStatusPending, nil
	case "600", "602", "604":
		return adapter.GatewayStatusFailed, nil
	case "627":
		return adapter.GatewayStatusCancelled, nil
	default:
		return "", cinetPayError(out.Code)
	}
	switch strings.ToUpper(out.Data.Status) {
	case "ACCEPTED":
		return adapter.GatewayStatusCompleted, nil
	case "REFUSED":
		return adapter.GatewayStatusFailed, nil
	case "WAITING_FOR_CUSTOMER", "PENDING":
		return adapter.GatewayStatusPending, nil
	}
	return "", adapter.NewNetworkError(GatewayCinetPay, fmt.Errorf("unknown status %q", out.Data.Status))
}

// cpTokenFields is the field order CinetPay concatenates to compute x-token.
var cpTokenFields = []string{
	"cpm_site_id", "cpm_trans_id", "cpm_trans_date", "cpm_amount", "cpm_currency",
	"signature", "payment_method", "cel_phone_num", "cpm_phone_prefixe", "cpm_language",
	"cpm_version", "cpm_payment_config", "cpm_page_action", "cpm_custom", "cpm_designation",
	"cpm_error_message",
}

// ParseWebhook verifies the x-token header and returns our transaction id.
func (g *CinetPayGateway) ParseWebhook(r *http.Request) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	ref := r.PostForm.Get("cpm_trans_id")
	if ref == "" {
		return "", domain.ErrValidation
	}
	if len(g.secretKey) == 0 {
		return ref, nil
	}
	var b strings.Builder
	for _, f := range cpTokenFields {
		b.WriteString(r.PostForm.Get(f))
	}
	mac := hmac.New(sha256.New, g.secretKey)
	mac.Write([]byte(b.String()))
	want := hex.EncodeToString(mac.Sum(nil))
	got := strings.ToLower(strings.TrimSpace(r.Header.Get("x-token")))
	if !hmac.Equal([]byte(want), []byte(got)) {
		return "", domain.ErrInvalidSignature
	}
	return ref, nil
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Client", "Elverra"
	case 1:
		return parts[0], parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
