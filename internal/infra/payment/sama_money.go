package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain/ports/adapter"
)

const GatewaySamaMoney = "sama_money"

var _ adapter.PaymentGateway = (*SamaMoneyGateway)(nil)

// SamaMoneyGateway integrates the SAMA Money merchant API. Requests are form
// encoded and authenticated with a short-lived token fetched per attempt.
type SamaMoneyGateway struct {
	api        apiClient
	merchantID string
	publicKey  string
	secretKey  string
}

func NewSamaMoneyGateway(cfg config.SamaMoneyConfig, timeout time.Duration) *SamaMoneyGateway {
	return &SamaMoneyGateway{
		api:        newAPIClient(GatewaySamaMoney, cfg.BaseURL, timeout),
		merchantID: cfg.MerchantID,
		publicKey:  cfg.PublicKey,
		secretKey:  cfg.SecretKey,
	}
}

func (g *SamaMoneyGateway) Name() string { return GatewaySamaMoney }

// ValidatePhone returns the 8 local digits SAMA expects.
func (g *SamaMoneyGateway) ValidatePhone(phone string) (string, error) {
	local, ok := normalizeMaliPhone(phone, "")
	if !ok {
		return "", adapter.NewInvalidInputError(GatewaySamaMoney, "payment.invalid_phone")
	}
	return local, nil
}

type samaTokenResponse struct {
	Status    int    `json:"status"`
	Msg       string `json:"msg"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type samaInitResponse struct {
	Status        int    `json:"status"`
	Msg           string `json:"msg"`
	IDTransaction string `json:"idTransaction"`
	URL           string `json:"url"`
}

type samaStatusResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Etat   int    `json:"etat"`
}

// samaErrors maps SAMA result codes to an error kind and message key.
var samaErrors = map[int]struct {
	kind adapter.GatewayErrorKind
	key  string
}{
	-1: {adapter.KindRejected, "payment.sama.credentials"},
	-2: {adapter.KindRejected, "payment.insufficient_balance"},
	-3: {adapter.KindInvalidInput, "payment.invalid_phone"},
	-4: {adapter.KindInvalidInput, "payment.invalid_amount"},
	-5: {adapter.KindRejected, "payment.duplicate_reference"},
}

func samaError(code int) error {
	c := strconv.Itoa(code)
	if e, ok := samaErrors[code]; ok {
		if e.kind == adapter.KindInvalidInput {
			ge := adapter.NewInvalidInputError(GatewaySamaMoney, e.key)
			ge.Code = c
			return ge
		}
		return adapter.NewRejectedError(GatewaySamaMoney, c, e.key)
	}
	return adapter.NewRejectedError(GatewaySamaMoney, c, "payment.sama.rejected")
}

func (g *SamaMoneyGateway) token(ctx context.Context) (string, error) {
	var out samaTokenResponse
	status, err := g.api.postForm(ctx, "token", "/auth/token", nil, url.Values{
		"merchant_id": {g.merchantID},
		"public_key":  {g.publicKey},
		"secret_key":  {g.secretKey},
	}, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || out.Status != 1 || out.Token == "" {
		if out.Status < 0 {
			return "", samaError(out.Status)
		}
		return "", adapter.NewRejectedError(GatewaySamaMoney, strconv.Itoa(status), "payment.sama.credentials")
	}
	return out.Token, nil
}

func (g *SamaMoneyGateway) InitiatePayment(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	phone, err := g.ValidatePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Reference == "" {
		return nil, adapter.NewInvalidInputError(GatewaySamaMoney, "payment.invalid_amount")
	}
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	var out samaInitResponse
	status, err := g.api.postForm(ctx, "init", "/payment/init",
		map[string]string{"X-Sama-Token": tok},
		url.Values{
			"cmd":         {req.Reference},
			"montant":     {strconv.FormatInt(req.Amount, 10)},
			"tel":         {phone},
			"nom":         {req.CustomerName},
			"description": {req.Description},
			"url_retour":  {req.ReturnURL},
			"url_notif":   {req.NotifyURL},
		}, &out)
	if err != nil {
		return nil, err
	}
	if out.Status < 0 {
		return nil, samaError(out.Status)
	}
	if status != http.StatusOK || out.Status != 1 || out.IDTransaction == "" {
		return nil, adapter.NewRejectedError(GatewaySamaMoney, strconv.Itoa(status), "payment.sama.rejected")
	}
	return &adapter.PaymentResult{
		Success:       true,
		TransactionID: out.IDTransaction,
		RedirectURL:   out.URL,
		Status:        adapter.GatewayStatusPending,
	}, nil
}

func (g *SamaMoneyGateway) CheckStatus(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return "", err
	}
	var out samaStatusResponse
	if _, err := g.api.postForm(ctx, "status", "/payment/status",
		map[string]string{"X-Sama-Token": tok},
		url.Values{"idTransaction": {q.TransactionID}}, &out); err != nil {
		return "", err
	}
	if out.Status < 0 {
		return "", samaError(out.Status)
	}
	switch out.Etat {
	case 0:
		return adapter.GatewayStatusPending, nil
	case 1:
		return adapter.GatewayStatusCompleted, nil
	case 2:
		return adapter.GatewayStatusFailed, nil
	case 3:
		return adapter.GatewayStatusCancelled, nil
	}
	return "", adapter.NewNetworkError(GatewaySamaMoney, fmt.Errorf("unknown etat %d", out.Etat))
}
