package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain/ports/adapter"
)

const GatewayOrangeMoney = "orange_money"

var _ adapter.PaymentGateway = (*OrangeMoneyGateway)(nil)

// OrangeMoneyGateway talks to Orange Money WebPay (Mali). Every payment
// attempt fetches a fresh OAuth2 client-credentials token.
type OrangeMoneyGateway struct {
	api          apiClient
	clientID     string
	clientSecret string
	merchantKey  string
}

func NewOrangeMoneyGateway(cfg config.OrangeMoneyConfig, timeout time.Duration) *OrangeMoneyGateway {
	return &OrangeMoneyGateway{
		api:          newAPIClient(GatewayOrangeMoney, cfg.BaseURL, timeout),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		merchantKey:  cfg.MerchantKey,
	}
}

func (g *OrangeMoneyGateway) Name() string { return GatewayOrangeMoney }

// ValidatePhone returns 223XXXXXXXX. Orange Mali numbers start with 7, 8 or 9.
func (g *OrangeMoneyGateway) ValidatePhone(phone string) (string, error) {
	local, ok := normalizeMaliPhone(phone, "789")
	if !ok {
		return "", adapter.NewInvalidInputError(GatewayOrangeMoney, "payment.invalid_phone")
	}
	return maliCountryCode + local, nil
}

type omTokenResponse struct {
	TokenType   string `json:"token_type"`
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type omWebPaymentRequest struct {
	MerchantKey string `json:"merchant_key"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
	NotifURL    string `json:"notif_url"`
	Lang        string `json:"lang"`
	Reference   string `json:"reference"`
}

type omWebPaymentResponse struct {
	Status      int    `json:"status"`
	Message     string `json:"message"`
	PayToken    string `json:"pay_token"`
	PaymentURL  string `json:"payment_url"`
	NotifToken  string `json:"notif_token"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type omStatusRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	PayToken string `json:"pay_token"`
}

type omStatusResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	TxnID   string `json:"txnid"`
}

func (g *OrangeMoneyGateway) token(ctx context.Context) (string, error) {
	basic := base64.StdEncoding.EncodeToString([]byte(g.clientID + ":" + g.clientSecret))
	var out omTokenResponse
	status, err := g.api.postForm(ctx, "token", "/oauth/v3/token",
		map[string]string{"Authorization": "Basic " + basic},
		url.Values{"grant_type": {"client_credentials"}}, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || out.AccessToken == "" {
		return "", adapter.NewRejectedError(GatewayOrangeMoney, strconv.Itoa(status), "payment.orange.auth")
	}
	return out.AccessToken, nil
}

func (g *OrangeMoneyGateway) InitiatePayment(ctx context.Context, req adapter.PaymentRequest) (*adapter.PaymentResult, error) {
	if _, err := g.ValidatePhone(req.Phone); err != nil {
		return nil, err
	}
	if req.Amount <= 0 || req.Reference == "" {
		return nil, adapter.NewInvalidInputError(GatewayOrangeMoney, "payment.invalid_amount")
	}
	tok, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	body := omWebPaymentRequest{
		MerchantKey: g.merchantKey,
		Currency:    req.Currency,
		OrderID:     req.Reference,
		Amount:      req.Amount,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.ReturnURL,
		NotifURL:    req.NotifyURL,
		Lang:        "fr",
		Reference:   truncate(req.Description, 30),
	}
	var out omWebPaymentResponse
	status, err := g.api.postJSON(ctx, "webpayment", "/orange-money-webpay/ml/v1/webpayment",
		map[string]string{"Authorization": "Bearer " + tok}, body, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated || out.PayToken == "" {
		code := strconv.Itoa(out.Code)
		if out.Code == 0 {
			code = strconv.Itoa(status)
		}
		return nil, adapter.NewRejectedError(GatewayOrangeMoney, code, "payment.orange.rejected")
	}
	return &adapter.PaymentResult{
		Success:       true,
		TransactionID: out.PayToken,
		RedirectURL:   out.PaymentURL,
		Status:        adapter.GatewayStatusPending,
	}, nil
}

func (g *OrangeMoneyGateway) CheckStatus(ctx context.Context, q adapter.StatusQuery) (adapter.GatewayStatus, error) {
	tok, err := g.token(ctx)
	if err != nil {
		return "", err
	}
	var out omStatusResponse
	status, err := g.api.postJSON(ctx, "status", "/orange-money-webpay/ml/v1/transactionstatus",
		map[string]string{"Authorization": "Bearer " + tok},
		omStatusRequest{OrderID: q.Reference, Amount: q.Amount, PayToken: q.TransactionID}, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", adapter.NewRejectedError(GatewayOrangeMoney, strconv.Itoa(status), "payment.orange.rejected")
	}
	return mapOrangeStatus(out.Status)
}

func mapOrangeStatus(s string) (adapter.GatewayStatus, error) {
	switch strings.ToUpper(s) {
	case "INITIATED":
		return adapter.GatewayStatusInitiated, nil
	case "PENDING":
		return adapter.GatewayStatusPending, nil
	case "SUCCESS":
		return adapter.GatewayStatusCompleted, nil
	case "FAILED":
		return adapter.GatewayStatusFailed, nil
	case "EXPIRED":
		return adapter.GatewayStatusCancelled, nil
	}
	return "", adapter.NewNetworkError(GatewayOrangeMoney, fmt.Errorf("unknown status %q", s))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
