package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError is a non-2xx answer of the verification endpoint.
type StatusError struct {
	Code    int
	ErrCode string // "error" field of the JSON body
	Message string
}

func (e *StatusError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("verify: http %d: %s: %s", e.Code, e.ErrCode, e.Message)
	}
	return fmt.Sprintf("verify: http %d", e.Code)
}

// HTTPVerifier calls POST /api/payments/verify with a bearer token.
type HTTPVerifier struct {
	baseURL string
	token   string
	lang    string
	http    *http.Client
}

func NewHTTPVerifier(baseURL, token, lang string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		lang:    lang,
		http:    &http.Client{Timeout: timeout},
	}
}

type verifyRequest struct {
	PaymentID string `json:"paymentId"`
	Gateway   string `json:"gateway,omitempty"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, paymentID, gateway string) (*Status, error) {
	body, err := json.Marshal(verifyRequest{PaymentID: paymentID, Gateway: gateway})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/payments/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if v.token != "" {
		req.Header.Set("Authorization", "Bearer "+v.token)
	}
	if v.lang != "" {
		req.Header.Set("Accept-Language", v.lang)
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("verify: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil {
			se.ErrCode, se.Message = e.Error, e.Message
		}
		return nil, se
	}
	var decoded struct {
		Status
		LegacyPaymentID string `json:"payment_id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("verify: decode body: %w", err)
	}
	st := decoded.Status
	if st.PaymentID == "" {
		st.PaymentID = decoded.LegacyPaymentID
	}
	return &st, nil
}
