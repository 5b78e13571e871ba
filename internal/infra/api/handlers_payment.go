package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/usecase"
)

type initiatePaymentRequest struct {
	SubscriptionID string `json:"subscription_id"`
	Gateway        string `json:"gateway"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
}

type initiatePaymentResponse struct {
	PaymentID   string      `json:"payment_id"`
	Status      string      `json:"status"`
	RedirectURL string      `json:"redirect_url,omitempty"`
	Payment     *paymentDTO `json:"payment"`
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req initiatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.payments.InitiateSubscriptionPayment(r.Context(), usecase.InitiatePaymentInput{
		SubscriptionID:   req.SubscriptionID,
		Gateway:          req.Gateway,
		Phone:            req.Phone,
		CustomerEmail:    req.Email,
		RequestingUserID: p.OwnerFilter(),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiatePaymentResponse{
		PaymentID:   res.Payment.ID,
		Status:      string(res.Status),
		RedirectURL: res.RedirectURL,
		Payment:     toPaymentDTO(res.Payment),
	})
}

// verifyPaymentRequest takes paymentId; payment_id is still read for older clients.
type verifyPaymentRequest struct {
	PaymentID       string `json:"paymentId"`
	LegacyPaymentID string `json:"payment_id"`
	Gateway         string `json:"gateway"`
}

func (r verifyPaymentRequest) id() string {
	if r.PaymentID != "" {
		return r.PaymentID
	}
	return r.LegacyPaymentID
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := req.id()
	if id == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	ctx := logging.WithPaymentID(r.Context(), id)
	res, err := s.payments.Verify(ctx, id, req.Gateway, p.OwnerFilter())
	if err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyDTO(res))
}

// handleWebhook acknowledges a provider callback. The body only names the
// payment; its status is fetched again from the provider.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	gw := chi.URLParam(r, "gateway")
	parser, err := s.webhooks.Webhook(gw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := parser.ParseWebhook(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.payments.HandleWebhook(r.Context(), gw, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logging.With(r.Context(), s.log).Info().
		Str("gateway", gw).
		Str("status", string(res.Status)).
		Msg("webhook processed")
	writeJSON(w, http.StatusOK, toVerifyDTO(res))
}

// handlePendingPayments lists payments still waiting on the provider, oldest
// first. ?older_than takes a Go duration (default 2m).
func (s *Server) handlePendingPayments(w http.ResponseWriter, r *http.Request) {
	olderThan := 2 * time.Minute
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
		olderThan = d
	}
	pending, err := s.payments.PendingPayments(r.Context(), olderThan, 200)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]*paymentDTO, 0, len(pending))
	for _, p := range pending {
		out = append(out, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": out})
}
