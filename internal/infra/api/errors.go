package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/infra/logging"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: specific sentinels before generic ones.
var errorTable = []errorMapping{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{domain.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{domain.ErrChildTierNotEligible, http.StatusForbidden, "child_tier_not_eligible"},
	{domain.ErrSubscriptionNotFound, http.StatusNotFound, "subscription_not_found"},
	{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{domain.ErrCardNotFound, http.StatusNotFound, "card_not_found"},
	{domain.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{domain.ErrTokenAccountNotFound, http.StatusNotFound, "token_account_not_found"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrDuplicateActiveSubscription, http.StatusConflict, "duplicate_active"},
	{domain.ErrAlreadyActive, http.StatusConflict, "already_active"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrSubscriptionInactive, http.StatusConflict, "subscription_inactive"},
	{domain.ErrInactiveTokenAccount, http.StatusConflict, "inactive_token_account"},
	{domain.ErrPaymentInProgress, http.StatusConflict, "payment_in_progress"},
	{domain.ErrAlreadyExists, http.StatusConflict, "conflict"},
	{domain.ErrTokenLimitExceeded, http.StatusUnprocessableEntity, "token_limit_exceeded"},
	{domain.ErrInvalidCardPayload, http.StatusUnprocessableEntity, "invalid_card"},
	{domain.ErrUnknownGateway, http.StatusBadRequest, "unknown_gateway"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_payment_input"},
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "validation"},
	{domain.ErrGatewayRejected, http.StatusPaymentRequired, "gateway_rejected"},
	{domain.ErrPaymentFailed, http.StatusPaymentRequired, "payment_failed"},
	{domain.ErrNetwork, http.StatusBadGateway, "gateway_unreachable"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// classify maps an error to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError renders {"error": code, "message": localized}. Gateway errors
// carry their own message key.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	tr := s.i18n.Match(r.Header.Get("Accept-Language"))

	var msg string
	switch key := adapter.MessageKey(err); {
	case key != "" && tr.Has(key):
		msg = tr.T(key)
	case code == "token_limit_exceeded":
		msg = tr.T("errors."+code, model.MinTokenPurchase, model.MaxTokenPurchase)
	default:
		msg = tr.T("errors." + code)
	}

	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		l.Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return domain.ErrValidation
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation
	}
	return nil
}
