package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/usecase"
)

const defaultTransactionPage = 50

type openTokenAccountRequest struct {
	MembershipSubscriptionID string `json:"membership_subscription_id"`
	ServiceType              string `json:"service_type"`
}

func (s *Server) handleOpenTokenAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req openTokenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := model.ParseTokenServiceType(req.ServiceType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.tokens.OpenAccount(r.Context(), p.UserID, req.MembershipSubscriptionID, t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenAccountDTO(acct))
}

func (s *Server) handleListTokenAccounts(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	accts, err := s.tokens.ListAccounts(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]tokenAccountDTO, 0, len(accts))
	for _, a := range accts {
		out = append(out, toTokenAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": out})
}

func (s *Server) handleListTokenTransactions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	limit := defaultTransactionPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
		limit = n
	}
	txs, err := s.tokens.ListTransactions(r.Context(), chi.URLParam(r, "id"), p.OwnerFilter(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]tokenTransactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTokenTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": out})
}

type purchaseTokensRequest struct {
	AccountID     string `json:"account_id"`
	Amount        int    `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Phone         string `json:"phone"`
	Name          string `json:"name"`
}

type purchaseTokensResponse struct {
	Transaction tokenTransactionDTO `json:"transaction"`
	Payment     *paymentDTO         `json:"payment,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	Balance     int                 `json:"balance"`
	Warnings    []warningDTO        `json:"warnings,omitempty"`
}

func (s *Server) handlePurchaseTokens(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req purchaseTokensRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	method, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.tokens.PurchaseTokens(r.Context(), usecase.PurchaseInput{
		UserID:    p.OwnerFilter(),
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Method:    method,
		Phone:     req.Phone,
		Name:      req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tr := s.i18n.Match(r.Header.Get("Accept-Language"))
	out := purchaseTokensResponse{
		Transaction: toTokenTransactionDTO(res.Transaction),
		Payment:     toPaymentDTO(res.Payment),
		RedirectURL: res.RedirectURL,
		Balance:     res.Balance,
	}
	for _, key := range res.Warnings {
		out.Warnings = append(out.Warnings, warningDTO{Code: key, Message: tr.T(key)})
	}
	status := http.StatusCreated
	if res.Payment != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}
