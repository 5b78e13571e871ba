package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	cat, err := s.products.ListCatalog(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCatalogDTO(cat))
}

type quoteResponse struct {
	ProductID   string `json:"product_id"`
	CycleMonths int    `json:"cycle_months"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	productID := chi.URLParam(r, "id")

	cycle := model.DefaultCycleMonths
	if raw := r.URL.Query().Get("cycle"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
		cycle = n
	}
	amount, currency, err := s.products.Quote(r.Context(), p.UserID, productID, cycle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		ProductID:   productID,
		CycleMonths: cycle,
		Amount:      amount,
		Currency:    currency,
	})
}
