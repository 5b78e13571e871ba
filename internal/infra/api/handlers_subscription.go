package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/infra/qrcode"
	"elverra-membership/internal/usecase"
)

const dateLayout = "2006-01-02"

type createSubscriptionRequest struct {
	ProductID          string  `json:"product_id"`
	CycleMonths        int     `json:"cycle_months"`
	IsChild            bool    `json:"is_child"`
	IsRecurring        bool    `json:"is_recurring"`
	HolderFullName     string  `json:"holder_full_name"`
	HolderCity         string  `json:"holder_city"`
	HolderNeighborhood string  `json:"holder_neighborhood"`
	ChildName          *string `json:"child_name"`
	ChildBirthdate     string  `json:"child_birthdate"` // YYYY-MM-DD
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CycleMonths == 0 {
		req.CycleMonths = model.DefaultCycleMonths
	}
	var birth *time.Time
	if req.ChildBirthdate != "" {
		t, err := time.Parse(dateLayout, req.ChildBirthdate)
		if err != nil {
			s.writeError(w, r, domain.ErrValidation)
			return
		}
		birth = &t
	}

	sub, err := s.subs.CreatePending(r.Context(), usecase.CreatePendingInput{
		UserID:      p.UserID,
		ProductID:   req.ProductID,
		CycleMonths: req.CycleMonths,
		IsChild:     req.IsChild,
		IsRecurring: req.IsRecurring,
		Holder: model.HolderInfo{
			FullName:     req.HolderFullName,
			City:         req.HolderCity,
			Neighborhood: req.HolderNeighborhood,
		},
		ChildName:      req.ChildName,
		ChildBirthdate: birth,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionDTO(sub))
}

// handleListSubscriptions lists the caller's subscriptions. Admins may pass
// ?user_id to look at another member.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	userID := p.UserID
	if other := r.URL.Query().Get("user_id"); other != "" && other != p.UserID {
		if !p.Admin {
			s.writeError(w, r, domain.ErrUnauthorized)
			return
		}
		userID = other
	}
	subs, err := s.subs.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]subscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionDTO(sub))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": out})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sub, err := s.subs.Get(r.Context(), chi.URLParam(r, "id"), p.OwnerFilter())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := model.ParseSubscriptionStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.subs.UpdateStatus(r.Context(), chi.URLParam(r, "id"), to, p.OwnerFilter())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	card, err := s.subs.GetCard(r.Context(), chi.URLParam(r, "id"), p.OwnerFilter())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(card, true))
}

func (s *Server) handleCardQR(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	card, err := s.subs.GetCard(r.Context(), chi.URLParam(r, "id"), p.OwnerFilter())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	png, err := qrcode.PNG(card.QRData, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type verifyCardRequest struct {
	QRData string `json:"qr_data"`
}

type verifyCardResponse struct {
	Valid              bool     `json:"valid"`
	SubscriptionStatus string   `json:"subscription_status,omitempty"`
	Card               *cardDTO `json:"card,omitempty"`
}

func (s *Server) handleVerifyCard(w http.ResponseWriter, r *http.Request) {
	var req verifyCardRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.QRData) == "" {
		s.writeError(w, r, domain.ErrValidation)
		return
	}
	res, err := s.subs.VerifyCard(r.Context(), req.QRData)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := verifyCardResponse{Valid: res.Valid, SubscriptionStatus: string(res.SubscriptionStatus)}
	if res.Card != nil {
		c := toCardDTO(res.Card, false)
		out.Card = &c
	}
	writeJSON(w, http.StatusOK, out)
}
