package api

import (
	"time"

	"elverra-membership/internal/domain/model"
	"elverra-membership/internal/usecase"
)

type productDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	Tier string `json:"tier"`
}

type pricingDTO struct {
	ProductID     string `json:"product_id"`
	CycleMonths   int    `json:"cycle_months"`
	PurchasePrice int64  `json:"purchase_price"`
	RenewalPrice  int64  `json:"renewal_price,omitempty"`
	Currency      string `json:"currency"`
}

type cycleDTO struct {
	Months int    `json:"months"`
	Label  string `json:"label"`
}

type catalogDTO struct {
	Products []productDTO `json:"products"`
	Pricing  []pricingDTO `json:"pricing"`
	Cycles   []cycleDTO   `json:"cycles"`
}

func toCatalogDTO(c *model.Catalog) catalogDTO {
	out := catalogDTO{
		Products: make([]productDTO, 0, len(c.Products)),
		Pricing:  make([]pricingDTO, 0, len(c.Pricing)),
		Cycles:   make([]cycleDTO, 0, len(c.Cycles)),
	}
	for _, p := range c.Products {
		out.Products = append(out.Products, productDTO{ID: p.ID, Name: p.Name, Kind: string(p.Kind), Tier: string(p.Tier)})
	}
	for _, p := range c.Pricing {
		out.Pricing = append(out.Pricing, pricingDTO{p.ProductID, p.CycleMonths, p.PurchasePrice, p.RenewalPrice, p.Currency})
	}
	for _, cy := range c.Cycles {
		out.Cycles = append(out.Cycles, cycleDTO{cy.Months, cy.Label})
	}
	return out
}

type subscriptionDTO struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ProductID      string     `json:"product_id"`
	ProductName    string     `json:"product_name,omitempty"`
	Status         string     `json:"status"`
	CycleMonths    int        `json:"cycle_months"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	IsRecurring    bool       `json:"is_recurring"`
	IsChild        bool       `json:"is_child"`
	ChildName      *string    `json:"child_name,omitempty"`
	ChildBirthdate *time.Time `json:"child_birthdate,omitempty"`
	HolderFullName string     `json:"holder_full_name"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toSubscriptionDTO(s *model.Subscription) subscriptionDTO {
	return subscriptionDTO{
		ID:             s.ID,
		UserID:         s.UserID,
		ProductID:      s.ProductID,
		ProductName:    s.Metadata.ProductName,
		Status:         string(s.Status),
		CycleMonths:    s.Metadata.Cycle(),
		StartDate:      s.StartDate,
		EndDate:        s.EndDate,
		IsRecurring:    s.IsRecurring,
		IsChild:        s.IsChild,
		ChildName:      s.ChildName,
		ChildBirthdate: s.ChildBirthdate,
		HolderFullName: s.Metadata.HolderFullName,
		CreatedAt:      s.CreatedAt,
	}
}

type cardDTO struct {
	CardIdentifier     string    `json:"card_identifier"`
	SubscriptionID     string    `json:"subscription_id"`
	QRData             string    `json:"qr_data,omitempty"`
	HolderFullName     string    `json:"holder_full_name"`
	HolderCity         string    `json:"holder_city,omitempty"`
	HolderNeighborhood string    `json:"holder_neighborhood,omitempty"`
	Status             string    `json:"status"`
	IssuedAt           time.Time `json:"issued_at"`
	CardExpiryDate     time.Time `json:"card_expiry_date"`
}

func toCardDTO(c *model.MembershipCard, withQR bool) cardDTO {
	d := cardDTO{
		CardIdentifier:     c.CardIdentifier,
		SubscriptionID:     c.SubscriptionID,
		HolderFullName:     c.HolderFullName,
		HolderCity:         c.HolderCity,
		HolderNeighborhood: c.HolderNeighborhood,
		Status:             string(c.Status),
		IssuedAt:           c.IssuedAt,
		CardExpiryDate:     c.CardExpiryDate,
	}
	if withQR {
		d.QRData = c.QRData
	}
	return d
}

type paymentDTO struct {
	ID          string     `json:"id"`
	Purpose     string     `json:"purpose"`
	ReferenceID string     `json:"reference_id"`
	Gateway     string     `json:"gateway"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

func toPaymentDTO(p *model.Payment) *paymentDTO {
	if p == nil {
		return nil
	}
	return &paymentDTO{
		ID:          p.ID,
		Purpose:     string(p.Purpose),
		ReferenceID: p.ReferenceID,
		Gateway:     p.Gateway,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      string(p.Status),
		PaidAt:      p.PaidAt,
	}
}

// verifyDTO carries the payment id under paymentId and, for older clients, payment_id.
type verifyDTO struct {
	Success         bool        `json:"success"`
	Status          string      `json:"status"`
	PaymentID       string      `json:"paymentId"`
	LegacyPaymentID string      `json:"payment_id"`
	Payment         *paymentDTO `json:"payment,omitempty"`
}

func toVerifyDTO(v *usecase.VerifyResult) verifyDTO {
	d := verifyDTO{Success: v.Success, Status: string(v.Status), Payment: toPaymentDTO(v.Payment)}
	if v.Payment != nil {
		d.PaymentID = v.Payment.ID
		d.LegacyPaymentID = v.Payment.ID
	}
	return d
}

type tokenAccountDTO struct {
	ID                       string `json:"id"`
	MembershipSubscriptionID string `json:"membership_subscription_id"`
	Type                     string `json:"service_type"`
	TokenBalance             int    `json:"token_balance"`
	TokenValue               int64  `json:"token_value"`
	RescueValue              int64  `json:"rescue_value"`
	IsActive                 bool   `json:"is_active"`
}

func toTokenAccountDTO(a *model.TokenAccount) tokenAccountDTO {
	return tokenAccountDTO{
		ID:                       a.ID,
		MembershipSubscriptionID: a.MembershipSubscriptionID,
		Type:                     string(a.Type),
		TokenBalance:             a.TokenBalance,
		TokenValue:               a.TokenValue,
		RescueValue:              a.RescueValue,
		IsActive:                 a.IsActive,
	}
}

type tokenTransactionDTO struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	Type          string    `json:"service_type"`
	Amount        int       `json:"amount"`
	TotalPrice    int64     `json:"total_price"`
	PaymentMethod string    `json:"payment_method"`
	PaymentID     *string   `json:"payment_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTokenTransactionDTO(t *model.TokenTransaction) tokenTransactionDTO {
	return tokenTransactionDTO{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		TotalPrice:    t.TotalPrice,
		PaymentMethod: string(t.PaymentMethod),
		PaymentID:     t.PaymentID,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
	}
}

type warningDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
