package model

import (
	"strings"
	"time"

	"elverra-membership/internal/domain"
)

// TokenServiceType is an emergency-assistance ("Ô Secours") service.
type TokenServiceType string

const (
	TokenServiceAuto        TokenServiceType = "auto"
	TokenServiceCataCatanis TokenServiceType = "cata_catanis"
	TokenServiceSchoolFees  TokenServiceType = "school_fees"
	TokenServiceMotors      TokenServiceType = "motors"
	TokenServiceTelephone   TokenServiceType = "telephone"
)

// Monthly purchase window shared by every service type.
const (
	MinTokenPurchase = 10
	MaxTokenPurchase = 60
)

// LowBalanceThreshold triggers an advisory warning, never a rejection.
const LowBalanceThreshold = 30

// TokenServiceTerms are the fixed per-service values. They are not runtime-configurable.
type TokenServiceTerms struct {
	TokenValue  int64 // FCFA per token
	RescueValue int64 // FCFA covered per rescue
	MinPurchase int   // per purchase
	MaxPurchase int   // per calendar month
}

var tokenTerms = map[TokenServiceType]TokenServiceTerms{
	TokenServiceAuto:        {TokenValue: 750, RescueValue: 75_000, MinPurchase: MinTokenPurchase, MaxPurchase: MaxTokenPurchase},
	TokenServiceCataCatanis: {TokenValue: 500, RescueValue: 50_000, MinPurchase: MinTokenPurchase, MaxPurchase: MaxTokenPurchase},
	TokenServiceSchoolFees:  {TokenValue: 500, RescueValue: 50_000, MinPurchase: MinTokenPurchase, MaxPurchase: MaxTokenPurchase},
	TokenServiceMotors:      {TokenValue: 250, RescueValue: 25_000, MinPurchase: MinTokenPurchase, MaxPurchase: MaxTokenPurchase},
	TokenServiceTelephone:   {TokenValue: 250, RescueValue: 25_000, MinPurchase: MinTokenPurchase, MaxPurchase: MaxTokenPurchase},
}

// TermsFor returns the fixed terms of a service type.
func TermsFor(t TokenServiceType) (TokenServiceTerms, bool) {
	terms, ok := tokenTerms[t]
	return terms, ok
}

func ParseTokenServiceType(s string) (TokenServiceType, error) {
	t := TokenServiceType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tokenTerms[t]; !ok {
		return "", domain.ErrValidation
	}
	return t, nil
}

// TokenAccount is a user's token balance for one service type, attached to a
// membership subscription.
type TokenAccount struct {
	ID                       string
	UserID                   string
	MembershipSubscriptionID string
	Type                     TokenServiceType
	TokenBalance             int
	TokenValue               int64
	RescueValue              int64
	IsActive                 bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// NewTokenAccount opens an empty account using the fixed terms of the service type.
func NewTokenAccount(id, userID, membershipSubID string, t TokenServiceType, now time.Time) (*TokenAccount, error) {
	terms, ok := TermsFor(t)
	if id == "" || userID == "" || membershipSubID == "" || !ok {
		return nil, domain.ErrValidation
	}
	return &TokenAccount{
		ID:                       id,
		UserID:                   userID,
		MembershipSubscriptionID: membershipSubID,
		Type:                     t,
		TokenValue:               terms.TokenValue,
		RescueValue:              terms.RescueValue,
		IsActive:                 true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}, nil
}

type PaymentMethod string

const (
	PaymentMethodOrangeMoney PaymentMethod = "orange_money"
	PaymentMethodSamaMoney   PaymentMethod = "sama_money"
	PaymentMethodCinetPay    PaymentMethod = "cinetpay"
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodWallet      PaymentMethod = "wallet"
)

// IsMobileMoney reports whether the method goes through a payment gateway and
// needs a phone number.
func (m PaymentMethod) IsMobileMoney() bool {
	switch m {
	case PaymentMethodOrangeMoney, PaymentMethodSamaMoney, PaymentMethodCinetPay:
		return true
	}
	return false
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentMethodOrangeMoney, PaymentMethodSamaMoney, PaymentMethodCinetPay,
		PaymentMethodCash, PaymentMethodCard, PaymentMethodWallet:
		return m, nil
	}
	return "", domain.ErrValidation
}

type TokenTransactionStatus string

const (
	TokenTxPending   TokenTransactionStatus = "pending"
	TokenTxCompleted TokenTransactionStatus = "completed"
	TokenTxFailed    TokenTransactionStatus = "failed"
)

// TokenTransaction records one token purchase.
type TokenTransaction struct {
	ID            string
	AccountID     string
	Type          TokenServiceType
	Amount        int
	TotalPrice    int64
	PaymentMethod PaymentMethod
	PhoneNumber   string
	PaymentID     *string
	Status        TokenTransactionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MonthStart returns the first instant of t's calendar month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
