package model

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated" // created locally, gateway not reached yet
	PaymentStatusPending   PaymentStatus = "pending"   // gateway accepted; awaiting customer confirmation
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further status change is expected.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

type PaymentPurpose string

const (
	PaymentPurposeSubscription PaymentPurpose = "subscription"
	PaymentPurposeTokens       PaymentPurpose = "tokens"
)

// Payment records one attempt to collect money through a gateway.
type Payment struct {
	ID            string
	UserID        string
	Purpose       PaymentPurpose
	ReferenceID   string // subscription id or token transaction id
	Gateway       string // orange_money | sama_money | cinetpay
	GatewayRef    string // provider transaction id / pay token
	Amount        int64  // FCFA
	Currency      string
	Phone         string
	Status        PaymentStatus
	PayURL        string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
}
