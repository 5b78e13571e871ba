package adapter

import (
	"context"
	"errors"
	"fmt"

	"elverra-membership/internal/domain"
)

// GatewayStatus is the provider-agnostic status of a payment.
type GatewayStatus string

const (
	GatewayStatusInitiated GatewayStatus = "initiated"
	GatewayStatusPending   GatewayStatus = "pending"
	GatewayStatusCompleted GatewayStatus = "completed"
	GatewayStatusFailed    GatewayStatus = "failed"
	GatewayStatusCancelled GatewayStatus = "cancelled"
)

// IsTerminal reports whether the provider will not change the status again.
func (s GatewayStatus) IsTerminal() bool {
	return s == GatewayStatusCompleted || s == GatewayStatusFailed || s == GatewayStatusCancelled
}

// PaymentRequest is what the application asks a gateway to collect.
type PaymentRequest struct {
	Reference     string // our payment id, echoed back by the provider
	Amount        int64  // FCFA, no minor units
	Currency      string
	Phone         string // raw user input; adapters normalize it
	CustomerName  string
	CustomerEmail string
	Description   string
	ReturnURL     string
	NotifyURL     string
}

// StatusQuery identifies a payment at the provider. Some providers need the
// original reference and amount next to their own transaction id.
type StatusQuery struct {
	TransactionID string
	Reference     string
	Amount        int64
}

type PaymentResult struct {
	Success       bool
	TransactionID string // provider reference used for status checks
	RedirectURL   string // empty for push (USSD) flows
	Status        GatewayStatus
}

// PaymentGateway is the hex port for mobile money providers.
// Submissions are never retried automatically: a failed attempt is reported
// and the caller decides.
type PaymentGateway interface {
	Name() string
	// ValidatePhone returns the provider-specific normalized phone number or
	// an error matching domain.ErrInvalidInput. It never hits the network.
	ValidatePhone(phone string) (string, error)
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	CheckStatus(ctx context.Context, q StatusQuery) (GatewayStatus, error)
}

type GatewayErrorKind string

const (
	KindNetwork      GatewayErrorKind = "network"
	KindRejected     GatewayErrorKind = "rejected"
	KindInvalidInput GatewayErrorKind = "invalid_input"
)

// GatewayError carries the provider code and a message key the API layer
// can localize.
type GatewayError struct {
	Kind    GatewayErrorKind
	Gateway string
	Code    string
	Message string // i18n key
	Err     error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Gateway, e.Kind)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is lets errors.Is match the domain sentinels by kind.
func (e *GatewayError) Is(target error) bool {
	switch e.Kind {
	case KindNetwork:
		return target == domain.ErrNetwork
	case KindRejected:
		return target == domain.ErrGatewayRejected
	case KindInvalidInput:
		return target == domain.ErrInvalidInput
	}
	return false
}

func NewNetworkError(gateway string, err error) *GatewayError {
	return &GatewayError{Kind: KindNetwork, Gateway: gateway, Message: "payment.network", Err: err}
}

func NewRejectedError(gateway, code, messageKey string) *GatewayError {
	return &GatewayError{Kind: KindRejected, Gateway: gateway, Code: code, Message: messageKey}
}

func NewInvalidInputError(gateway, messageKey string) *GatewayError {
	return &GatewayError{Kind: KindInvalidInput, Gateway: gateway, Message: messageKey}
}

// MessageKey extracts the i18n key of a gateway error, or "" for other errors.
func MessageKey(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Message
	}
	return ""
}

// GatewayRegistry resolves a PaymentGateway by its name. Unknown names
// return domain.ErrUnknownGateway.
type GatewayRegistry interface {
	Get(name string) (PaymentGateway, error)
}
