package model

import (
	"strings"
	"time"

	"elverra-membership/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// DefaultCycleMonths applies when a subscription carries no billing cycle.
const DefaultCycleMonths = 12

// LifecycleMetadataVersion is bumped whenever LifecycleMetadata changes shape.
const LifecycleMetadataVersion = 1

// LifecycleMetadata is the typed replacement for the old free-form metadata blob.
// It is persisted as JSONB next to the subscription row.
type LifecycleMetadata struct {
	Version            int               `json:"version"`
	CycleMonths        int               `json:"cycle_months,omitempty"`
	ProductName        string            `json:"product_name,omitempty"`
	HolderFullName     string            `json:"holder_full_name,omitempty"`
	HolderCity         string            `json:"holder_city,omitempty"`
	HolderNeighborhood string            `json:"holder_neighborhood,omitempty"`
	PaymentID          string            `json:"payment_id,omitempty"`
	ActivatedAt        *time.Time        `json:"activated_at,omitempty"`
	PausedAt           *time.Time        `json:"paused_at,omitempty"`
	ReactivatedAt      *time.Time        `json:"reactivated_at,omitempty"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Cycle returns the billing cycle in months, falling back to DefaultCycleMonths.
func (m LifecycleMetadata) Cycle() int {
	if m.CycleMonths <= 0 {
		return DefaultCycleMonths
	}
	return m.CycleMonths
}

// HolderInfo is the card holder identity captured at subscription time.
type HolderInfo struct {
	FullName     string
	City         string
	Neighborhood string
}

// Subscription is a membership subscription of a user to a product.
type Subscription struct {
	ID             string
	UserID         string
	ProductID      string
	Status         SubscriptionStatus
	StartDate      time.Time
	EndDate        *time.Time // nil until activation
	IsRecurring    bool
	IsChild        bool
	ChildName      *string
	ChildBirthdate *time.Time
	Metadata       LifecycleMetadata
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPendingSubscription validates the input and builds a pending subscription.
func NewPendingSubscription(id, userID string, product *MembershipProduct, cycleMonths int, isChild bool, holder HolderInfo, childName *string, childBirthdate *time.Time, now time.Time) (*Subscription, error) {
	if id == "" || strings.TrimSpace(userID) == "" || product == nil || product.ID == "" {
		return nil, domain.ErrValidation
	}
	if strings.TrimSpace(holder.FullName) == "" {
		return nil, domain.ErrValidation
	}
	if !IsAllowedCycle(cycleMonths) {
		return nil, domain.ErrValidation
	}
	if isChild != (product.Kind == ProductKindChild) {
		return nil, domain.ErrValidation
	}
	if isChild && (childName == nil || strings.TrimSpace(*childName) == "") {
		return nil, domain.ErrValidation
	}
	if !isChild {
		childName, childBirthdate = nil, nil
	}
	return &Subscription{
		ID:             id,
		UserID:         userID,
		ProductID:      product.ID,
		Status:         SubscriptionStatusPending,
		StartDate:      now,
		IsChild:        isChild,
		ChildName:      childName,
		ChildBirthdate: childBirthdate,
		Metadata: LifecycleMetadata{
			Version:            LifecycleMetadataVersion,
			CycleMonths:        cycleMonths,
			ProductName:        product.Name,
			HolderFullName:     strings.TrimSpace(holder.FullName),
			HolderCity:         strings.TrimSpace(holder.City),
			HolderNeighborhood: strings.TrimSpace(holder.Neighborhood),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Activate moves a pending subscription to active and fixes its end date.
func (s *Subscription) Activate(paymentID string, now time.Time) error {
	switch s.Status {
	case SubscriptionStatusActive:
		return domain.ErrAlreadyActive
	case SubscriptionStatusPending:
	default:
		return domain.ErrInvalidTransition
	}
	end := now.AddDate(0, s.Metadata.Cycle(), 0)
	s.Status = SubscriptionStatusActive
	s.EndDate = &end
	s.Metadata.PaymentID = paymentID
	s.Metadata.ActivatedAt = &now
	s.UpdatedAt = now
	return nil
}

// Transition applies a status change following the lifecycle table.
// It returns changed=false for a same-status no-op.
func (s *Subscription) Transition(to SubscriptionStatus, now time.Time) (changed bool, err error) {
	if s.Status == to {
		return false, nil
	}
	if !CanTransition(s.Status, to) {
		return false, domain.ErrInvalidTransition
	}
	switch to {
	case SubscriptionStatusPaused:
		s.Metadata.PausedAt = &now
	case SubscriptionStatusActive:
		// paused -> active: re-apply the duration left at pause time.
		remaining := time.Duration(0)
		if s.EndDate != nil && s.Metadata.PausedAt != nil {
			remaining = s.EndDate.Sub(*s.Metadata.PausedAt)
		}
		if remaining < 0 {
			remaining = 0
		}
		end := now.Add(remaining)
		s.EndDate = &end
		s.Metadata.PausedAt = nil
		s.Metadata.ReactivatedAt = &now
	case SubscriptionStatusCancelled:
		s.EndDate = &now
		s.Metadata.CancelledAt = &now
	}
	s.Status = to
	s.UpdatedAt = now
	return true, nil
}

// Transition represents an allowed status change.
type Transition struct {
	From SubscriptionStatus
	To   SubscriptionStatus
}

// Activation (pending -> active) is intentionally absent: it only happens
// through payment confirmation.
var validTransitions = map[Transition]bool{
	{SubscriptionStatusActive, SubscriptionStatusPaused}:     true,
	{SubscriptionStatusPaused, SubscriptionStatusActive}:     true,
	{SubscriptionStatusActive, SubscriptionStatusCancelled}:  true,
	{SubscriptionStatusPaused, SubscriptionStatusCancelled}:  true,
	{SubscriptionStatusPending, SubscriptionStatusCancelled}: true, // abandoned checkout
}

// CanTransition reports whether a user/admin driven status change is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	return validTransitions[Transition{from, to}]
}

func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusPaused, SubscriptionStatusCancelled:
		return st, nil
	}
	return "", domain.ErrValidation
}
