package model

import (
	"time"

	"elverra-membership/internal/domain"
)

type CardStatus string

const (
	CardStatusActive   CardStatus = "active"
	CardStatusInactive CardStatus = "inactive"
	CardStatusExpired  CardStatus = "expired"
)

// MembershipCard is the digital card issued when a subscription is activated.
// Cards are never deleted; cancelling the subscription only deactivates them.
type MembershipCard struct {
	ID                 string
	SubscriptionID     string
	UserID             string
	CardIdentifier     string // human-presentable, globally unique
	QRData             string // signed payload for offline verification
	HolderFullName     string
	HolderCity         string
	HolderNeighborhood string
	Status             CardStatus
	IssuedAt           time.Time
	CardExpiryDate     time.Time
}

// NewMembershipCard issues an active card for a freshly activated subscription.
// The expiry mirrors the subscription end date.
func NewMembershipCard(id, identifier, qrData string, sub *Subscription, now time.Time) (*MembershipCard, error) {
	if id == "" || identifier == "" || sub == nil || sub.EndDate == nil {
		return nil, domain.ErrInvalidArgument
	}
	if sub.Status != SubscriptionStatusActive {
		return nil, domain.ErrInvalidTransition
	}
	return &MembershipCard{
		ID:                 id,
		SubscriptionID:     sub.ID,
		UserID:             sub.UserID,
		CardIdentifier:     identifier,
		QRData:             qrData,
		HolderFullName:     sub.Metadata.HolderFullName,
		HolderCity:         sub.Metadata.HolderCity,
		HolderNeighborhood: sub.Metadata.HolderNeighborhood,
		Status:             CardStatusActive,
		IssuedAt:           now,
		CardExpiryDate:     *sub.EndDate,
	}, nil
}

// CardStatusFor returns the card status that mirrors a subscription status.
func CardStatusFor(s SubscriptionStatus) CardStatus {
	if s == SubscriptionStatusActive {
		return CardStatusActive
	}
	return CardStatusInactive
}
