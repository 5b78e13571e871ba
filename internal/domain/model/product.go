package model

import (
	"time"

	"elverra-membership/internal/domain"
)

type ProductKind string

const (
	ProductKindAdult ProductKind = "adult"
	ProductKindChild ProductKind = "child"
)

type ProductTier string

const (
	TierEssential ProductTier = "essential"
	TierPremium   ProductTier = "premium"
	TierElite     ProductTier = "elite"
	TierChild     ProductTier = "child"
)

// MembershipProduct is reference data: the membership tier a user subscribes to.
type MembershipProduct struct {
	ID        string
	Name      string
	Kind      ProductKind
	Tier      ProductTier
	IsActive  bool
	CreatedAt time.Time
}

func (p *MembershipProduct) IsZero() bool { return p == nil || p.ID == "" }

// NewMembershipProduct validates and constructs a product.
func NewMembershipProduct(id, name string, kind ProductKind, tier ProductTier) (*MembershipProduct, error) {
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch kind {
	case ProductKindAdult:
		if tier != TierEssential && tier != TierPremium && tier != TierElite {
			return nil, domain.ErrInvalidArgument
		}
	case ProductKindChild:
		tier = TierChild
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &MembershipProduct{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Tier:      tier,
		IsActive:  true,
		CreatedAt: time.Now(),
	}, nil
}

// MembershipPricing holds purchase and renewal prices (FCFA) for a product and cycle.
type MembershipPricing struct {
	ProductID     string
	CycleMonths   int
	PurchasePrice int64
	RenewalPrice  int64
	Currency      string
}

// Price picks the renewal price for returning members when one is set.
func (p *MembershipPricing) Price(renewal bool) int64 {
	if renewal && p.RenewalPrice > 0 {
		return p.RenewalPrice
	}
	return p.PurchasePrice
}

// MembershipCycle is an allowed billing duration.
type MembershipCycle struct {
	Months int
	Label  string
}

var allowedCycles = map[int]bool{1: true, 3: true, 6: true, 12: true}

func IsAllowedCycle(months int) bool { return allowedCycles[months] }

// Catalog is the read model served to clients choosing a plan.
type Catalog struct {
	Products []*MembershipProduct
	Pricing  []*MembershipPricing
	Cycles   []*MembershipCycle
}
