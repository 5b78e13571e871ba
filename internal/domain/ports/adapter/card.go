package adapter

// CardClaims is the content of a membership card QR payload.
type CardClaims struct {
	CardIdentifier string `json:"cid"`
	SubscriptionID string `json:"sid"`
	UserID         string `json:"uid"`
	IssuedAt       int64  `json:"iat"`
}

// CardCodec mints card identifiers and signs/verifies QR payloads.
type CardCodec interface {
	NewIdentifier() string
	Encode(c CardClaims) (string, error)
	// Decode fails with domain.ErrInvalidCardPayload on tampering or bad format.
	Decode(payload string) (CardClaims, error)
}
