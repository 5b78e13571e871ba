package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"elverra-membership/internal/domain"
	"elverra-membership/internal/domain/ports/adapter"
)

// CardIdentifierPrefix starts every human-presentable card identifier.
const CardIdentifierPrefix = "ELV-"

const payloadVersion = "v1"

// CardCodec mints card identifiers and signs QR payloads with HMAC-SHA256 so a
// scanner holding the key can verify a card without a network round trip.
// Format: v1.base64url(json claims).base64url(mac)
type CardCodec struct {
	key []byte

	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var _ adapter.CardCodec = (*CardCodec)(nil)

// NewCardCodec requires a key of at least 32 bytes.
func NewCardCodec(key string) (*CardCodec, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("card signing key must be at least 32 bytes; got %d", len(key))
	}
	return &CardCodec{
		key:     []byte(key),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}, nil
}

// NewIdentifier returns ELV- followed by a ULID: 48 bits of milliseconds and
// 80 random bits, sortable by issue time.
func (c *CardCodec) NewIdentifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	// monotonic entropy is not safe for concurrent use
	id := ulid.MustNew(ulid.Timestamp(c.now()), c.entropy)
	return CardIdentifierPrefix + id.String()
}

func (c *CardCodec) Encode(cl adapter.CardClaims) (string, error) {
	if cl.CardIdentifier == "" || cl.SubscriptionID == "" || cl.UserID == "" {
		return "", domain.ErrInvalidArgument
	}
	if cl.IssuedAt == 0 {
		cl.IssuedAt = c.now().Unix()
	}
	body, err := json.Marshal(cl)
	if err != nil {
		return "", fmt.Errorf("marshal card claims: %w", err)
	}
	enc := base64.RawURLEncoding.EncodeToString(body)
	signed := payloadVersion + "." + enc
	return signed + "." + base64.RawURLEncoding.EncodeToString(c.mac(signed)), nil
}

func (c *CardCodec) Decode(payload string) (adapter.CardClaims, error) {
	var cl adapter.CardClaims
	parts := strings.Split(strings.TrimSpace(payload), ".")
	if len(parts) != 3 || parts[0] != payloadVersion {
		return cl, domain.ErrInvalidCardPayload
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return cl, domain.ErrInvalidCardPayload
	}
	if !hmac.Equal(sig, c.mac(parts[0]+"."+parts[1])) {
		return cl, domain.ErrInvalidCardPayload
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return cl, domain.ErrInvalidCardPayload
	}
	if err := json.Unmarshal(body, &cl); err != nil {
		return cl, domain.ErrInvalidCardPayload
	}
	if !IsCardIdentifier(cl.CardIdentifier) || cl.SubscriptionID == "" || cl.UserID == "" {
		return cl, domain.ErrInvalidCardPayload
	}
	return cl, nil
}

func (c *CardCodec) mac(s string) []byte {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(s))
	return h.Sum(nil)
}

// IsCardIdentifier reports whether s is a well formed card identifier.
func IsCardIdentifier(s string) bool {
	if !strings.HasPrefix(s, CardIdentifierPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.TrimPrefix(s, CardIdentifierPrefix))
	return err == nil
}
