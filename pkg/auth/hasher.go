package auth

import (
	"golang.org/x/crypto/bcrypt"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

// DefaultHashCost is the bcrypt cost for stored secrets.
const DefaultHashCost = 12

// Hasher produces and checks one-way secret digests.
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, digest string) bool
}

// BcryptHasher is a [Hasher] backed by bcrypt. Compare runs in time
// independent of the secret's content.
type BcryptHasher struct {
	cost int
}

var _ Hasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher with the given cost. Zero selects
// [DefaultHashCost].
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultHashCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, gwerr.Validationf("auth: hash cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured bcrypt cost.
func (h *BcryptHasher) Cost() int { return h.cost }

func (h *BcryptHasher) Hash(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.CodeValidation, "auth: failed to hash secret")
	}
	return string(digest), nil
}

func (h *BcryptHasher) Compare(secret, digest string) bool {
	observability.SecretComparesTotal.Inc()
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
