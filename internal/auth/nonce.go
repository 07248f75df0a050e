package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// nonceTTL is how long an issued login nonce can be used.
const nonceTTL = 5 * time.Minute

type pendingNonce struct {
	wallet  string
	expires time.Time
}

// NonceStore hands out single-use login nonces bound to one wallet.
type NonceStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]pendingNonce
	issued  uint64
}

func NewNonceStore(ttl time.Duration) *NonceStore {
	if ttl <= 0 {
		ttl = nonceTTL
	}
	return &NonceStore{
		ttl:     ttl,
		pending: make(map[string]pendingNonce),
	}
}

// Issue creates a nonce for wallet and returns it with its expiry.
func (s *NonceStore) Issue(wallet string, now time.Time) (string, time.Time) {
	nonce := uuid.New().String()
	expires := now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[nonce] = pendingNonce{wallet: wallet, expires: expires}
	s.issued++
	if s.issued%256 == 0 {
		for k, v := range s.pending {
			if !now.Before(v.expires) {
				delete(s.pending, k)
			}
		}
	}
	return nonce, expires
}

// Consume reports whether nonce was issued to wallet and is unexpired. A
// nonce is consumed by its first presentation, whatever the outcome.
func (s *NonceStore) Consume(wallet, nonce string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[nonce]
	if !ok {
		return false
	}
	delete(s.pending, nonce)
	return p.wallet == wallet && now.Before(p.expires)
}
