// Package ratelimit throttles mutating requests per caller. Callers are
// identified by their authenticated wallet when there is one and by client
// IP otherwise, and each identity gets its own token bucket.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"qa-escrow/internal/metrics"
)

// SubjectKind says how a caller was identified.
type SubjectKind string

const (
	SubjectWallet SubjectKind = "wallet"
	SubjectIP     SubjectKind = "ip"
)

// Subject is the caller a bucket belongs to. A wallet and an IP that happen
// to share a string never share a bucket.
type Subject struct {
	Kind SubjectKind
	ID   string
}

// Wallet identifies an authenticated caller.
func Wallet(address string) Subject {
	return Subject{Kind: SubjectWallet, ID: strings.TrimSpace(address)}
}

// IP identifies an anonymous caller.
func IP(addr string) Subject {
	return Subject{Kind: SubjectIP, ID: strings.TrimSpace(addr)}
}

// sweepEvery is how many checks pass between evictions of idle buckets.
const sweepEvery = 512

// Limiter keeps a token bucket per subject and evicts buckets that have gone
// idle. A nil *Limiter allows everything.
type Limiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	metrics *metrics.LedgerMetrics

	mu      sync.Mutex
	buckets map[Subject]*bucket
	checks  uint64
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps requests per second per subject with
// the given burst. Rejections are counted on m. It returns nil when rps or
// burst is not positive, which disables limiting.
func New(rps float64, burst int, idleTTL time.Duration, m *metrics.LedgerMetrics) *Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		metrics: m,
		buckets: make(map[Subject]*bucket),
	}
}

// Allow reports whether subject may proceed at now. When it may not, the
// second result is how long until a token frees up. Rejected checks do not
// spend a token.
func (l *Limiter) Allow(subject Subject, now time.Time) (bool, time.Duration) {
	if l == nil || subject.ID == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[subject]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[subject] = b
	}
	b.lastSeen = now

	l.checks++
	if l.checks%sweepEvery == 0 {
		l.sweep(now)
	}

	r := b.tokens.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Tracked returns how many subjects currently hold a bucket.
func (l *Limiter) Tracked() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for s, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, s)
		}
	}
}

// Middleware rejects requests whose subject has exhausted its bucket with
// 429 and a Retry-After header.
func Middleware(l *Limiter, subjectFn func(c *gin.Context) Subject) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := subjectFn(c)
		allowed, wait := l.Allow(subject, time.Now())
		if allowed {
			c.Next()
			return
		}

		l.metrics.ObserveRateLimited(string(subject.Kind), c.FullPath())

		retryAfter := int(math.Ceil(wait.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
	}
}
