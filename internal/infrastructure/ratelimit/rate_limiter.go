package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionTyping      = "typing"
	ActionUpload      = "upload"
	ActionAuth        = "auth"
)

// Limit is a per-minute allowance with a burst.
type Limit struct {
	PerMinute int
	Burst     int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for different users and actions
type RateLimiter struct {
	limits       map[string]Limit
	defaultLimit Limit
	buckets      map[string]*bucket
	mutex        sync.Mutex
	now          func() time.Time
}

// NewRateLimiter builds a limiter with a send allowance of sendPerMinute and fixed
// allowances for the other actions.
func NewRateLimiter(sendPerMinute int) *RateLimiter {
	if sendPerMinute <= 0 {
		sendPerMinute = 30
	}
	return &RateLimiter{
		limits: map[string]Limit{
			ActionSendMessage: {PerMinute: sendPerMinute, Burst: sendPerMinute / 3},
			ActionTyping:      {PerMinute: 120, Burst: 20},
			ActionUpload:      {PerMinute: 10, Burst: 3},
			ActionAuth:        {PerMinute: 10, Burst: 5},
		},
		defaultLimit: Limit{PerMinute: 60, Burst: 10},
		buckets:      make(map[string]*bucket),
		now:          time.Now,
	}
}

func (rl *RateLimiter) newLimiter(action string) *rate.Limiter {
	l, ok := rl.limits[action]
	if !ok {
		l = rl.defaultLimit
	}
	burst := l.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(l.PerMinute)/60.0), burst)
}

// Allow checks if a user action is allowed and consumes a token if so. When refused it
// reports how long until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action
	now := rl.now()

	rl.mutex.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{limiter: rl.newLimiter(action)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mutex.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup removes buckets that haven't been used for idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > idle {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) Len() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.buckets)
}

// StartCleanupRoutine runs Cleanup periodically until stop is closed.
func (rl *RateLimiter) StartCleanupRoutine(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			case <-stop:
				return
			}
		}
	}()
}
