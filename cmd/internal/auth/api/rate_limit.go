package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipThrottle is a per-client-IP token bucket. The bucket holds max tokens and refills
// at max per window, so a client may burst max requests and then gets one more per
// window/max.
type ipThrottle struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	limiters sync.Map // ip -> *rate.Limiter

	mu          sync.Mutex
	lastCleanup time.Time
}

const throttleCleanupEvery = 5 * time.Minute

func newIPThrottle(max int, window time.Duration, now func() time.Time) *ipThrottle {
	if now == nil {
		now = time.Now
	}
	return &ipThrottle{
		limit:       rate.Limit(float64(max) / window.Seconds()),
		burst:       max,
		now:         now,
		lastCleanup: now(),
	}
}

// allow consumes one token for key. When denied it returns how long until the next
// token is available.
func (t *ipThrottle) allow(key string) (bool, time.Duration) {
	now := t.now()
	lim := t.limiter(key, now)

	if lim.AllowN(now, 1) {
		return true, 0
	}

	res := lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return false, delay
}

func (t *ipThrottle) limiter(key string, now time.Time) *rate.Limiter {
	if v, ok := t.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	t.maybeCleanup(now)
	v, _ := t.limiters.LoadOrStore(key, rate.NewLimiter(t.limit, t.burst))
	return v.(*rate.Limiter)
}

// maybeCleanup drops limiters whose buckets have refilled; they carry no state.
func (t *ipThrottle) maybeCleanup(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastCleanup) < throttleCleanupEvery {
		return
	}
	t.lastCleanup = now

	t.limiters.Range(func(k, v any) bool {
		if v.(*rate.Limiter).TokensAt(now) >= float64(t.burst) {
			t.limiters.Delete(k)
		}
		return true
	})
}

func (t *ipThrottle) size() int {
	n := 0
	t.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int64(retryAfter / time.Second)
	if retryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
}
