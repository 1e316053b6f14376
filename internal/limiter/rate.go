package limiter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter giới hạn số lượng request trong 1 giây
type RateLimiter struct {
	requestTimes []time.Time
	maxRequests  int
	pollDelay    time.Duration
	now          func() time.Time
	mu           sync.Mutex
}

// NewRateLimiter cho phép tối đa maxRequests request mỗi giây, giá trị <= 0 là
// không giới hạn. pollDelay là thời gian Wait chờ giữa hai lần kiểm tra.
func NewRateLimiter(maxRequests int, pollDelay time.Duration) *RateLimiter {
	if pollDelay <= 0 {
		pollDelay = 50 * time.Millisecond
	}
	return &RateLimiter{
		requestTimes: make([]time.Time, 0, max(maxRequests, 0)),
		maxRequests:  maxRequests,
		pollDelay:    pollDelay,
		now:          time.Now,
	}
}

// Allow kiểm tra xem có thể thực hiện request mới hay không, nếu được thì ghi nhận request đó
func (r *RateLimiter) Allow() bool {
	if r == nil || r.maxRequests <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	oneSecondAgo := now.Add(-1 * time.Second)

	// Xóa các request cũ hơn 1 giây
	validTimes := r.requestTimes[:0]
	for _, t := range r.requestTimes {
		if t.After(oneSecondAgo) {
			validTimes = append(validTimes, t)
		}
	}
	r.requestTimes = validTimes

	if len(r.requestTimes) < r.maxRequests {
		r.requestTimes = append(r.requestTimes, now)
		return true
	}

	return false
}

// Wait chờ cho tới khi được phép gửi request hoặc ctx kết thúc
func (r *RateLimiter) Wait(ctx context.Context) error {
	for !r.Allow() {
		timer := time.NewTimer(r.pollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
