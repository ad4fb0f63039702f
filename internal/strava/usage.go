package strava

import (
	"sync"
	"time"
)

// UsageTracker tracks Strava API rate limit usage as reported by the
// X-RateLimit response headers.
type UsageTracker struct {
	mu          sync.RWMutex
	limit15Min  int
	usage15Min  int
	limitDaily  int
	usageDaily  int
	lastUpdated time.Time
}

// UsageStatus represents the current rate limit usage
type UsageStatus struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	Usage15MinPct float64
	UsageDailyPct float64
	LastUpdated   time.Time
}

// NewUsageTracker creates a tracker seeded with Strava's default limits
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		limit15Min: 200,
		limitDaily: 2000,
	}
}

// Update records the latest usage reported by the API
func (u *UsageTracker) Update(limit15Min, usage15Min, limitDaily, usageDaily int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.limit15Min = limit15Min
	u.usage15Min = usage15Min
	u.limitDaily = limitDaily
	u.usageDaily = usageDaily
	u.lastUpdated = time.Now()
}

// Status returns the current usage snapshot
func (u *UsageTracker) Status() UsageStatus {
	u.mu.RLock()
	defer u.mu.RUnlock()

	status := UsageStatus{
		Limit15Min:  u.limit15Min,
		Usage15Min:  u.usage15Min,
		LimitDaily:  u.limitDaily,
		UsageDaily:  u.usageDaily,
		LastUpdated: u.lastUpdated,
	}
	if u.limit15Min > 0 {
		status.Usage15MinPct = float64(u.usage15Min) / float64(u.limit15Min) * 100
	}
	if u.limitDaily > 0 {
		status.UsageDailyPct = float64(u.usageDaily) / float64(u.limitDaily) * 100
	}
	return status
}
