package status

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tracker records operational status: uptime and request counters.
type Tracker struct {
	mu              sync.Mutex
	startTime       time.Time
	lastRequestTime time.Time
	totalRequests   int64
}

// NewTracker starts the clock now.
func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now().UTC()}
}

// RecordRequest bumps the request counter. Safe on a nil receiver so
// callers can leave tracking unwired.
func (t *Tracker) RecordRequest() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRequestTime = time.Now().UTC()
	t.totalRequests++
}

// Snapshot is a point-in-time view for the status endpoint.
type Snapshot struct {
	StartTime     time.Time `json:"start_time"`
	Uptime        string    `json:"uptime"`
	LastRequest   string    `json:"last_request"`
	TotalRequests int64     `json:"total_requests"`
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{LastRequest: "No requests yet"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		StartTime:     t.startTime,
		Uptime:        formatUptime(time.Since(t.startTime)),
		LastRequest:   formatLastRequest(t.lastRequestTime),
		TotalRequests: t.totalRequests,
	}
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}

func formatLastRequest(last time.Time) string {
	if last.IsZero() {
		return "No requests yet"
	}
	elapsed := time.Since(last)
	switch {
	case elapsed < time.Minute:
		return fmt.Sprintf("%ds ago", int(elapsed.Seconds()))
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours())/24)
	}
}
