package application

import "time"

// ActivityTier classifies how often a source of threads is synced, based on
// how recently its comments changed.
type ActivityTier int

const (
	// TierHot indicates activity within the last hour. Syncs every 2 minutes.
	TierHot ActivityTier = iota
	// TierActive indicates activity within the last day. Syncs every 5 minutes.
	TierActive
	// TierWarm indicates activity within the last 7 days. Syncs every 15 minutes.
	TierWarm
	// TierStale indicates no activity for 7+ days. Syncs every 30 minutes.
	TierStale
)

// Sync intervals per activity tier.
const (
	intervalHot    = 2 * time.Minute
	intervalActive = 5 * time.Minute
	intervalWarm   = 15 * time.Minute
	intervalStale  = 30 * time.Minute
)

// String returns a human-readable name for the activity tier.
func (t ActivityTier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierActive:
		return "active"
	case TierWarm:
		return "warm"
	case TierStale:
		return "stale"
	default:
		return "unknown"
	}
}

// tierInterval returns the sync interval for the given activity tier.
func tierInterval(tier ActivityTier) time.Duration {
	switch tier {
	case TierHot:
		return intervalHot
	case TierActive:
		return intervalActive
	case TierWarm:
		return intervalWarm
	case TierStale:
		return intervalStale
	default:
		return intervalActive
	}
}

// classifyActivity determines the activity tier based on the time elapsed
// since the last activity. A zero-value time is treated as TierStale.
func classifyActivity(lastActivity time.Time) ActivityTier {
	if lastActivity.IsZero() {
		return TierStale
	}

	elapsed := time.Since(lastActivity)

	switch {
	case elapsed < 1*time.Hour:
		return TierHot
	case elapsed < 24*time.Hour:
		return TierActive
	case elapsed < 7*24*time.Hour:
		return TierWarm
	default:
		return TierStale
	}
}

// syncSchedule tracks the adaptive sync state of one syncer.
type syncSchedule struct {
	tier       ActivityTier
	nextSyncAt time.Time
	lastSynced time.Time
	lastError  string
}

// advance records a sync that finished at now with the given newest activity
// and schedules the next one.
func (s *syncSchedule) advance(now, lastActivity time.Time, err error) {
	s.lastSynced = now
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
		s.nextSyncAt = now.Add(tierInterval(s.tier))
		return
	}
	s.tier = classifyActivity(lastActivity)
	s.nextSyncAt = now.Add(tierInterval(s.tier))
}

// ScheduleInfo is an exported view of a syncer's adaptive schedule, used for
// observability and testing.
type ScheduleInfo struct {
	Name       string    `json:"name"`
	Tier       string    `json:"tier"`
	NextSyncAt time.Time `json:"next_sync_at"`
	LastSynced time.Time `json:"last_synced"`
	LastError  string    `json:"last_error,omitempty"`
}
