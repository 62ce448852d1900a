package service

import "sync/atomic"

// Stats counts pipeline outcomes. All methods are safe for concurrent use.
type Stats struct {
	accepted       atomic.Int64
	noBody         atomic.Int64
	badToken       atomic.Int64
	selfTestOff    atomic.Int64
	storeFailures  atomic.Int64
	mirrorFailures atomic.Int64
	notifyFailures atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Accepted       int64 `json:"accepted"`
	NoBody         int64 `json:"no_body"`
	BadToken       int64 `json:"bad_token"`
	SelfTestOff    int64 `json:"selftest_disabled"`
	StoreFailures  int64 `json:"store_failures"`
	MirrorFailures int64 `json:"mirror_failures"`
	NotifyFailures int64 `json:"notify_failures"`
}

// Rejected sums every request-level rejection.
func (s StatsSnapshot) Rejected() int64 {
	return s.NoBody + s.BadToken + s.SelfTestOff
}

// Snapshot reads the counters without resetting them.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:       s.accepted.Load(),
		NoBody:         s.noBody.Load(),
		BadToken:       s.badToken.Load(),
		SelfTestOff:    s.selfTestOff.Load(),
		StoreFailures:  s.storeFailures.Load(),
		MirrorFailures: s.mirrorFailures.Load(),
		NotifyFailures: s.notifyFailures.Load(),
	}
}

// Sub returns the counts accumulated since prev.
func (s StatsSnapshot) Sub(prev StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Accepted:       s.Accepted - prev.Accepted,
		NoBody:         s.NoBody - prev.NoBody,
		BadToken:       s.BadToken - prev.BadToken,
		SelfTestOff:    s.SelfTestOff - prev.SelfTestOff,
		StoreFailures:  s.StoreFailures - prev.StoreFailures,
		MirrorFailures: s.MirrorFailures - prev.MirrorFailures,
		NotifyFailures: s.NotifyFailures - prev.NotifyFailures,
	}
}
