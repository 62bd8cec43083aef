package gc

import "time"

// Config holds engine-level GC configuration. Zero values are filled in
// by Sanitize; use DefaultConfig for the standard thresholds.
type Config struct {
	// InactiveTimeout is how long a node must stay unreferenced before it
	// is considered Inactive. Advisory only: usage telemetry, no denial.
	InactiveTimeout time.Duration

	// SessionExpiry is the time bound after which a client session is
	// assumed dead for reachability purposes.
	SessionExpiry time.Duration

	// SnapshotCacheExpiry is how long stale snapshots may be served from
	// caches. Clients loading from such a snapshot may still reference
	// nodes that look unreferenced to the summarizer.
	SnapshotCacheExpiry time.Duration

	// SweepTimeout is how long a node must stay unreferenced before it
	// becomes TombstoneReady. When zero it is derived as
	// SessionExpiry + SnapshotCacheExpiry + one day, long enough that no
	// session that could still legitimately hold a reference is alive.
	SweepTimeout time.Duration

	// SweepGracePeriod is the operator safety window between
	// TombstoneReady and SweepReady. May be zero.
	SweepGracePeriod time.Duration

	// SweepEnabled allows the sweep step to physically delete SweepReady
	// nodes. When false, nodes park at SweepReady.
	SweepEnabled bool

	// TombstoneEnforcement makes access to a tombstoned node an error.
	TombstoneEnforcement bool

	// StrictInactiveUsage makes access to an inactive node an error
	// instead of a logged event.
	StrictInactiveUsage bool

	// MaxNodesPerBlob caps node-table entries per summary blob. Larger
	// node tables are split across blobs and merged back on load.
	MaxNodesPerBlob int
}

// Default thresholds.
const (
	DefaultInactiveTimeout     = 7 * 24 * time.Hour
	DefaultSessionExpiry       = 10 * time.Minute
	DefaultSnapshotCacheExpiry = 5 * 24 * time.Hour
	DefaultMaxNodesPerBlob     = 2000
)

// DefaultConfig returns the standard GC configuration. Sweep is disabled
// and tombstones are not enforced; both are opt-in.
func DefaultConfig() Config {
	return Config{
		InactiveTimeout:     DefaultInactiveTimeout,
		SessionExpiry:       DefaultSessionExpiry,
		SnapshotCacheExpiry: DefaultSnapshotCacheExpiry,
		MaxNodesPerBlob:     DefaultMaxNodesPerBlob,
	}
}

// Sanitize fills zero values with defaults.
func (c *Config) Sanitize() {
	if c.InactiveTimeout <= 0 {
		c.InactiveTimeout = DefaultInactiveTimeout
	}
	if c.SessionExpiry <= 0 {
		c.SessionExpiry = DefaultSessionExpiry
	}
	if c.SnapshotCacheExpiry <= 0 {
		c.SnapshotCacheExpiry = DefaultSnapshotCacheExpiry
	}
	if c.MaxNodesPerBlob <= 0 {
		c.MaxNodesPerBlob = DefaultMaxNodesPerBlob
	}
}

// EffectiveSweepTimeout returns the configured sweep timeout, or the
// derived default when unset.
func (c Config) EffectiveSweepTimeout() time.Duration {
	if c.SweepTimeout > 0 {
		return c.SweepTimeout
	}
	return c.SessionExpiry + c.SnapshotCacheExpiry + 24*time.Hour
}

// Timeouts converts the configured thresholds to millisecond values used
// by the tracker.
func (c Config) Timeouts() Timeouts {
	return Timeouts{
		InactiveMs: c.InactiveTimeout.Milliseconds(),
		SweepMs:    c.EffectiveSweepTimeout().Milliseconds(),
		GraceMs:    c.SweepGracePeriod.Milliseconds(),
	}
}
