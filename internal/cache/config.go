package cache

import "time"

// Config holds query cache settings.
type Config struct {
	// MaxEntries bounds the number of cached keys; the least recently used
	// entry is evicted first.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// StaleTime is how long a written entry is served without refetching.
	// Zero means every read refetches unless the entry was written with a
	// future updatedAt.
	StaleTime time.Duration `yaml:"stale_time" json:"stale_time"`
}

// DefaultConfig returns the default cache settings.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 1000,
		StaleTime:  0,
	}
}
