package cache

// Stats holds cache performance metrics.
type Stats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	Fetches       int64   `json:"fetches"`
	Invalidations int64   `json:"invalidations"`
	Cancellations int64   `json:"cancellations"`
	Rejected      int64   `json:"rejected"`
	Entries       int     `json:"entries"`
	InFlight      int     `json:"in_flight"`
	HitRate       float64 `json:"hit_rate"`
}
