package clientdata

import "time"

// TTL constants for cached oracle data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLCurrentPrice bounds how old a quote may be when it is used for a purchase or a report
	TTLCurrentPrice = 30 * time.Second
	// cleanupGrace keeps just-expired rows around briefly so a cleanup run never races a Store
	cleanupGrace = time.Minute
)
