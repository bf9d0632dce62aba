package core

import "time"

// RateLimiterState is a point-in-time view of one organization's bucket.
type RateLimiterState struct {
	Organization string    `json:"organization"`
	Capacity     int       `json:"capacity"`
	Tokens       float64   `json:"tokens"`
	LastRefill   time.Time `json:"last_refill"`
}
