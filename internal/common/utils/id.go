package utils

import "github.com/lucsky/cuid"

// NewRequestID returns a collision-resistant id used to correlate the log
// lines of one authenticated call (original attempt, refresh, retry).
func NewRequestID() string {
	return cuid.New()
}
