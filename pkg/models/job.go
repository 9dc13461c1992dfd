package models

import "time"

// JobMarker records a background refresh that is believed to be running.
type JobMarker struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}
