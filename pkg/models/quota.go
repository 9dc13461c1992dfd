package models

import "time"

// QuotaRecord captures the quota figures reported by a single API response.
type QuotaRecord struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Site      string    `json:"site,omitempty"`
	Remaining int       `json:"quota_remaining"`
	Max       int       `json:"quota_max"`
	Backoff   int       `json:"backoff,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QuotaSummary aggregates API calls per endpoint and day.
type QuotaSummary struct {
	Endpoint     string `json:"endpoint"`
	Day          string `json:"day"`
	Requests     int    `json:"requests"`
	MinRemaining int    `json:"min_remaining"`
}
