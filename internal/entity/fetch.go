package entity

import "time"

type FetchStatus string

const (
	FetchOK     FetchStatus = "ok"
	FetchFailed FetchStatus = "failed"
)

// FetchRecord describes a single upstream fetch attempt.
type FetchRecord struct {
	Key       TileKey
	Status    FetchStatus
	Bytes     int64
	Duration  time.Duration
	Error     string
	FetchedAt time.Time
}

type FetchStats struct {
	Total  int64 `json:"total"`
	OK     int64 `json:"ok"`
	Failed int64 `json:"failed"`
	Bytes  int64 `json:"bytes"`
}
