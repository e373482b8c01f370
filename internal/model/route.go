package model

import (
	"strings"
)

// KeySep joins origin and destination into a canonical route key.
const KeySep = "|"

// RouteJob is one requested quote read from the job input.
type RouteJob struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	// Index is the job's position in the input list. Used as the stable tie-break.
	Index int `json:"index"`

	// Optional per-job overrides. Zero values fall back to carrier defaults.
	Commodity      string  `json:"commodity,omitempty"`
	ContainerType  string  `json:"container_type,omitempty"`
	WeightKg       float64 `json:"weight_kg,omitempty"`
	PriceOwner     string  `json:"price_owner,omitempty"`
	DateOffsetDays *int    `json:"date_offset_days,omitempty"`
}

// Key returns the canonical identity of the job.
func (j RouteJob) Key() string {
	return Key(j.Origin, j.Destination)
}

// Key builds a canonical route key. Codes keep their case.
func Key(origin, destination string) string {
	return strings.TrimSpace(origin) + KeySep + strings.TrimSpace(destination)
}

// SplitKey recovers origin and destination from a key. Accepts the canonical
// form and the legacy hyphen form written by older stores.
func SplitKey(key string) (origin, destination string, ok bool) {
	key = strings.TrimSpace(key)
	if o, d, found := strings.Cut(key, KeySep); found {
		return strings.TrimSpace(o), strings.TrimSpace(d), true
	}
	if o, d, found := strings.Cut(key, "-"); found {
		return strings.TrimSpace(o), strings.TrimSpace(d), true
	}
	return "", "", false
}

// IsBlank reports whether a cell value should be treated as missing.
func IsBlank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}
