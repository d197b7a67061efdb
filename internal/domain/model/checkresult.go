package model

import "time"

// ParseResult is the output of one calendar parse.
type ParseResult struct {
	Events []Event
	// Matched counts event-bearing nodes found, including skipped ones.
	Matched int
	// Skipped counts malformed entries that were dropped.
	Skipped int
}

// CheckResult is the outcome of one check cycle for one user.
type CheckResult struct {
	UserID    string
	CycleID   string
	Status    CheckStatus
	NewEvents []Event
	// Observed is the number of events retained after filtering.
	Observed  int
	Filtered  int
	Skipped   int
	CheckedAt time.Time
	Duration  time.Duration
}
