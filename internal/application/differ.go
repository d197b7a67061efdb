package application

import "github.com/ericfisherdev/lmsnotify/internal/domain/model"

// DiffEvents compares this cycle's filtered events with the Seen-State of
// the previous successful cycle.
//
// current is first deduplicated by identity, keeping the first occurrence;
// the result is both the next Seen-State and the universe for fresh. fresh
// holds, in portal order, the events whose identity is not in seen. When
// hasSeen is false (cold start) nothing is fresh.
func DiffEvents(current, seen []model.Event, hasSeen bool) (fresh, next []model.Event) {
	next = make([]model.Event, 0, len(current))
	inCurrent := make(map[string]struct{}, len(current))
	for _, e := range current {
		if _, dup := inCurrent[e.Identity]; dup {
			continue
		}
		inCurrent[e.Identity] = struct{}{}
		next = append(next, e)
	}

	fresh = []model.Event{}
	if !hasSeen {
		return fresh, next
	}

	seenIDs := make(map[string]struct{}, len(seen))
	for _, e := range seen {
		seenIDs[e.Identity] = struct{}{}
	}
	for _, e := range next {
		if _, ok := seenIDs[e.Identity]; !ok {
			fresh = append(fresh, e)
		}
	}
	return fresh, next
}
