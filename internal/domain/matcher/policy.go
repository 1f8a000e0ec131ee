package matcher

import (
	"fmt"
	"time"
)

// SelectionPolicy decides which remote entity counts as "the" entity when a
// customer has more than one mandate or subscription.
type SelectionPolicy int

const (
	// First takes the first listed entity. Default.
	First SelectionPolicy = iota
	// MostRecent takes the entity with the latest creation time.
	MostRecent
	// RequireUnique refuses ambiguous remote state with an error.
	RequireUnique
)

// ParseSelectionPolicy maps a config string to a policy.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch s {
	case "", "first":
		return First, nil
	case "most-recent":
		return MostRecent, nil
	case "require-unique":
		return RequireUnique, nil
	}
	return First, fmt.Errorf("unknown selection policy %q", s)
}

func (p SelectionPolicy) String() string {
	switch p {
	case MostRecent:
		return "most-recent"
	case RequireUnique:
		return "require-unique"
	default:
		return "first"
	}
}

// Select applies the policy to a list of remote entities.
// The second return is false when the list is empty.
func Select[T any](p SelectionPolicy, items []T, createdAt func(T) time.Time) (T, bool, error) {
	var zero T
	if len(items) == 0 {
		return zero, false, nil
	}

	switch p {
	case MostRecent:
		best := items[0]
		for _, item := range items[1:] {
			if createdAt(item).After(createdAt(best)) {
				best = item
			}
		}
		return best, true, nil
	case RequireUnique:
		if len(items) > 1 {
			return zero, false, fmt.Errorf("expected at most one entity, found %d", len(items))
		}
		return items[0], true, nil
	default:
		return items[0], true, nil
	}
}
