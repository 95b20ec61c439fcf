package store

import "github.com/dukerupert/healthnotify/internal/model"

// Predicate selects notifications for Filter.
type Predicate func(model.DomainNotification) bool

func Unread() Predicate {
	return func(n model.DomainNotification) bool { return !n.Read }
}

func ReadOnly() Predicate {
	return func(n model.DomainNotification) bool { return n.Read }
}

func ActionRequired() Predicate {
	return func(n model.DomainNotification) bool { return n.ActionRequired }
}

// OfType matches any of the given types.
func OfType(types ...model.Type) Predicate {
	return func(n model.DomainNotification) bool {
		for _, t := range types {
			if n.Type == t {
				return true
			}
		}
		return false
	}
}

// MinPriority matches notifications at or above p.
func MinPriority(p model.Priority) Predicate {
	return func(n model.DomainNotification) bool { return n.Priority.Rank() >= p.Rank() }
}

func matchAll(n model.DomainNotification, preds []Predicate) bool {
	for _, p := range preds {
		if p != nil && !p(n) {
			return false
		}
	}
	return true
}
