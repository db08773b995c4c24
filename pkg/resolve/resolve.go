// Package resolve matches caller-supplied short identifiers against the live
// inventory.
package resolve

import (
	"fmt"
	"strings"
)

// Error is returned when an identifier does not match exactly one entity.
type Error struct {
	Kind    string // "container", "network"
	ID      string
	Matches int
}

func (e *Error) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no match for %s ID %s", e.Kind, e.ID)
	}
	return fmt.Sprintf("multiple match (%d) for %s ID %s", e.Matches, e.Kind, e.ID)
}

// One returns the single item whose identifier starts with id. The match is
// case-sensitive and runs over the raw identifier only.
func One[T any](kind, id string, items []T, idOf func(T) string) (T, error) {
	var (
		found T
		n     int
	)
	for _, item := range items {
		if strings.HasPrefix(idOf(item), id) {
			found = item
			n++
		}
	}
	if n != 1 {
		var zero T
		return zero, &Error{Kind: kind, ID: id, Matches: n}
	}
	return found, nil
}
