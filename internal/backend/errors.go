package backend

import (
	"errors"
	"fmt"
	"strings"
)

// AmbiguousMatchError reports an existence query that matched more than one
// persisted row. This signals colliding fixture data (two existing objects
// satisfy the same equality filter) and is propagated, never silently
// resolved by picking one.
type AmbiguousMatchError struct {
	TypeName string
	Filter   []string // filtered attribute names, sorted
	Matches  int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %s: %d rows satisfy filter on (%s)",
		e.TypeName, e.Matches, strings.Join(e.Filter, ", "))
}

// IsAmbiguousMatch reports whether err is an AmbiguousMatchError.
// Uses errors.As to handle wrapped errors.
func IsAmbiguousMatch(err error) bool {
	var ae *AmbiguousMatchError
	return errors.As(err, &ae)
}
