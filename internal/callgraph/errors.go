package callgraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDepth is returned when a traversal bound is negative.
var ErrInvalidDepth = errors.New("max depth must be >= 0")

// BuildInputError rejects a record set before any node is created.
type BuildInputError struct {
	// DuplicateIDs lists IDs that occur more than once.
	DuplicateIDs []string
	// EmptyIDAt is the input index of a record without an ID, or -1.
	EmptyIDAt int
}

func (e *BuildInputError) Error() string {
	if e.EmptyIDAt >= 0 {
		return fmt.Sprintf("build input: record %d has an empty id", e.EmptyIDAt)
	}
	ids := e.DuplicateIDs
	suffix := ""
	if len(ids) > 5 {
		suffix = fmt.Sprintf(" (and %d more)", len(ids)-5)
		ids = ids[:5]
	}
	return fmt.Sprintf("build input: duplicate function ids: %s%s", strings.Join(ids, ", "), suffix)
}

// NotFoundError reports a query for an ID the graph does not contain.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("function %q not found in call graph", e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsBuildInput reports whether err is (or wraps) a BuildInputError.
func IsBuildInput(err error) bool {
	var bi *BuildInputError
	return errors.As(err, &bi)
}
