package schema

import (
	"fmt"
	"strings"
)

// PreconditionError reports a schema or caller bug: a grossly mis-typed value
// handed to a state setter. It is never produced for user input problems,
// which surface as InvalidReason values instead.
type PreconditionError struct {
	Property string
	Expected string
	Got      any
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated on property %s: expected %s value, got %T", e.Property, e.Expected, e.Got)
}

// AccessDeniedCode distinguishes the two role failure modes.
type AccessDeniedCode string

const (
	// CodeForbidden means no role the requester could assume grants access.
	CodeForbidden AccessDeniedCode = "FORBIDDEN"
	// CodeMustAuthenticate means the requester is a guest but some non-guest
	// role would have been granted access.
	CodeMustAuthenticate AccessDeniedCode = "MUST_BE_LOGGED_IN"
)

// AccessDeniedError reports a failed role access check.
type AccessDeniedError struct {
	Code          AccessDeniedCode
	Action        Action
	Role          string
	GrantedRoles  []string
	QualifiedPath string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("%s: role %s may not %s %s (granted roles: %s)",
		e.Code, e.Role, e.Action, e.QualifiedPath, strings.Join(e.GrantedRoles, ", "))
}

// ErrNotFound is returned when a schema lookup by name or id fails.
type ErrNotFound struct {
	Kind string
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}
