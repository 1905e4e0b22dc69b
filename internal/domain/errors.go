package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// BadRequestError represents malformed or missing input. BadRequest failures
// are always raised before any write happens.
type BadRequestError struct {
	Msg string
}

func (e BadRequestError) Error() string {
	if e.Msg == "" {
		return "bad request"
	}
	return e.Msg
}

// Is enables errors.Is matching on BadRequestError.
func (e BadRequestError) Is(target error) bool {
	_, ok := target.(BadRequestError)
	if ok {
		return true
	}
	_, ok = target.(*BadRequestError)
	return ok
}

// ErrBadRequest is the sentinel error for malformed input.
var ErrBadRequest = BadRequestError{}

// UnauthorizedError represents a caller lacking the required role.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

// Is enables errors.Is matching on UnauthorizedError.
func (e UnauthorizedError) Is(target error) bool {
	_, ok := target.(UnauthorizedError)
	if ok {
		return true
	}
	_, ok = target.(*UnauthorizedError)
	return ok
}

// ErrUnauthorized is the sentinel error for missing roles.
var ErrUnauthorized = UnauthorizedError{}
