// Package apperr defines the error variants shared by the dashboard backend
// and their single mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the variant of an Error
type Kind int

const (
	// KindConfiguration means required credentials or endpoints are missing
	KindConfiguration Kind = iota + 1
	// KindUpstream covers network failures, non-2xx statuses and malformed
	// responses from Home Assistant
	KindUpstream
	// KindValidation means a caller-supplied field is missing or invalid
	KindValidation
	// KindAuthorization means the entity is not eligible for the action
	KindAuthorization
	// KindNotFound means a named quick action does not exist
	KindNotFound
	// KindBackend means the chat backend is unreachable or answered non-2xx
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the tagged error returned across component boundaries.
// Status and Payload are only meaningful for KindUpstream and KindBackend;
// Payload is whatever the remote side sent, parsed JSON or raw text.
type Error struct {
	Kind    Kind
	Status  int
	Payload interface{}
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration returns a KindConfiguration error
func Configuration(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// Upstream returns a KindUpstream error. status is 0 when no HTTP status was
// received (network failure, malformed body).
func Upstream(status int, payload interface{}, err error) *Error {
	msg := "HA request failed"
	if status > 0 {
		msg = fmt.Sprintf("HA request failed (%d)", status)
	}
	return &Error{Kind: KindUpstream, Status: status, Payload: payload, Message: msg, Err: err}
}

// Validation returns a KindValidation error
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Authorization returns a KindAuthorization error
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// NotFound returns a KindNotFound error
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Backend returns a KindBackend error
func Backend(status int, msg string, err error) *Error {
	return &Error{Kind: KindBackend, Status: status, Message: msg, Err: err}
}

// As extracts the *Error from err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or 0 if err is not an *Error
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps err onto the status code the API answers with
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusInternalServerError
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text shown to API callers: the Message of the
// first *Error in err's chain, without wrapped causes.
func PublicMessage(err error) string {
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
