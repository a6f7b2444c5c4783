// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package errors defines the error types surfaced by this module for failed
// calls to the token service. Callers branch on these to decide between
// retrying, re-running an interactive flow, or giving up.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// Is is equivalent to errors.Is().
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is equivalent to errors.As().
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req *http.Request
	// Resp may be nil if the transport failed before a response was received.
	Resp *http.Response
	Err  error
}

// Error implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error, letting errors.As() reach a ServiceErr
// underneath.
func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a verbose error message with the request or response.
func (e CallErr) Verbose() string {
	if e.Resp != nil {
		e.Resp.Request = nil // This brings in a bunch of TLS junk we don't need
		e.Resp.TLS = nil     // Same
	}
	return fmt.Sprintf("%s:\n\tRequest:\n%s\n\tResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}

// ServiceErr is a structured OAuth2 error returned by the token service for a
// request it understood and rejected. The fields are surfaced verbatim.
type ServiceErr struct {
	// StatusCode is the HTTP status of the response carrying the error.
	StatusCode int
	// Code is the OAuth2 "error" member, e.g. "invalid_grant".
	Code string
	// Description is the OAuth2 "error_description" member.
	Description string
	// ErrorCodes are the service's internal numeric codes, when present.
	ErrorCodes []int
	// SubError refines Code, e.g. "basic_action" or "consent_required".
	SubError string
	// CorrelationID identifies the request in service-side logs.
	CorrelationID string
	// Claims is a JSON capability challenge. When non-empty the caller must
	// re-run an interactive flow passing these claims through.
	Claims string
}

// Error implements error.Error().
func (e *ServiceErr) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("http call(%d) error: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// interactionCodes are the error codes the service uses to say that it cannot
// satisfy the request silently.
var interactionCodes = []string{
	"interaction_required",
	"consent_required",
	"login_required",
}

// IsInteractionRequired reports whether the service refused to issue a token
// without user interaction. When Claims is also set, the interactive request
// must carry it.
func (e *ServiceErr) IsInteractionRequired() bool {
	for _, code := range interactionCodes {
		if strings.EqualFold(e.Code, code) || strings.EqualFold(e.SubError, code) {
			return true
		}
	}
	return e.Claims != ""
}

// IsInteractionRequired reports whether err, anywhere in its chain, is a
// ServiceErr demanding interactive authentication. The claims challenge to
// attach, if any, is returned alongside.
func IsInteractionRequired(err error) (claims string, ok bool) {
	var se *ServiceErr
	if errors.As(err, &se) && se.IsInteractionRequired() {
		return se.Claims, true
	}
	return "", false
}
