package couchdb

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the CouchDB HTTP API.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Code is CouchDB's short error name, e.g. "not_found" or "conflict".
	Code   string
	Reason string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s: %s", e.Method, e.Path, e.StatusCode, e.Code, e.Reason)
}

// IsNotFound reports whether err is a CouchDB 404.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsConflict reports whether err is a CouchDB 409, typically a stale revision.
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsUnauthorized reports whether err is a CouchDB 401 or 403.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized) || hasStatus(err, http.StatusForbidden)
}

func hasStatus(err error, status int) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.StatusCode == status
}
