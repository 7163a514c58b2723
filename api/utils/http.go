// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package utils holds the handler plumbing shared by the API routers.
package utils

import (
	"encoding/json"
	"net/http"
)

// HandlerFunc is http.HandlerFunc with an error return. Errors built
// via BadRequest or NotFound respond with their status, anything else
// responds http.StatusInternalServerError.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type statusError struct {
	cause  error
	status int
}

func (e *statusError) Error() string { return e.cause.Error() }

// BadRequest wraps cause as a 400 response.
func BadRequest(cause error) error {
	return &statusError{cause: cause, status: http.StatusBadRequest}
}

// NotFound wraps cause as a 404 response.
func NotFound(cause error) error {
	return &statusError{cause: cause, status: http.StatusNotFound}
}

// WrapHandlerFunc converts a HandlerFunc into an http.HandlerFunc,
// mapping the returned error onto the response.
func WrapHandlerFunc(f HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			status := http.StatusInternalServerError
			if se, ok := err.(*statusError); ok {
				status = se.status
			}
			http.Error(w, err.Error(), status)
		}
	}
}

// WriteJSON responds with obj in JSON encoding.
func WriteJSON(w http.ResponseWriter, obj any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	return json.NewEncoder(w).Encode(obj)
}

// M is shorthand for a JSON object.
type M map[string]any
