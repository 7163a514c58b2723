// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package reverts defines the error type for domain-rule violations:
// precondition failures that reject an operation before any state
// change. Infrastructure faults are plain errors and never of this type.
package reverts

import (
	"errors"
	"fmt"
)

// ErrRule is a domain-rule violation.
type ErrRule struct {
	message string
}

// New creates a rule violation error.
func New(message string) *ErrRule {
	return &ErrRule{message: message}
}

// Newf creates a rule violation error with formatting.
func Newf(format string, args ...any) *ErrRule {
	return &ErrRule{message: fmt.Sprintf(format, args...)}
}

func (e *ErrRule) Error() string {
	return e.message
}

// IsRuleErr reports whether err is (or wraps) a rule violation.
func IsRuleErr(err error) bool {
	if err == nil {
		return false
	}
	var re *ErrRule
	return errors.As(err, &re)
}
