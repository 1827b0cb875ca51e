// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"time"
)

// Error codes the bot acts on.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken  = "M_MISSING_TOKEN"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnknown       = "M_UNKNOWN"
)

// MatrixError is an error body returned by the homeserver, with the
// HTTP status it came with. Retrieve it with errors.As.
type MatrixError struct {
	Code             string `json:"errcode"`
	Message          string `json:"error"`
	RetryAfterMillis int64  `json:"retry_after_ms,omitempty"`
	StatusCode       int    `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// RetryAfter is the wait the server asked for on M_LIMIT_EXCEEDED, or
// zero.
func (e *MatrixError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMillis) * time.Millisecond
}

// IsMatrixError reports whether err wraps a MatrixError with code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	return errors.As(err, &matrixErr) && matrixErr.Code == code
}

// IsRoomGone reports whether err means the session can no longer post
// to the room: it was kicked, banned or left, or the room does not
// exist. Network failures and rate limits are not "gone".
func IsRoomGone(err error) bool {
	return IsMatrixError(err, ErrCodeForbidden) || IsMatrixError(err, ErrCodeNotFound)
}

// IsUnauthorized reports whether err is a rejected access token.
func IsUnauthorized(err error) bool {
	return IsMatrixError(err, ErrCodeUnknownToken) || IsMatrixError(err, ErrCodeMissingToken)
}

// RetryAfter returns the server-requested wait carried by err, or zero
// when err is not a rate limit.
func RetryAfter(err error) time.Duration {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) && matrixErr.Code == ErrCodeLimitExceeded {
		return matrixErr.RetryAfter()
	}
	return 0
}
