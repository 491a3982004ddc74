// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx answer from the completions endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("llm api: status %d", e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Type != "" {
		msg += " (type: " + e.Type + ")"
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// ErrorType names the failure class so retry policies can match on it.
func (e *APIError) ErrorType() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return "RateLimitError"
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "AuthenticationError"
	case e.Retryable():
		return "TransientAPIError"
	default:
		return "PermanentAPIError"
	}
}

// Retryable reports whether the request may succeed when sent again.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// TransportError wraps failures below HTTP: DNS, connection resets,
// client timeouts. They are always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string   { return "llm transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Retryable() bool { return true }
func (e *TransportError) ErrorType() string {
	return "TransportError"
}

// ErrNoChoices is returned when a 2xx response carries no choices.
var ErrNoChoices = errors.New("llm api: response has no choices")

// IsRetryable reports whether err, or anything it wraps, is a retryable
// remote call failure.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

func parseErrorBody(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Message = payload.Error.Message
		apiErr.Type = payload.Error.Type
		if payload.Error.Code != nil {
			apiErr.Code = fmt.Sprint(payload.Error.Code)
		}
		return apiErr
	}
	if len(body) > 512 {
		body = body[:512]
	}
	apiErr.Message = string(body)
	return apiErr
}

// retryAfter reads Retry-After (seconds or HTTP date), then the OpenAI
// x-ratelimit-reset-* headers which carry durations such as "6m0s".
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("Retry-After-Ms"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	for _, name := range []string{"X-Ratelimit-Reset-Requests", "X-Ratelimit-Reset-Tokens"} {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			// epoch seconds
			if d := time.Unix(secs, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}
