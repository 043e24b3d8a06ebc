// Copyright 2025 API-Sec Authors
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

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error taxonomy for the inspection pipeline. Handlers map these to HTTP
// status codes at the boundary; internal detail never reaches the caller.
var (
	// ErrUnauthenticated means no credential was presented.
	ErrUnauthenticated = errors.New("missing credential")

	// ErrInvalidCredential means the credential matched no tenant.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrValidation means the request body was malformed or oversized.
	ErrValidation = errors.New("invalid request")

	// ErrRateLimited means the tenant exhausted its window quota.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrIPBlocked means the source IP is on the global blocklist.
	ErrIPBlocked = errors.New("ip blocked")

	// ErrDependencyUnavailable means the tenant store or rate-limit store
	// could not be reached.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// httpStatus maps a pipeline error to the status code returned to the
// caller. Unknown errors become a generic 500.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIPBlocked):
		return http.StatusForbidden
	case errors.Is(err, ErrDependencyUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error envelope returned to callers.
type errorBody struct {
	Error string `json:"error"`
}

// writeError writes the JSON error envelope for err. Internal errors get
// a generic message; stack traces and wrapped detail stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		msg = "service temporarily unavailable"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
