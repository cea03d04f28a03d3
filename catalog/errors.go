// Copyright 2026 The Lux Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "fmt"

// APIError is a non-2xx response from the catalog service. The body is
// retained for diagnostics — the catalog returns a plain-text or JSON
// error description depending on the endpoint.
type APIError struct {
	// StatusCode is the HTTP status of the failed response.
	StatusCode int

	// Endpoint is the request path that failed.
	Endpoint string

	// Body is the raw response body, bounded by netutil.MaxResponseSize.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
