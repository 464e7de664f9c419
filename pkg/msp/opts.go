/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package msp

import (
	"net/http"
	"time"
)

// Option configures a CAClient
type Option func(*CAClient)

// WithTimeout bounds each enrollment call, on top of the caller's context.
// Non-positive values keep the default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CAClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client built from the endpoint. The
// endpoint's TLS settings are then ignored.
func WithHTTPClient(client *http.Client) Option {
	return func(c *CAClient) {
		c.httpClient = client
	}
}
