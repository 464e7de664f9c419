/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package status

import (
	"strconv"
)

// Code represents a status code
type Code uint32

const (
	// OK is returned on success.
	OK Code = 0

	// Unknown represents status codes that are uncategorized or unknown
	Unknown Code = 1

	// ConnectionFailed is returned when a network connection attempt to the CA fails
	// (dial, TLS handshake, reset, HTTP 5xx)
	ConnectionFailed Code = 2

	// AuthenticationFailed is returned when the CA rejects the enrollment ID or secret
	AuthenticationFailed Code = 3

	// MalformedResponse is returned when the CA response cannot be turned into an identity
	MalformedResponse Code = 4

	// Timeout operation timed out
	Timeout Code = 5

	// StoreUnavailable is returned when the wallet medium cannot be read or written
	StoreUnavailable Code = 6

	// AlreadyEnrolled is informational: the wallet already holds the identity
	AlreadyEnrolled Code = 7

	// InvalidArgument is returned when a request fails validation
	InvalidArgument Code = 8
)

// CodeName maps the codes in this packages to human-readable strings
var CodeName = map[int32]string{
	0: "OK",
	1: "UNKNOWN",
	2: "CONNECTION_FAILED",
	3: "AUTHENTICATION_FAILED",
	4: "MALFORMED_RESPONSE",
	5: "TIMEOUT",
	6: "STORE_UNAVAILABLE",
	7: "ALREADY_ENROLLED",
	8: "INVALID_ARGUMENT",
}

// ToInt32 cast to int32
func (c Code) ToInt32() int32 {
	return int32(c)
}

// String representation of the code
func (c Code) String() string {
	if s, ok := CodeName[c.ToInt32()]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// IsTransport reports whether the code is one of the transport failures a caller
// may retry with backoff.
func (c Code) IsTransport() bool {
	return c == ConnectionFailed || c == Timeout
}
