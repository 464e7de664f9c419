/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package status defines metadata for errors returned by the enrollment
// components. This information may be used by callers to make decisions about
// how to handle certain error conditions (for example whether a retry makes sense).
// Status codes are divided by group, where each group represents a particular
// component: the transport to the CA, the CA itself, the wallet and the client.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Status provides additional information about an unsuccessful operation.
// Essentially, this object contains metadata about an error.
type Status struct {
	// Group status group
	Group Group
	// Code status code
	Code int32
	// Message status message
	Message string
	// Details any additional status details
	Details []interface{}
}

// Group of status to help users infer status codes from various components
type Group int32

const (
	// UnknownStatus unknown status group
	UnknownStatus Group = iota

	// HTTPTransportStatus is the status associated with requests made over HTTP
	// connections to the CA
	HTTPTransportStatus

	// FabricCAServerStatus status returned by (or inferred from the response of)
	// the Fabric CA server
	FabricCAServerStatus

	// WalletStatus status returned by the credential store
	WalletStatus

	// ClientStatus is a generic client status, e.g. request validation
	ClientStatus
)

// GroupName maps the groups in this packages to human-readable strings
var GroupName = map[int32]string{
	0: "Unknown",
	1: "HTTP Transport Status",
	2: "Fabric CA Server Status",
	3: "Wallet Status",
	4: "Client Status",
}

func (g Group) String() string {
	if s, ok := GroupName[int32(g)]; ok {
		return s
	}
	return UnknownStatus.String()
}

// FromError returns a Status representing err if available,
// otherwise it returns nil, false.
func FromError(err error) (s *Status, ok bool) {
	if err == nil {
		return &Status{Code: int32(OK)}, true
	}
	if s, ok := err.(*Status); ok {
		return s, true
	}
	if s, ok := errors.Cause(err).(*Status); ok {
		return s, true
	}
	var target *Status
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of the status carried by err, or Unknown when err
// carries no status.
func CodeOf(err error) Code {
	s, ok := FromError(err)
	if !ok {
		return Unknown
	}
	return Code(s.Code)
}

// Is reports whether err carries a status with the given group and code.
func Is(err error, group Group, code Code) bool {
	s, ok := FromError(err)
	return ok && s.Group == group && Code(s.Code) == code
}

func (s *Status) Error() string {
	return fmt.Sprintf("%s Code: (%d) %s. Description: %s", s.Group.String(), s.Code, Code(s.Code).String(), s.Message)
}

// New returns a Status with the given parameters
func New(group Group, code int32, msg string, details []interface{}) *Status {
	return &Status{Group: group, Code: code, Message: msg, Details: details}
}
