/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package api holds the types exchanged with a Fabric CA during enrollment.
package api

import (
	"strings"

	"github.com/pkg/errors"
)

// CAEndpoint is everything needed to reach one certificate authority.
type CAEndpoint struct {
	// ID is the key of the CA in the connection profile, e.g. ca.org2.example.com
	ID string
	// URL is the base URL of the CA server
	URL string
	// CAName selects the CA when the server hosts several
	CAName string
	// TLSCACerts are PEM encoded roots trusted for the CA's TLS certificate
	TLSCACerts [][]byte
	// Verify enables verification of the CA's TLS certificate
	Verify bool
}

// Validate checks that the endpoint can be dialed. Plain http URLs are
// accepted for development networks; the client warns when it uses one.
func (e *CAEndpoint) Validate() error {
	if e == nil {
		return errors.New("CA endpoint is required")
	}
	if e.URL == "" {
		return errors.Errorf("CA endpoint [%s] has no url", e.ID)
	}
	lower := strings.ToLower(e.URL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return errors.Errorf("CA endpoint [%s] url must use http or https: %s", e.ID, e.URL)
	}
	return nil
}

// IsTLSEnabled reports whether the endpoint url uses https.
func (e *CAEndpoint) IsTLSEnabled() bool {
	return strings.HasPrefix(strings.ToLower(e.URL), "https://")
}

// AttributeRequest is a request for an attribute.
type AttributeRequest struct {
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
}

// CSRInfo is Certificate Signing Request (CSR) Information
type CSRInfo struct {
	CN    string
	Hosts []string
}

// EnrollmentRequest carries the one-time credentials of a principal.
type EnrollmentRequest struct {
	// Name is the enrollment ID registered with the CA
	Name string
	// Secret is the enrollment secret. It is never logged or persisted.
	Secret string
	// MSPID is recorded in the resulting identity
	MSPID string
	// Profile is the name of the signing profile to use in issuing the certificate
	Profile string
	// Label is the label to use in HSM operations on the CA side
	Label string
	// CSR overrides the default CSR fields (CN defaults to Name)
	CSR *CSRInfo
	// AttrReqs are attributes to include in the enrollment certificate
	AttrReqs []*AttributeRequest
}

// Validate checks that the request carries the mandatory fields.
func (r *EnrollmentRequest) Validate() error {
	if r == nil {
		return errors.New("enrollment request is required")
	}
	if r.Name == "" {
		return errors.New("enrollment ID is required")
	}
	if r.Secret == "" {
		return errors.New("enrollment secret is required")
	}
	if r.MSPID == "" {
		return errors.New("MSP ID is required")
	}
	return nil
}

// String is safe to log: the secret is masked.
func (r *EnrollmentRequest) String() string {
	return "{Name:" + r.Name + " MSPID:" + r.MSPID + " Secret:****}"
}
