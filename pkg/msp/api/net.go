/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package api

// EnrollmentRequestNet is the body of POST /api/v1/enroll
type EnrollmentRequestNet struct {
	// Request is the PEM encoded certificate signing request
	Request string `json:"certificate_request"`
	// Hosts are the SANs requested for the certificate
	Hosts   []string `json:"hosts,omitempty"`
	Profile string   `json:"profile,omitempty"`
	Label   string   `json:"label,omitempty"`
	// CAName is the name of the CA to connect to
	CAName string `json:"caname,omitempty"`
	// AttrReqs are requests for attributes to add to the certificate
	AttrReqs []*AttributeRequest `json:"attr_reqs,omitempty"`
}

// EnrollmentResponseNet is the enrollment response from the server
type EnrollmentResponseNet struct {
	// Base64 encoded PEM-encoded ECert
	Cert string
	// The server information
	ServerInfo ServerInfoResponseNet
}

// ServerInfoResponseNet is the server information sent back with an enrollment
type ServerInfoResponseNet struct {
	// CAName is a unique name associated with fabric-ca-server's CA
	CAName string
	// Base64 encoding of PEM-encoded certificate chain
	CAChain string
	// Version of the server
	Version string
}
