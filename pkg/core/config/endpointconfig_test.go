/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadOrg2(t *testing.T) *EndpointConfig {
	ec, err := ConfigFromProvider(FromFile(configTestFilePath))
	require.NoError(t, err)
	return ec
}

func TestClientOrganization(t *testing.T) {
	ec := loadOrg2(t)

	assert.Equal(t, "Org2", ec.Client().Organization)

	org, err := ec.ClientOrganization()
	require.NoError(t, err)
	assert.Equal(t, "Org2MSP", org.MSPID)
	assert.Equal(t, []string{"ca.org2.example.com"}, org.CertificateAuthorities)
	assert.Equal(t, []string{"peer0.org2.example.com"}, org.Peers)

	_, err = ec.Organization("ORG2")
	assert.NoError(t, err, "organization lookup is case insensitive")

	_, err = ec.Organization("Org9")
	assert.Error(t, err)

	id, err := ec.DefaultCAID()
	require.NoError(t, err)
	assert.Equal(t, "ca.org2.example.com", id)
}

func TestCAEndpoint(t *testing.T) {
	ec := loadOrg2(t)

	endpoint, err := ec.CAEndpoint("ca.org2.example.com")
	require.NoError(t, err)
	assert.Equal(t, "ca.org2.example.com", endpoint.ID)
	assert.Equal(t, "https://localhost:8054", endpoint.URL)
	assert.Equal(t, "ca-org2", endpoint.CAName)
	assert.False(t, endpoint.Verify, "httpOptions.verify: false is honored")
	require.Len(t, endpoint.TLSCACerts, 1)

	block, _ := pem.Decode(endpoint.TLSCACerts[0])
	require.NotNil(t, block, "tlsCACerts.pem must be a PEM")
	assert.Equal(t, "CERTIFICATE", block.Type)

	_, err = ec.CAEndpoint("ca.org3.example.com")
	assert.Error(t, err)
}

func TestCAEndpointMissingCertFile(t *testing.T) {
	ec := loadOrg2(t)

	_, err := ec.CAEndpoint("ca.org2.nopem.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load server certs")
}

func TestCAEndpointFromJSONWithSinglePEM(t *testing.T) {
	ec, err := ConfigFromProvider(FromFile(jsonTestFilePath))
	require.NoError(t, err)

	org, err := ec.ClientOrganization()
	require.NoError(t, err)
	assert.Equal(t, "Org1MSP", org.MSPID)

	endpoint, err := ec.CAEndpoint("ca.org1.example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7054", endpoint.URL)
	assert.True(t, endpoint.Verify, "verification defaults to on")
	require.Len(t, endpoint.TLSCACerts, 1)
	assert.Contains(t, string(endpoint.TLSCACerts[0]), "BEGIN CERTIFICATE")

	assert.Equal(t, defaultEnrollmentTimeout, ec.EnrollmentTimeout())
	assert.Equal(t, 0, ec.EnrollmentRetries())
}

func TestCAEndpointDefaultsAndPaths(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "tlsca.pem")
	require.NoError(t, os.WriteFile(certPath, []byte("-----BEGIN CERTIFICATE-----\nMA==\n-----END CERTIFICATE-----\n"), 0600))

	raw := `
client:
  organization: Org2
organizations:
  org2:
    mspid: Org2MSP
certificateAuthorities:
  ca.org2.example.com:
    tlsCACerts:
      path: ` + certPath + `
    httpOptions:
      verify: "not-a-bool"
`
	ec, err := ConfigFromProvider(FromRaw([]byte(raw), configType))
	require.NoError(t, err)

	endpoint, err := ec.CAEndpoint("ca.org2.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://ca.org2.example.com:7054", endpoint.URL)
	assert.True(t, endpoint.Verify)
	require.Len(t, endpoint.TLSCACerts, 1)

	_, err = ec.DefaultCAID()
	assert.Error(t, err, "org2 lists no certificate authorities")
}

func TestCredentialStorePath(t *testing.T) {
	t.Setenv("FABRIC_ENROLL_TEST_HOME", "/tmp/enroll")
	ec := loadOrg2(t)
	assert.Equal(t, "/tmp/enroll/identity/wallet", ec.CredentialStorePath())
	assert.Equal(t, 15*time.Second, ec.EnrollmentTimeout())
	assert.Equal(t, 2, ec.EnrollmentRetries())
}

func TestClientOrganizationMissing(t *testing.T) {
	ec, err := ConfigFromProvider(FromRaw([]byte("name: empty\n"), configType))
	require.NoError(t, err)

	_, err = ec.ClientOrganization()
	assert.Error(t, err)
	_, err = ec.DefaultCAID()
	assert.Error(t, err)
}
