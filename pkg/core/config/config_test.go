/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	configType = "yaml"
)

var (
	configTestFilePath = filepath.Join("testdata", "connection-org2.yaml")
	jsonTestFilePath   = filepath.Join("testdata", "connection-org1.json")
)

func TestFromRawSuccess(t *testing.T) {
	cBytes, err := os.ReadFile(configTestFilePath)
	require.NoError(t, err)

	backends, err := FromRaw(cBytes, configType)()
	require.NoError(t, err, "Failed to initialize config from bytes array")
	require.Len(t, backends, 1)

	v, ok := backends[0].Lookup("client.organization")
	assert.True(t, ok)
	assert.Equal(t, "Org2", v)
}

func TestFromReaderSuccess(t *testing.T) {
	cBytes, err := os.ReadFile(configTestFilePath)
	require.NoError(t, err)

	_, err = FromReader(bytes.NewBuffer(cBytes), configType)()
	require.NoError(t, err, "Failed to initialize config from reader")
}

func TestFromRawErrors(t *testing.T) {
	_, err := FromRaw([]byte("client: {}"), "")()
	assert.Error(t, err, "config type is required")

	_, err = FromRaw([]byte("client: [unclosed"), configType)()
	assert.Error(t, err)

	_, err = FromRaw([]byte("client: {}"), configType, WithEnvPrefix(""))()
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	_, err := FromFile("")()
	assert.Error(t, err, "filename is required")

	_, err = FromFile(filepath.Join("testdata", "notthere.yaml"))()
	assert.Error(t, err)

	backends, err := FromFile(jsonTestFilePath)()
	require.NoError(t, err)
	v, ok := backends[0].Lookup("organizations.org1.mspid")
	assert.True(t, ok)
	assert.Equal(t, "Org1MSP", v)

	_, ok = backends[0].Lookup("no.such.key")
	assert.False(t, ok)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FABRIC_ENROLL_CLIENT_ENROLLMENT_TIMEOUT", "42s")
	t.Setenv("FABRIC_ENROLL_CLIENT_ENROLLMENT_RETRIES", "5")
	ec, err := ConfigFromProvider(FromFile(configTestFilePath))
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, ec.EnrollmentTimeout())
	assert.Equal(t, 5, ec.EnrollmentRetries())

	t.Setenv("CUSTOM_CLIENT_ENROLLMENT_TIMEOUT", "7s")
	ec, err = ConfigFromProvider(FromFile(configTestFilePath, WithEnvPrefix("CUSTOM")))
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, ec.EnrollmentTimeout())
}

func TestLogLevelFromConfig(t *testing.T) {
	defer logging.SetLevel("enroll/msp", logging.INFO)

	_, err := FromRaw([]byte("client:\n  logging:\n    level: debug\n"), configType)()
	require.NoError(t, err)
	assert.Equal(t, logging.DEBUG, logging.GetLevel("enroll/msp"))
	assert.Equal(t, logging.DEBUG, logging.GetLevel("enroll/wallet"))

	_, err = FromRaw([]byte("client:\n  logging:\n    level: loud\n"), configType)()
	assert.Error(t, err)
}
