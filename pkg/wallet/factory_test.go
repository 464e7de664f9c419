/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileSystem(t *testing.T) {
	dir := t.TempDir()

	for _, location := range []string{
		filepath.Join(dir, "plain"),
		"file://" + filepath.Join(dir, "uri"),
	} {
		wallet, err := Open(location)
		require.NoError(t, err, location)
		require.NoError(t, wallet.Put("yauheni", testIdentity("cert")))
	}

	_, err := os.Stat(filepath.Join(dir, "plain", "yauheni.id"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "uri", "yauheni.id"))
	assert.NoError(t, err)
}

func TestOpenExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WALLET_TEST_ROOT", dir)

	wallet, err := Open("${WALLET_TEST_ROOT}/identity/user/yauheni/wallet")
	require.NoError(t, err)
	require.NoError(t, wallet.Put("yauheni", testIdentity("cert")))

	_, err = os.Stat(filepath.Join(dir, "identity", "user", "yauheni", "wallet", "yauheni.id"))
	assert.NoError(t, err)
}

func TestOpenInMemory(t *testing.T) {
	w1, err := Open("mem://")
	require.NoError(t, err)
	w2, err := Open("mem://")
	require.NoError(t, err)

	require.NoError(t, w1.Put("yauheni", testIdentity("cert")))
	exists, err := w2.Exists("yauheni")
	require.NoError(t, err)
	assert.False(t, exists, "every mem:// wallet is independent")
}

func TestOpenErrors(t *testing.T) {
	tests := []string{
		"",
		"ftp://host/wallet",
		"vault://localhost:8200/secret",
		"s3:///prefix",
		"://broken",
	}
	for _, location := range tests {
		_, err := Open(location)
		assert.Error(t, err, "location %q", location)
	}
}
