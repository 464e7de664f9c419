/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"net/url"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/nbrb/fabric-enroll/pkg/util/pathvar"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// VaultTokenEnv is the environment variable holding the token for vault:// wallets
const VaultTokenEnv = "VAULT_TOKEN"

// Open creates a wallet from a location URI.
//
// Supported forms:
//   - /path/to/wallet or file:///path/to/wallet - filesystem wallet
//   - mem:// - in-memory wallet
//   - vault://host:8200/<mount>/<path>[?scheme=http] - Vault KV v2, token from VAULT_TOKEN
//   - s3://[key:secret@]bucket/<prefix>[?region=..&endpoint=..&path_style=true] - S3 wallet
func Open(location string) (*Wallet, error) {
	if location == "" {
		return nil, errors.New("wallet location is empty")
	}
	if !strings.Contains(location, "://") {
		return NewFileSystemWallet(pathvar.Subst(location))
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid wallet location %q", location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileSystemWallet(pathvar.Subst(u.Host + u.Path))
	case "mem":
		return NewInMemoryWallet(), nil
	case "vault":
		return openVault(u)
	case "s3":
		return openS3(u)
	default:
		return nil, errors.Errorf("unsupported wallet scheme: %s", u.Scheme)
	}
}

func openVault(u *url.URL) (*Wallet, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, errors.Errorf("vault wallet location must be vault://host/<mount>/<path>: %s", u.Redacted())
	}

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}

	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, errors.Wrap(config.Error, "can't read Vault configuration")
	}
	config.Address = scheme + "://" + u.Host

	return NewVaultWallet(parts[1], os.Getenv(VaultTokenEnv), config, WithVaultMount(parts[0]))
}

func openS3(u *url.URL) (*Wallet, error) {
	q := u.Query()
	opts := S3Options{
		Bucket:    u.Host,
		Prefix:    strings.Trim(u.Path, "/"),
		Region:    q.Get("region"),
		Endpoint:  q.Get("endpoint"),
		PathStyle: cast.ToBool(q.Get("path_style")),
	}
	if u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
	}
	return NewS3Wallet(opts)
}
