/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	defaultVaultMount   = "secret"
	vaultContentField   = "content"
	vaultCASMismatchMsg = "check-and-set parameter did not match"
)

// VaultWalletStore stores identity information in a HashiCorp Vault KV
// version 2 secrets engine, one secret per label.
// Instances are created using NewVaultWallet()
type VaultWalletStore struct {
	mount  string
	path   string
	client *api.Logical
}

// VaultOption configures a Vault wallet
type VaultOption func(*VaultWalletStore)

// WithVaultMount sets the mount path of the KV v2 engine (default "secret")
func WithVaultMount(mount string) VaultOption {
	return func(s *VaultWalletStore) {
		if mount != "" {
			s.mount = strings.Trim(mount, "/")
		}
	}
}

// NewVaultWallet creates an instance of a wallet, backed by key/values in Vault
func NewVaultWallet(path, token string, vaultConfig *api.Config, opts ...VaultOption) (*Wallet, error) {
	if path == "" {
		return nil, errors.New("vault path is empty")
	}
	if token == "" {
		return nil, errors.New("token is empty")
	}
	if vaultConfig == nil {
		vaultConfig = &api.Config{Address: "http://localhost:8200"}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.Wrap(err, "can't create Vault client")
	}

	client.SetToken(token)

	store := &VaultWalletStore{
		mount:  defaultVaultMount,
		path:   strings.Trim(path, "/"),
		client: client.Logical(),
	}
	for _, opt := range opts {
		opt(store)
	}

	return NewWalletWithStore(store), nil
}

func (s *VaultWalletStore) dataPath(label string) string {
	return path.Join(s.mount, "data", s.path, label)
}

func (s *VaultWalletStore) metadataPath(label string) string {
	return path.Join(s.mount, "metadata", s.path, label)
}

// Put an identity into the wallet. The write is a check-and-set against the
// version read beforehand: 0 for a new secret, or the latest version when it
// was deleted. Vault rejects it once another writer got in first.
func (s *VaultWalletStore) Put(label string, content []byte) error {
	current, err := s.read(label)
	if err != nil {
		return err
	}
	if current.live() {
		return ErrIdentityExists
	}

	secretData := map[string]interface{}{
		"options": map[string]interface{}{
			"cas": current.version,
		},
		"data": map[string]interface{}{
			vaultContentField: string(content),
		},
	}

	_, err = s.client.WriteWithContext(context.Background(), s.dataPath(label), secretData)
	if err != nil {
		if isCASMismatch(err) {
			return ErrIdentityExists
		}
		return errors.Wrap(err, "can't write value to Vault")
	}
	return nil
}

// Get an identity from the wallet.
func (s *VaultWalletStore) Get(label string) ([]byte, error) {
	current, err := s.read(label)
	if err != nil {
		return nil, err
	}
	if !current.live() {
		return nil, ErrIdentityNotFound
	}

	content, ok := current.data[vaultContentField].(string)
	if !ok {
		return nil, errors.Errorf("Vault secret %s has no %s field", s.dataPath(label), vaultContentField)
	}
	return []byte(content), nil
}

// vaultSecret is the latest version of a KV v2 secret. A deleted or destroyed
// version keeps its number but has no data.
type vaultSecret struct {
	data    map[string]interface{}
	version int
}

func (v *vaultSecret) live() bool {
	return v.data != nil
}

// read returns the latest version of the secret. Vault answers 404 both for
// a missing secret and for a deleted latest version; only the latter carries
// metadata.
func (s *VaultWalletStore) read(label string) (*vaultSecret, error) {
	secret, err := s.client.ReadWithContext(context.Background(), s.dataPath(label))
	if err != nil {
		return nil, errors.Wrap(err, "can't read value from Vault")
	}
	current := &vaultSecret{}
	if secret == nil || secret.Data == nil {
		return current, nil
	}

	if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
		version, err := cast.ToIntE(metadata["version"])
		if err != nil {
			return nil, errors.Wrapf(err, "Vault secret %s has an invalid version", s.dataPath(label))
		}
		current.version = version
		if deleted, _ := metadata["deletion_time"].(string); deleted != "" {
			return current, nil
		}
		if destroyed, _ := metadata["destroyed"].(bool); destroyed {
			return current, nil
		}
	}
	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		current.data = data
	}
	return current, nil
}

// Remove an identity from the wallet, including all of its versions.
// If the identity does not exist, this method does nothing.
func (s *VaultWalletStore) Remove(label string) error {
	if _, err := s.client.DeleteWithContext(context.Background(), s.metadataPath(label)); err != nil {
		return errors.Wrap(err, "can't delete value from Vault")
	}
	return nil
}

// Exists tests the existence of an identity in the wallet.
func (s *VaultWalletStore) Exists(label string) (bool, error) {
	current, err := s.read(label)
	if err != nil {
		return false, err
	}
	return current.live(), nil
}

// List all of the labels in the wallet.
func (s *VaultWalletStore) List() ([]string, error) {
	secret, err := s.client.ListWithContext(context.Background(), path.Join(s.mount, "metadata", s.path))
	if err != nil {
		return nil, errors.Wrap(err, "can't list values from Vault")
	}
	labels := []string{}
	if secret == nil || secret.Data == nil {
		return labels, nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, errors.New("can't cast keys from Vault to an array")
	}

	for _, keyvalue := range keys {
		keyvalueStr, ok := keyvalue.(string)
		if !ok {
			return nil, errors.New("can't cast value from Vault to string")
		}
		// sub folders are not identities
		if strings.HasSuffix(keyvalueStr, "/") {
			continue
		}
		// metadata outlives a deleted latest version
		current, err := s.read(keyvalueStr)
		if err != nil {
			return nil, err
		}
		if current.live() {
			labels = append(labels, keyvalueStr)
		}
	}
	return labels, nil
}

func isCASMismatch(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, e := range respErr.Errors {
		if strings.Contains(e, vaultCASMismatchMsg) {
			return true
		}
	}
	return false
}
