/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"context"
	"path/filepath"

	"github.com/nbrb/fabric-enroll/pkg/common/providers/core"
	"github.com/nbrb/fabric-enroll/pkg/keyvaluestore"
	"github.com/pkg/errors"
)

const dataFileExtension string = ".id"

// fileSystemWalletStore stores identity information used to connect to a Hyperledger Fabric network.
// Instances are created using NewFileSystemWallet()
type fileSystemWalletStore struct {
	store *keyvaluestore.FileKeyValueStore
}

// NewFileSystemWallet creates an instance of a wallet, backed by files on the filesystem.
// Each identity is held in <path>/<label>.id. The directory is created on first write.
//  Parameters:
//  path specifies where on the filesystem to store the wallet.
//
//  Returns:
//  A Wallet object.
func NewFileSystemWallet(path string) (*Wallet, error) {
	if path == "" {
		return nil, errors.New("wallet path is empty")
	}
	store, err := keyvaluestore.New(&keyvaluestore.FileKeyValueStoreOptions{
		Path:   filepath.Clean(path),
		Suffix: dataFileExtension,
	})
	if err != nil {
		return nil, err
	}

	return NewWalletWithStore(&fileSystemWalletStore{store}), nil
}

// Put an identity into the wallet.
func (fsw *fileSystemWalletStore) Put(label string, content []byte) error {
	err := fsw.store.StoreNew(label, content)
	if err == core.ErrKeyValueExists {
		return ErrIdentityExists
	}
	return err
}

// Get an identity from the wallet.
func (fsw *fileSystemWalletStore) Get(label string) ([]byte, error) {
	content, err := fsw.store.Load(label)
	if err == core.ErrKeyValueNotFound {
		return nil, ErrIdentityNotFound
	}
	return content, err
}

// Remove an identity from the wallet. If the identity does not exist, this method does nothing.
func (fsw *fileSystemWalletStore) Remove(label string) error {
	return fsw.store.Delete(label)
}

// Exists tests the existence of an identity in the wallet.
func (fsw *fileSystemWalletStore) Exists(label string) (bool, error) {
	_, err := fsw.store.Load(label)
	switch err {
	case nil:
		return true, nil
	case core.ErrKeyValueNotFound:
		return false, nil
	default:
		return false, err
	}
}

// List all of the labels in the wallet.
func (fsw *fileSystemWalletStore) List() ([]string, error) {
	return fsw.store.Keys()
}

// Lock takes the per-label file lock.
func (fsw *fileSystemWalletStore) Lock(ctx context.Context, label string) (func(), error) {
	return fsw.store.Lock(ctx, label)
}
