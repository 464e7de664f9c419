/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package core

import "github.com/pkg/errors"

var (
	// ErrKeyValueNotFound indicates that a value for the key does not exist
	ErrKeyValueNotFound = errors.New("value for key not found")

	// ErrKeyValueExists indicates that StoreNew found a value already stored for the key
	ErrKeyValueExists = errors.New("value for key already exists")
)

// KVStore is a byte oriented key-value store interface.
type KVStore interface {

	/**
	 * StoreNew sets the value for the key only if no value is stored for it.
	 * Returns ErrKeyValueExists otherwise.
	 */
	StoreNew(key string, value []byte) error

	/**
	 * Load returns the value stored in the store for a key.
	 * If a value for the key was not found, returns (nil, ErrKeyValueNotFound)
	 */
	Load(key string) ([]byte, error)

	/**
	 * Delete deletes the value for a key.
	 */
	Delete(key string) error

	/**
	 * Keys returns the keys of all stored values.
	 */
	Keys() ([]string, error)
}
