/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package wallet stores the identities used to connect to a Hyperledger Fabric
// network. A label holds at most one identity and is never overwritten: Put on
// an existing label fails with ErrIdentityExists.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("enroll/wallet")

var (
	// ErrInvalidLabel is returned for labels that cannot name an identity
	ErrInvalidLabel = errors.New("invalid identity label")

	// ErrIdentityNotFound is returned by Get when the label holds no identity
	ErrIdentityNotFound = errors.New("identity not found in wallet")

	// ErrIdentityExists is returned by Put when the label already holds an identity
	ErrIdentityExists = errors.New("identity already exists in wallet")
)

// WalletStore is the storage medium behind a Wallet. Implementations deal in
// the serialized identity only. Put must be atomic and must fail with
// ErrIdentityExists rather than replace stored content; Get must return
// ErrIdentityNotFound for a missing label.
type WalletStore interface {
	Put(label string, content []byte) error
	Get(label string) ([]byte, error)
	Remove(label string) error
	Exists(label string) (bool, error)
	List() ([]string, error)
}

// Locker is implemented by stores that can serialize work on one label
// across processes.
type Locker interface {
	Lock(ctx context.Context, label string) (unlock func(), err error)
}

// A Wallet stores identity information used to connect to a Hyperledger Fabric network.
// Instances are created using factory methods on the implementing objects.
type Wallet struct {
	store WalletStore
}

// NewWalletWithStore wraps a custom store in a Wallet
func NewWalletWithStore(store WalletStore) *Wallet {
	return &Wallet{store: store}
}

// ValidateLabel checks that label can be used as an identity name in any store.
func ValidateLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.HasPrefix(label, ".") ||
		strings.ContainsAny(label, `/\`) || strings.ContainsRune(label, 0) {
		return errors.Wrapf(ErrInvalidLabel, "%q", label)
	}
	return nil
}

// Put an identity into the wallet
//  Parameters:
//  label specifies the name to be associated with the identity.
//  id specifies the identity to store in the wallet.
//
func (w *Wallet) Put(label string, id Identity) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	if id == nil {
		return errors.New("identity is required")
	}
	content, err := id.toJSON()
	if err != nil {
		return errors.Wrap(err, "serializing identity failed")
	}

	if err := w.store.Put(label, content); err != nil {
		if errors.Cause(err) == ErrIdentityExists {
			return ErrIdentityExists
		}
		return storeUnavailable("put", label, err)
	}
	logger.Debugf("Stored identity [%s] of type [%s]", label, id.idType())
	return nil
}

// Get an identity from the wallet. The implementation class of the identity object will vary depending on its type.
//  Parameters:
//  label specifies the name of the identity in the wallet.
//
//  Returns:
//  The identity object.
func (w *Wallet) Get(label string) (Identity, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	content, err := w.store.Get(label)
	if err != nil {
		if errors.Cause(err) == ErrIdentityNotFound {
			return nil, ErrIdentityNotFound
		}
		return nil, storeUnavailable("get", label, err)
	}

	return decodeIdentity(content)
}

func decodeIdentity(content []byte) (Identity, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, errors.Wrap(err, "Invalid identity format")
	}

	idType, ok := data["type"].(string)

	if !ok {
		return nil, errors.New("Invalid identity format: missing type property")
	}

	var id Identity

	switch idType {
	case x509Type:
		id = &X509Identity{}
	default:
		return nil, errors.New("Invalid identity format: unsupported identity type: " + idType)
	}

	return id.fromJSON(content)
}

// List returns the labels of all identities in the wallet.
//
//  Returns:
//  A list of identity labels in the wallet.
func (w *Wallet) List() ([]string, error) {
	labels, err := w.store.List()
	if err != nil {
		return nil, storeUnavailable("list", "", err)
	}
	return labels, nil
}

// Exists tests whether the wallet contains an identity for the given label.
// An absent identity is (false, nil); an error means the medium could not be read.
//  Parameters:
//  label specifies the name of the identity in the wallet.
//
//  Returns:
//  True if the named identity is in the wallet.
func (w *Wallet) Exists(label string) (bool, error) {
	if err := ValidateLabel(label); err != nil {
		return false, err
	}
	exists, err := w.store.Exists(label)
	if err != nil {
		return false, storeUnavailable("exists", label, err)
	}
	return exists, nil
}

// Remove an identity from the wallet. If the identity does not exist, this method does nothing.
//  Parameters:
//  label specifies the name of the identity in the wallet.
func (w *Wallet) Remove(label string) error {
	if err := ValidateLabel(label); err != nil {
		return err
	}
	if err := w.store.Remove(label); err != nil {
		return storeUnavailable("remove", label, err)
	}
	return nil
}

// Lock serializes work on label when the store supports it. Stores without
// cross-process locking return a no-op unlock.
func (w *Wallet) Lock(ctx context.Context, label string) (func(), error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	locker, ok := w.store.(Locker)
	if !ok {
		return func() {}, nil
	}
	unlock, err := locker.Lock(ctx, label)
	if err != nil {
		return nil, storeUnavailable("lock", label, err)
	}
	return unlock, nil
}

func storeUnavailable(op, label string, err error) error {
	msg := fmt.Sprintf("wallet %s failed: %s", op, err)
	if label != "" {
		msg = fmt.Sprintf("wallet %s [%s] failed: %s", op, label, err)
	}
	return status.New(status.WalletStatus, status.StoreUnavailable.ToInt32(), msg, []interface{}{err})
}
