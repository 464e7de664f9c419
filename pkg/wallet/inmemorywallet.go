/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"context"
	"sync"
)

// inMemoryWalletStore stores identity information in process memory.
// Instances are created using NewInMemoryWallet()
type inMemoryWalletStore struct {
	mutex   sync.RWMutex
	storage map[string][]byte
	locks   map[string]chan struct{}
}

// NewInMemoryWallet creates an instance of a wallet, held in memory.
// This implementation is not backed by a persistent store.
//
//  Returns:
//  A Wallet object.
func NewInMemoryWallet() *Wallet {
	return NewWalletWithStore(&inMemoryWalletStore{
		storage: make(map[string][]byte, 10),
		locks:   make(map[string]chan struct{}),
	})
}

// Put an identity into the wallet.
func (s *inMemoryWalletStore) Put(label string, content []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.storage[label]; ok {
		return ErrIdentityExists
	}
	s.storage[label] = append([]byte(nil), content...)
	return nil
}

// Get an identity from the wallet.
func (s *inMemoryWalletStore) Get(label string) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	content, ok := s.storage[label]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return append([]byte(nil), content...), nil
}

// Remove an identity from the wallet. If the identity does not exist, this method does nothing.
func (s *inMemoryWalletStore) Remove(label string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.storage, label)
	return nil
}

// Exists returns true if the identity is in the wallet.
func (s *inMemoryWalletStore) Exists(label string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.storage[label]
	return ok, nil
}

// List all of the labels in the wallet.
func (s *inMemoryWalletStore) List() ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	labels := make([]string, 0, len(s.storage))
	for label := range s.storage {
		labels = append(labels, label)
	}
	return labels, nil
}

// Lock serializes goroutines working on the same label.
func (s *inMemoryWalletStore) Lock(ctx context.Context, label string) (func(), error) {
	for {
		s.mutex.Lock()
		held, busy := s.locks[label]
		if !busy {
			release := make(chan struct{})
			s.locks[label] = release
			s.mutex.Unlock()
			return func() {
				s.mutex.Lock()
				delete(s.locks, label)
				s.mutex.Unlock()
				close(release)
			}, nil
		}
		s.mutex.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
