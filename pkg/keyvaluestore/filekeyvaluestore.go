/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package keyvaluestore stores each value in its own file. Values are written
// once: a new value is staged in a temporary file, synced, and hard linked to
// its final name, so readers never observe a partial value and a concurrent
// writer of the same key loses with core.ErrKeyValueExists.
package keyvaluestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/nbrb/fabric-enroll/pkg/common/providers/core"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("enroll/wallet")

const (
	newDirMode  = 0700
	newFileMode = 0600

	tempPrefix     = ".tmp-"
	lockSuffix     = ".lock"
	lockRetryDelay = 50 * time.Millisecond
)

// FileKeyValueStore stores each value into a separate file named
// <key><suffix> under the store path.
type FileKeyValueStore struct {
	path   string
	suffix string
}

// FileKeyValueStoreOptions allow overriding store defaults
type FileKeyValueStoreOptions struct {
	// Store path, mandatory
	Path string
	// Optional. File name suffix appended to every key, e.g. ".id"
	Suffix string
}

// New creates a new instance of FileKeyValueStore using provided options
func New(opts *FileKeyValueStoreOptions) (*FileKeyValueStore, error) {
	if opts == nil {
		return nil, errors.New("FileKeyValueStoreOptions is nil")
	}
	if opts.Path == "" {
		return nil, errors.New("FileKeyValueStore path is empty")
	}
	return &FileKeyValueStore{
		path:   opts.Path,
		suffix: opts.Suffix,
	}, nil
}

// GetPath returns the store path
func (fkvs *FileKeyValueStore) GetPath() string {
	return fkvs.path
}

func (fkvs *FileKeyValueStore) file(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return "", errors.Errorf("invalid key [%s]", key)
	}
	return filepath.Join(fkvs.path, key+fkvs.suffix), nil
}

// Load returns the value stored in the store for a key.
// If a value for the key was not found, returns (nil, ErrKeyValueNotFound)
func (fkvs *FileKeyValueStore) Load(key string) ([]byte, error) {
	file, err := fkvs.file(key)
	if err != nil {
		return nil, err
	}
	bytes, err := os.ReadFile(file) // nolint: gas
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrKeyValueNotFound
		}
		return nil, errors.Wrapf(err, "reading %s failed", file)
	}
	return bytes, nil
}

// StoreNew sets the value for the key unless a value is already stored.
func (fkvs *FileKeyValueStore) StoreNew(key string, value []byte) error {
	if value == nil {
		return errors.New("value is nil")
	}
	file, err := fkvs.file(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(fkvs.path, newDirMode); err != nil {
		return errors.Wrapf(err, "creating store directory %s failed", fkvs.path)
	}

	tmp, err := fkvs.writeTemp(value)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warnf("removing temp file %s failed: %s", tmp, rmErr)
		}
	}()

	// link fails if the destination exists, which makes the write exclusive
	if err = os.Link(tmp, file); err != nil {
		if os.IsExist(err) {
			return core.ErrKeyValueExists
		}
		return errors.Wrapf(err, "publishing %s failed", file)
	}
	syncDir(fkvs.path)
	return nil
}

func (fkvs *FileKeyValueStore) writeTemp(value []byte) (string, error) {
	tmp := filepath.Join(fkvs.path, tempPrefix+uuid.New().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, newFileMode) // nolint: gas
	if err != nil {
		return "", errors.Wrap(err, "creating temp file failed")
	}
	_, err = f.Write(value)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp) // nolint: errcheck
		return "", errors.Wrap(err, "writing temp file failed")
	}
	return tmp, nil
}

// Delete deletes the value for a key.
func (fkvs *FileKeyValueStore) Delete(key string) error {
	file, err := fkvs.file(key)
	if err != nil {
		return err
	}
	err = os.Remove(file)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s failed", file)
	}
	return nil
}

// Keys returns the keys of all stored values. A missing store directory
// holds no keys.
func (fkvs *FileKeyValueStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(fkvs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "listing %s failed", fkvs.path)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fkvs.suffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fkvs.suffix))
	}
	return keys, nil
}

// Lock takes an exclusive advisory lock on the key, shared with other
// processes using the same store path. It waits until the lock is free or ctx is done.
func (fkvs *FileKeyValueStore) Lock(ctx context.Context, key string) (func(), error) {
	if _, err := fkvs.file(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(fkvs.path, newDirMode); err != nil {
		return nil, errors.Wrapf(err, "creating store directory %s failed", fkvs.path)
	}

	fileLock := flock.New(filepath.Join(fkvs.path, "."+key+lockSuffix))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, errors.Wrapf(err, "locking [%s] failed", key)
	}
	if !locked {
		return nil, errors.Errorf("locking [%s] failed", key)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			logger.Warnf("unlocking [%s] failed: %s", key, err)
		}
	}, nil
}

func syncDir(path string) {
	d, err := os.Open(path) // nolint: gas
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		logger.Debugf("syncing directory %s failed: %s", path, err)
	}
}
