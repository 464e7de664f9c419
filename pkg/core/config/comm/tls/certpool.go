/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package tls

import (
	"crypto/x509"
	"encoding/pem"
	"sync"

	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("enroll/core")

// CertPool is a thread safe wrapper around the x509 standard library
// cert pool implementation.
type CertPool interface {
	// Add queues certificates to be added to the pool on the next Get
	Add(certs ...*x509.Certificate)
	// AddPEM parses every CERTIFICATE block of pemCerts and adds the certificates
	AddPEM(pemCerts []byte) error
	// Get returns the pool holding all added certificates
	Get() (*x509.CertPool, error)
}

// certPool optionally allows loading the system trust store.
type certPool struct {
	useSystemCertPool bool
	certs             []*x509.Certificate
	certPool          *x509.CertPool
	certsByName       map[string][]int
	dirty             bool
	lock              sync.RWMutex
}

// NewCertPool new CertPool implementation
func NewCertPool(useSystemCertPool bool) (CertPool, error) {
	c, err := loadSystemCertPool(useSystemCertPool)
	if err != nil {
		return nil, err
	}

	return &certPool{
		useSystemCertPool: useSystemCertPool,
		certsByName:       make(map[string][]int),
		certPool:          c,
	}, nil
}

func (c *certPool) Add(certs ...*x509.Certificate) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, newCert := range certs {
		if c.addCert(newCert) {
			c.dirty = true
		}
	}
}

func (c *certPool) AddPEM(pemCerts []byte) error {
	var certs []*x509.Certificate
	for len(pemCerts) > 0 {
		var block *pem.Block
		block, pemCerts = pem.Decode(pemCerts)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return errors.Wrap(err, "failed to parse TLS CA certificate")
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return errors.New("no certificates found in TLS CA PEM")
	}

	c.Add(certs...)
	return nil
}

func (c *certPool) Get() (*x509.CertPool, error) {
	c.lock.RLock()
	if !c.dirty {
		defer c.lock.RUnlock()
		return c.certPool, nil
	}
	c.lock.RUnlock()

	// We have a cert we have not encountered before, recreate the cert pool
	certPool, err := loadSystemCertPool(c.useSystemCertPool)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	//add all certs to cert pool
	for _, cert := range c.certs {
		certPool.AddCert(cert)
	}
	c.certPool = certPool
	c.dirty = false

	return c.certPool, nil
}

func (c *certPool) addCert(newCert *x509.Certificate) bool {
	if newCert == nil || c.containsCert(newCert) {
		return false
	}
	n := len(c.certs)
	// Store cert
	c.certs = append(c.certs, newCert)
	// Store cert name index
	name := string(newCert.RawSubject)
	c.certsByName[name] = append(c.certsByName[name], n)
	return true
}

func (c *certPool) containsCert(newCert *x509.Certificate) bool {
	possibilities := c.certsByName[string(newCert.RawSubject)]
	for _, p := range possibilities {
		if c.certs[p].Equal(newCert) {
			return true
		}
	}

	return false
}

func loadSystemCertPool(useSystemCertPool bool) (*x509.CertPool, error) {
	if !useSystemCertPool {
		return x509.NewCertPool(), nil
	}
	systemCertPool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}
	logger.Debugf("Loaded system cert pool")

	return systemCertPool, nil
}
