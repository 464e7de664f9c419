/*
Copyright 2020 IBM All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package wallet

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"

	"github.com/golang/protobuf/proto"
	pb_msp "github.com/hyperledger/fabric-protos-go/msp"
	"github.com/pkg/errors"
)

const (
	x509Type = "X.509"

	// walletFormatVersion is the version written into every stored identity
	walletFormatVersion = 1
)

// X509Identity represents an X509 identity
type X509Identity struct {
	Version     int         `json:"version"`
	MspID       string      `json:"mspId"`
	IDType      string      `json:"type"`
	Credentials credentials `json:"credentials"`
}

type credentials struct {
	Certificate string `json:"certificate"`
	Key         string `json:"privateKey"`
}

// Type returns X509 for this identity type
func (x *X509Identity) idType() string {
	return x509Type
}

func (x *X509Identity) mspID() string {
	return x.MspID
}

// Certificate returns the X509 certificate PEM
func (x *X509Identity) Certificate() []byte {
	return []byte(x.Credentials.Certificate)
}

// Key returns the PKCS#8 private key PEM
func (x *X509Identity) Key() []byte {
	return []byte(x.Credentials.Key)
}

// NewX509Identity creates an X509 identity for storage in a wallet
func NewX509Identity(mspid string, cert []byte, key []byte) *X509Identity {
	return &X509Identity{walletFormatVersion, mspid, x509Type, credentials{string(cert), string(key)}}
}

// ParseCertificate decodes the enrollment certificate
func (x *X509Identity) ParseCertificate() (*x509.Certificate, error) {
	block, _ := pem.Decode(x.Certificate())
	if block == nil {
		return nil, errors.New("certificate is not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing certificate failed")
	}
	return cert, nil
}

// Serialize returns the identity as a protobuf msp.SerializedIdentity, the
// form Fabric peers expect as a transaction creator.
func (x *X509Identity) Serialize() ([]byte, error) {
	serializedIdentity := &pb_msp.SerializedIdentity{
		Mspid:   x.MspID,
		IdBytes: x.Certificate(),
	}
	identity, err := proto.Marshal(serializedIdentity)
	if err != nil {
		return nil, errors.Wrap(err, "marshal serializedIdentity failed")
	}
	return identity, nil
}

func (x *X509Identity) toJSON() ([]byte, error) {
	if err := x.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(x)
}

func (x *X509Identity) fromJSON(data []byte) (Identity, error) {
	err := json.Unmarshal(data, x)

	if err != nil {
		return nil, errors.Wrap(err, "Invalid identity format")
	}

	if err := x.validate(); err != nil {
		return nil, errors.WithMessage(err, "Invalid identity format")
	}

	return x, nil
}

func (x *X509Identity) validate() error {
	if x.Version != walletFormatVersion {
		return errors.Errorf("unsupported version %d", x.Version)
	}
	if x.IDType != x509Type {
		return errors.Errorf("unexpected type %q", x.IDType)
	}
	if x.MspID == "" {
		return errors.New("missing mspId")
	}
	if x.Credentials.Certificate == "" {
		return errors.New("missing certificate")
	}
	if x.Credentials.Key == "" {
		return errors.New("missing privateKey")
	}
	return nil
}
