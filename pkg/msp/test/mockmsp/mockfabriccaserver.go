/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mockmsp provides an in-process Fabric CA for tests. It signs
// enrollment CSRs with a throwaway CA and can be switched into failure modes.
package mockmsp

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	cfsslapi "github.com/cloudflare/cfssl/api"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/go-chi/chi/v5"
	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/nbrb/fabric-enroll/pkg/msp/api"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var logger = logging.NewLogger("enroll/msp")

// Mode selects how the server answers enrollments
type Mode int32

const (
	// ModeNormal signs valid requests
	ModeNormal Mode = iota
	// ModeServerError answers 500
	ModeServerError
	// ModeBrokenJSON answers 200 with a body that is not JSON
	ModeBrokenJSON
	// ModeFailureNoErrors answers success=false without error details
	ModeFailureNoErrors
	// ModeNoCert answers success without a certificate
	ModeNoCert
	// ModeMismatchedKey certifies a key other than the one in the CSR
	ModeMismatchedKey
	// ModeHang holds the request until the client gives up
	ModeHang
)

const (
	// Fabric CA error codes
	errorCodeAuthFailure  = 20
	errorCodeBadRequest   = 0
	errorCodeCANotFound   = 19
	errorCodeInvalidInput = 22
)

type registration struct {
	secret         string
	maxEnrollments int
	enrollments    int
}

// MockFabricCAServer is a mock for FabricCAServer
type MockFabricCAServer struct {
	server    *httptest.Server
	caName    string
	caKey     *ecdsa.PrivateKey
	caCert    *x509.Certificate
	caCertPEM []byte

	mode        atomic.Int32
	enrollCalls atomic.Int32

	mutex       sync.Mutex
	identities  map[string]*registration
	lastRequest *api.EnrollmentRequestNet
}

// Start creates the CA and starts serving. With useTLS the server presents a
// self-signed certificate, see TLSCACert.
func Start(caName string, useTLS bool) (*MockFabricCAServer, error) {
	s := &MockFabricCAServer{
		caName:     caName,
		identities: make(map[string]*registration),
	}
	if err := s.initCA(); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", s.enroll)
		r.Get("/cainfo", s.cainfo)
	})

	if useTLS {
		s.server = httptest.NewTLSServer(router)
	} else {
		s.server = httptest.NewServer(router)
	}
	logger.Debugf("HTTP Server started on %s", s.server.URL)
	return s, nil
}

// Close stops the server
func (s *MockFabricCAServer) Close() {
	s.server.Close()
}

// URL returns the base URL of the server
func (s *MockFabricCAServer) URL() string {
	return s.server.URL
}

// TLSCACert returns the PEM encoded TLS certificate of the server, or nil
// without TLS
func (s *MockFabricCAServer) TLSCACert() []byte {
	cert := s.server.Certificate()
	if cert == nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// Endpoint returns an endpoint that trusts the server
func (s *MockFabricCAServer) Endpoint(id string) *api.CAEndpoint {
	e := &api.CAEndpoint{ID: id, URL: s.server.URL, CAName: s.caName, Verify: true}
	if tlsCert := s.TLSCACert(); tlsCert != nil {
		e.TLSCACerts = [][]byte{tlsCert}
	}
	return e
}

// CACert returns the certificate that signs enrollment certificates
func (s *MockFabricCAServer) CACert() *x509.Certificate {
	return s.caCert
}

// Register adds an identity. maxEnrollments <= 0 means unlimited.
func (s *MockFabricCAServer) Register(name, secret string, maxEnrollments int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.identities[name] = &registration{secret: secret, maxEnrollments: maxEnrollments}
}

// SetMode switches the answer to subsequent enrollments
func (s *MockFabricCAServer) SetMode(mode Mode) {
	s.mode.Store(int32(mode))
}

// EnrollCalls returns the number of enroll requests received
func (s *MockFabricCAServer) EnrollCalls() int {
	return int(s.enrollCalls.Load())
}

// LastRequest returns the body of the last well formed enroll request
func (s *MockFabricCAServer) LastRequest() *api.EnrollmentRequestNet {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastRequest
}

func (s *MockFabricCAServer) initCA() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return errors.Wrap(err, "failed to generate CA key")
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: s.caName, Organization: []string{"org2.example.com"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return errors.Wrap(err, "failed to self-sign CA certificate")
	}
	s.caKey = key
	s.caCertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	s.caCert, err = helpers.ParseCertificatePEM(s.caCertPEM)
	return err
}

// Enroll user
func (s *MockFabricCAServer) enroll(w http.ResponseWriter, req *http.Request) {
	s.enrollCalls.Inc()

	switch Mode(s.mode.Load()) {
	case ModeServerError:
		sendError(w, http.StatusInternalServerError, errorCodeBadRequest, "Internal error")
		return
	case ModeBrokenJSON:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>not a CA</html>")) // nolint: errcheck
		return
	case ModeFailureNoErrors:
		writeResponse(w, http.StatusOK, &cfsslapi.Response{Success: false, Errors: []cfsslapi.ResponseMessage{}, Messages: []cfsslapi.ResponseMessage{}})
		return
	case ModeHang:
		select {
		case <-req.Context().Done():
		case <-time.After(10 * time.Second):
		}
		return
	}

	name, secret, ok := req.BasicAuth()
	if !ok || !s.authenticate(name, secret) {
		sendError(w, http.StatusUnauthorized, errorCodeAuthFailure, "Authentication failure")
		return
	}

	reqNet := &api.EnrollmentRequestNet{}
	if err := json.NewDecoder(req.Body).Decode(reqNet); err != nil {
		sendError(w, http.StatusBadRequest, errorCodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}
	if reqNet.CAName != "" && reqNet.CAName != s.caName {
		sendError(w, http.StatusBadRequest, errorCodeCANotFound, "CA '"+reqNet.CAName+"' does not exist")
		return
	}

	csr, err := helpers.ParseCSRPEM([]byte(reqNet.Request))
	if err != nil {
		sendError(w, http.StatusBadRequest, errorCodeInvalidInput, "Invalid certificate request: "+err.Error())
		return
	}
	if csr.Subject.CommonName != name {
		sendError(w, http.StatusBadRequest, errorCodeInvalidInput, "The CSR subject common name must equal the enrollment ID")
		return
	}

	s.mutex.Lock()
	s.lastRequest = reqNet
	s.mutex.Unlock()

	resp := &api.EnrollmentResponseNet{}
	if Mode(s.mode.Load()) != ModeNoCert {
		pub := csr.PublicKey
		if Mode(s.mode.Load()) == ModeMismatchedKey {
			other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
			if err != nil {
				sendError(w, http.StatusInternalServerError, errorCodeBadRequest, err.Error())
				return
			}
			pub = &other.PublicKey
		}
		certPEM, err := s.sign(name, reqNet.Hosts, pub)
		if err != nil {
			sendError(w, http.StatusInternalServerError, errorCodeBadRequest, err.Error())
			return
		}
		resp.Cert = base64.StdEncoding.EncodeToString(certPEM)
	}
	s.fillCAInfo(&resp.ServerInfo)

	if err := cfsslapi.SendResponse(w, resp); err != nil {
		logger.Error(err)
	}
}

func (s *MockFabricCAServer) cainfo(w http.ResponseWriter, req *http.Request) {
	resp := &api.ServerInfoResponseNet{}
	s.fillCAInfo(resp)
	if err := cfsslapi.SendResponse(w, resp); err != nil {
		logger.Error(err)
	}
}

// authenticate consumes one enrollment of the identity
func (s *MockFabricCAServer) authenticate(name, secret string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	reg, ok := s.identities[name]
	if !ok || reg.secret != secret {
		return false
	}
	if reg.maxEnrollments > 0 && reg.enrollments >= reg.maxEnrollments {
		return false
	}
	reg.enrollments++
	return true
}

func (s *MockFabricCAServer) sign(cn string, hosts []string, pub interface{}) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, OrganizationalUnit: []string{"client"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		DNSNames:              hosts,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, pub, s.caKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign certificate")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), nil
}

// Fill the CA info structure appropriately
func (s *MockFabricCAServer) fillCAInfo(info *api.ServerInfoResponseNet) {
	info.CAName = s.caName
	info.CAChain = base64.StdEncoding.EncodeToString(s.caCertPEM)
	info.Version = "1.5.7"
}

func sendError(w http.ResponseWriter, code int, caCode int, msg string) {
	writeResponse(w, code, &cfsslapi.Response{
		Success:  false,
		Errors:   []cfsslapi.ResponseMessage{{Code: caCode, Message: msg}},
		Messages: []cfsslapi.ResponseMessage{},
	})
}

func writeResponse(w http.ResponseWriter, code int, resp *cfsslapi.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error(err)
	}
}
