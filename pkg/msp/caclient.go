/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package msp enrolls principals with a Fabric CA. The private key is
// generated locally and never leaves the process except inside the returned
// identity.
package msp

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	cfsslapi "github.com/cloudflare/cfssl/api"
	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/mitchellh/mapstructure"
	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	commtls "github.com/nbrb/fabric-enroll/pkg/core/config/comm/tls"
	"github.com/nbrb/fabric-enroll/pkg/msp/api"
	"github.com/nbrb/fabric-enroll/pkg/wallet"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("enroll/msp")

const (
	// DefaultTimeout bounds a single enrollment call
	DefaultTimeout = 10 * time.Second

	enrollEndpoint = "api/v1/enroll"
)

// CAClient talks to the enroll endpoint of a Fabric CA
type CAClient struct {
	timeout    time.Duration
	httpClient *http.Client
}

// NewCAClient creates a CA client
func NewCAClient(opts ...Option) *CAClient {
	c := &CAClient{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enroll a registered principal in order to receive a signed X509 certificate.
// A new key pair is generated for the principal; the key and the certificate
// issued by the CA are returned together as a wallet identity.
// Failures carry a *status.Status:
//  FabricCAServerStatus/AuthenticationFailed - the CA refused the credentials or request
//  HTTPTransportStatus/ConnectionFailed or Timeout - the CA could not be reached
//  FabricCAServerStatus/MalformedResponse - the answer cannot be turned into an identity
//  ClientStatus/InvalidArgument - the request or endpoint is incomplete
func (c *CAClient) Enroll(ctx context.Context, endpoint *api.CAEndpoint, req *api.EnrollmentRequest) (*wallet.X509Identity, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, invalidArgument(err)
	}
	if err := req.Validate(); err != nil {
		return nil, invalidArgument(err)
	}

	logger.Debugf("Enrolling %s with CA [%s]", req, endpoint.ID)

	httpClient, err := c.client(endpoint)
	if err != nil {
		return nil, err
	}

	csrPEM, key, err := genCSR(req)
	if err != nil {
		return nil, status.New(status.ClientStatus, status.Unknown.ToInt32(), "Failure generating CSR: "+err.Error(), []interface{}{err})
	}

	reqNet := &api.EnrollmentRequestNet{
		Request:  string(csrPEM),
		Profile:  req.Profile,
		Label:    req.Label,
		CAName:   endpoint.CAName,
		AttrReqs: req.AttrReqs,
	}
	if req.CSR != nil {
		reqNet.Hosts = req.CSR.Hosts
	}
	body, err := json.Marshal(reqNet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal enrollment request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	curl := strings.TrimRight(endpoint.URL, "/") + "/" + enrollEndpoint
	post, err := http.NewRequestWithContext(ctx, http.MethodPost, curl, bytes.NewReader(body))
	if err != nil {
		return nil, invalidArgument(errors.Wrapf(err, "Failed posting to %s", curl))
	}
	post.Header.Set("Content-Type", "application/json")
	post.SetBasicAuth(req.Name, req.Secret)

	var result api.EnrollmentResponseNet
	if err := sendReq(ctx, httpClient, post, &result); err != nil {
		return nil, err
	}

	return newIdentity(req, key, &result)
}

// client returns the HTTP client for endpoint. A client given with
// WithHTTPClient is used as is.
func (c *CAClient) client(endpoint *api.CAEndpoint) (*http.Client, error) {
	if !endpoint.IsTLSEnabled() {
		logger.Warnf("CA [%s] is reached over plain HTTP: the enrollment secret and the issued identity are not encrypted in transit", endpoint.ID)
	}
	if c.httpClient != nil {
		return c.httpClient, nil
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: c.timeout,
	}
	if endpoint.IsTLSEnabled() {
		tlsConfig, err := tlsConfig(endpoint)
		if err != nil {
			return nil, invalidArgument(err)
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &http.Client{Transport: transport}, nil
}

// tlsConfig trusts the endpoint's roots, falling back to the system pool
// when the profile lists none
func tlsConfig(endpoint *api.CAEndpoint) (*tls.Config, error) {
	if !endpoint.Verify {
		logger.Warnf("TLS certificate verification is disabled for CA [%s]", endpoint.ID)
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil // nolint: gosec
	}

	pool, err := commtls.NewCertPool(len(endpoint.TLSCACerts) == 0)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create cert pool")
	}
	for _, pemCerts := range endpoint.TLSCACerts {
		if err := pool.AddPEM(pemCerts); err != nil {
			return nil, errors.WithMessagef(err, "invalid tlsCACerts for CA [%s]", endpoint.ID)
		}
	}
	roots, err := pool.Get()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build cert pool")
	}
	return &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}, nil
}

// genCSR generates an ECDSA P-256 key and a CSR for it whose CN is the
// enrollment ID
func genCSR(req *api.EnrollmentRequest) ([]byte, *ecdsa.PrivateKey, error) {
	cr := &csr.CertificateRequest{CN: req.Name}
	if req.CSR != nil && req.CSR.CN != "" {
		cr.CN = req.CSR.CN
	}
	if req.CSR != nil && req.CSR.Hosts != nil {
		cr.Hosts = req.CSR.Hosts
	} else {
		// Default requested hosts are local hostname
		hostname, _ := os.Hostname()
		if hostname != "" {
			cr.Hosts = []string{hostname}
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed generating ECDSA key")
	}

	csrPEM, err := csr.Generate(key, cr)
	if err != nil {
		logger.Debugf("failed generating CSR: %s", err)
		return nil, nil, err
	}
	return csrPEM, key, nil
}

// sendReq sends a request to the fabric-ca-server and fills in the result
func sendReq(ctx context.Context, httpClient *http.Client, req *http.Request, result interface{}) error {
	logger.Debugf("Sending %s request to %s", req.Method, req.URL)

	resp, err := httpClient.Do(req)
	if err != nil {
		return transportError(ctx, errors.Wrapf(err, "%s failure of request to %s", req.Method, req.URL))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Debugf("Failed to close the response body: %s", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, errors.Wrap(err, "Failed to read response"))
	}

	scode := resp.StatusCode
	if scode >= http.StatusInternalServerError || scode == http.StatusTooManyRequests {
		return status.New(status.HTTPTransportStatus, status.ConnectionFailed.ToInt32(),
			fmt.Sprintf("Failed with server status code %d: %s", scode, serverMessage(scode, respBody)), []interface{}{scode})
	}
	if scode == http.StatusUnauthorized || scode == http.StatusForbidden {
		return caRefused(scode, serverMessage(scode, respBody))
	}

	var body *cfsslapi.Response
	if len(respBody) > 0 {
		body = new(cfsslapi.Response)
		if err := json.Unmarshal(respBody, body); err != nil {
			return malformed(errors.Wrapf(err, "Failed to parse response (status code %d)", scode))
		}
		if len(body.Errors) > 0 {
			return caRefused(scode, errorMessages(body.Errors))
		}
	}
	if scode >= http.StatusBadRequest {
		return malformed(errors.Errorf("Failed with server status code %d and no error details", scode))
	}
	if body == nil {
		return malformed(errors.New("Empty response body"))
	}
	if !body.Success {
		return malformed(errors.New("Server returned failure without error details"))
	}
	if err := mapstructure.Decode(body.Result, result); err != nil {
		return malformed(errors.Wrap(err, "Invalid response format from server"))
	}
	return nil
}

func newIdentity(req *api.EnrollmentRequest, key *ecdsa.PrivateKey, result *api.EnrollmentResponseNet) (*wallet.X509Identity, error) {
	certPEM, err := base64.StdEncoding.DecodeString(result.Cert)
	if err != nil {
		return nil, malformed(errors.Wrap(err, "Invalid response format from server"))
	}
	cert, err := helpers.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, malformed(errors.Wrap(err, "CA returned an invalid certificate"))
	}
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, malformed(errors.New("certificate public key does not match the generated key"))
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal private key")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	logServerInfo(&result.ServerInfo)
	logger.Debugf("Enrolled [%s], certificate serial %s expires %s", req.Name, cert.SerialNumber, cert.NotAfter.Format(time.RFC3339))

	return wallet.NewX509Identity(req.MSPID, certPEM, keyPEM), nil
}

func logServerInfo(info *api.ServerInfoResponseNet) {
	chain, err := base64.StdEncoding.DecodeString(info.CAChain)
	if err != nil {
		logger.Debugf("CA [%s] sent an undecodable chain: %s", info.CAName, err)
		return
	}
	certs, err := helpers.ParseCertificatesPEM(chain)
	if err != nil {
		logger.Debugf("CA [%s] sent an unparseable chain: %s", info.CAName, err)
		return
	}
	logger.Debugf("Certificate issued by CA [%s] (version %s, chain of %d)", info.CAName, info.Version, len(certs))
}

func serverMessage(scode int, body []byte) string {
	resp := new(cfsslapi.Response)
	if err := json.Unmarshal(body, resp); err == nil && len(resp.Errors) > 0 {
		return errorMessages(resp.Errors)
	}
	return http.StatusText(scode)
}

func errorMessages(msgs []cfsslapi.ResponseMessage) string {
	var parts []string
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("Error Code: %d - %s", m.Code, m.Message))
	}
	return "Response from server: " + strings.Join(parts, "; ")
}

func caRefused(scode int, msg string) error {
	return status.New(status.FabricCAServerStatus, status.AuthenticationFailed.ToInt32(),
		fmt.Sprintf("enrollment refused (status code %d): %s", scode, msg), []interface{}{scode})
}

func malformed(err error) error {
	return status.New(status.FabricCAServerStatus, status.MalformedResponse.ToInt32(), err.Error(), []interface{}{err})
}

func invalidArgument(err error) error {
	return status.New(status.ClientStatus, status.InvalidArgument.ToInt32(), err.Error(), []interface{}{err})
}

func transportError(ctx context.Context, err error) error {
	code := status.ConnectionFailed
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = status.Timeout
	}
	return status.New(status.HTTPTransportStatus, code.ToInt32(), err.Error(), []interface{}{err})
}
