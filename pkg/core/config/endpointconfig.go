/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/nbrb/fabric-enroll/pkg/common/providers/core"
	"github.com/nbrb/fabric-enroll/pkg/core/config/lookup"
	"github.com/nbrb/fabric-enroll/pkg/msp/api"
	"github.com/nbrb/fabric-enroll/pkg/util/pathvar"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

var logger = logging.NewLogger("enroll/core")

const (
	defaultEnrollmentTimeout  = 10 * time.Second
	defaultCAServerSchema     = "https"
	defaultCAServerListenPort = 7054
)

// ClientConfig is the client section of a connection profile
type ClientConfig struct {
	Organization    string
	Logging         LoggingType
	Enrollment      EnrollmentConfig
	CredentialStore CredentialStoreType
}

// LoggingType defines the level for logging
type LoggingType struct {
	Level string
}

// EnrollmentConfig holds the enrollment settings of the client
type EnrollmentConfig struct {
	Timeout time.Duration
	Retries int
}

// CredentialStoreType defines where the wallet lives
type CredentialStoreType struct {
	Path string
}

// OrganizationConfig provides the definition of an organization in the network
type OrganizationConfig struct {
	Name                   string
	MSPID                  string
	Peers                  []string
	CertificateAuthorities []string
}

// CAConfig defines a CA configuration in the connection profile
type CAConfig struct {
	URL         string
	CAName      string
	TLSCACerts  TLSConfig
	HTTPOptions map[string]interface{}
}

// TLSConfig holds the trusted TLS roots, inline or as comma separated file paths
type TLSConfig struct {
	Pem  []string
	Path string
}

// profileEntity contains the parts of a connection profile used for enrollment
type profileEntity struct {
	Client                 ClientConfig
	Organizations          map[string]OrganizationConfig
	CertificateAuthorities map[string]CAConfig
}

// EndpointConfig gives access to the organizations and certificate
// authorities declared in a connection profile.
type EndpointConfig struct {
	backend *lookup.ConfigLookup
	client  ClientConfig
	orgs    map[string]OrganizationConfig
	cas     map[string]CAConfig
}

// ConfigFromBackend returns endpoint config implementation for given backend
func ConfigFromBackend(coreBackend ...core.ConfigBackend) (*EndpointConfig, error) {
	config := &EndpointConfig{backend: lookup.New(coreBackend...)}

	if err := config.loadEntities(); err != nil {
		return nil, errors.WithMessage(err, "failed to create endpoint config from backends")
	}

	return config, nil
}

// ConfigFromProvider loads the backends of the given provider and builds the endpoint config
func ConfigFromProvider(provider core.ConfigProvider) (*EndpointConfig, error) {
	backends, err := provider()
	if err != nil {
		return nil, err
	}
	return ConfigFromBackend(backends...)
}

func (c *EndpointConfig) loadEntities() error {
	entity := profileEntity{}

	err := c.backend.UnmarshalKey("client", &entity.Client)
	if err != nil {
		return errors.WithMessage(err, "failed to parse 'client' config item")
	}

	err = c.backend.UnmarshalKey("organizations", &entity.Organizations, lookup.WithUnmarshalHookFunction(stringToListHook))
	if err != nil {
		return errors.WithMessage(err, "failed to parse 'organizations' config item")
	}

	err = c.backend.UnmarshalKey("certificateAuthorities", &entity.CertificateAuthorities, lookup.WithUnmarshalHookFunction(stringToListHook))
	if err != nil {
		return errors.WithMessage(err, "failed to parse 'certificateAuthorities' config item")
	}
	logger.Debugf("certificateAuthorities are: %+v", entity.CertificateAuthorities)

	c.client = entity.Client

	// keys are looked up case insensitively, as viper does
	c.orgs = make(map[string]OrganizationConfig, len(entity.Organizations))
	for name, org := range entity.Organizations {
		org.Name = name
		c.orgs[strings.ToLower(name)] = org
	}
	c.cas = make(map[string]CAConfig, len(entity.CertificateAuthorities))
	for id, ca := range entity.CertificateAuthorities {
		c.cas[strings.ToLower(id)] = ca
	}

	return nil
}

// Client returns the client section
func (c *EndpointConfig) Client() *ClientConfig {
	return &c.client
}

// ClientOrganization returns the organization the client belongs to
func (c *EndpointConfig) ClientOrganization() (*OrganizationConfig, error) {
	if c.client.Organization == "" {
		return nil, errors.New("client.organization is not set")
	}
	return c.Organization(c.client.Organization)
}

// Organization returns the named organization
func (c *EndpointConfig) Organization(name string) (*OrganizationConfig, error) {
	org, ok := c.orgs[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("organization [%s] not found in connection profile", name)
	}
	return &org, nil
}

// DefaultCAID returns the first certificate authority of the client organization
func (c *EndpointConfig) DefaultCAID() (string, error) {
	org, err := c.ClientOrganization()
	if err != nil {
		return "", err
	}
	if len(org.CertificateAuthorities) == 0 {
		return "", errors.Errorf("organization [%s] has no certificate authorities", org.Name)
	}
	return org.CertificateAuthorities[0], nil
}

// CAEndpoint returns the certificate authority with the given id. TLS roots
// given as paths are read here so a bad profile fails before any CA call.
func (c *EndpointConfig) CAEndpoint(id string) (*api.CAEndpoint, error) {
	caConfig, ok := c.cas[strings.ToLower(id)]
	if !ok {
		return nil, errors.Errorf("certificate authority [%s] not found in connection profile", id)
	}

	url := caConfig.URL
	if url == "" {
		url = defaultCAServerSchema + "://" + id + ":" + strconv.Itoa(defaultCAServerListenPort)
	}

	serverCerts, err := c.serverCerts(&caConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "certificate authority [%s]", id)
	}

	endpoint := &api.CAEndpoint{
		ID:         id,
		URL:        url,
		CAName:     caConfig.CAName,
		TLSCACerts: serverCerts,
		Verify:     verifyOption(caConfig.HTTPOptions),
	}
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// EnrollmentTimeout bounds a single call to the CA
func (c *EndpointConfig) EnrollmentTimeout() time.Duration {
	if t := c.backend.GetDuration("client.enrollment.timeout"); t > 0 {
		return t
	}
	return defaultEnrollmentTimeout
}

// EnrollmentRetries is the number of times a CA call failing in transport
// is repeated. Negative values count as none.
func (c *EndpointConfig) EnrollmentRetries() int {
	if n := c.backend.GetInt("client.enrollment.retries"); n > 0 {
		return n
	}
	return 0
}

// CredentialStorePath returns the wallet location, with variables expanded
func (c *EndpointConfig) CredentialStorePath() string {
	return pathvar.Subst(c.client.CredentialStore.Path)
}

func (c *EndpointConfig) serverCerts(caConfig *CAConfig) ([][]byte, error) {
	//check for pems first
	if len(caConfig.TLSCACerts.Pem) > 0 {
		serverCerts := make([][]byte, len(caConfig.TLSCACerts.Pem))
		for i, pem := range caConfig.TLSCACerts.Pem {
			serverCerts[i] = []byte(pem)
		}
		return serverCerts, nil
	}

	if caConfig.TLSCACerts.Path == "" {
		return nil, nil
	}

	//check for files if pems not found
	certFiles := strings.Split(caConfig.TLSCACerts.Path, ",")
	serverCerts := make([][]byte, len(certFiles))
	for i, certPath := range certFiles {
		bytes, err := os.ReadFile(pathvar.Subst(strings.TrimSpace(certPath)))
		if err != nil {
			return nil, errors.WithMessage(err, "failed to load server certs")
		}
		serverCerts[i] = bytes
	}

	return serverCerts, nil
}

// verifyOption reads httpOptions.verify. TLS verification stays on unless
// the profile turns it off explicitly.
func verifyOption(httpOptions map[string]interface{}) bool {
	for k, v := range httpOptions {
		if strings.EqualFold(k, "verify") {
			verify, err := cast.ToBoolE(v)
			if err != nil {
				logger.Warnf("ignoring invalid httpOptions.verify value [%v]", v)
				return true
			}
			return verify
		}
	}
	return true
}

// stringToListHook lets a single PEM string stand in for a list of PEMs
func stringToListHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() == reflect.String && to == reflect.TypeOf([]string{}) {
		return []string{data.(string)}, nil
	}
	return data, nil
}
