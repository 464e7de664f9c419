/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nbrb/fabric-enroll/pkg/client/enroll"
	"github.com/nbrb/fabric-enroll/pkg/common/errors/retry"
	"github.com/nbrb/fabric-enroll/pkg/core/config"
	"github.com/nbrb/fabric-enroll/pkg/msp"
	"github.com/nbrb/fabric-enroll/pkg/msp/api"
	"github.com/nbrb/fabric-enroll/pkg/util/pathvar"
	"github.com/nbrb/fabric-enroll/pkg/wallet"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	terminal "golang.org/x/term"
)

// SecretEnv holds the enrollment secret when --secret is not given
const SecretEnv = "FABRIC_ENROLL_SECRET"

type enrollOptions struct {
	*globalOptions

	profile    string
	walletPath string
	user       string
	secret     string
	envFile    string
	mspID      string
	profileCA  string
	attrs      []string

	url         string
	caName      string
	tlsCACerts  []string
	insecure    bool
	timeout     time.Duration
	retries     int
	metricsFile string
}

// enrollError is reported for every failed enroll command
type enrollError struct {
	user string
	err  error
}

func (e *enrollError) Error() string {
	return fmt.Sprintf("Failed to enroll client user \"%s\": %s", e.user, e.err)
}

func (e *enrollError) Cause() error {
	return e.err
}

func newEnrollCommand(g *globalOptions) *cobra.Command {
	o := &enrollOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll a user with the CA unless the wallet already holds its identity",
		Long: `enroll checks the wallet for an identity labelled with the user name. When none
is found the user is enrolled with the CA and the issued certificate and key
are imported into the wallet. The CA is taken from the connection profile
(--profile) or given directly (--url).`,
		Example: `  fabric-enroll enroll --profile connection-org2.yaml --user yauheni --secret yauhenipw
  FABRIC_ENROLL_SECRET=yauhenipw fabric-enroll enroll --url https://localhost:8054 \
      --caname ca-org2 --tls-ca-cert ca.pem --msp-id Org2MSP --user yauheni`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.run(cmd); err != nil {
				return &enrollError{user: o.user, err: err}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.profile, "profile", "p", "", "connection profile (yaml or json)")
	flags.StringVarP(&o.walletPath, "wallet", "w", "",
		"wallet location: a path, file://, mem://, vault:// or s3:// URI (default: the profile's credential store or identity/user/<user>/wallet)")
	flags.StringVarP(&o.user, "user", "u", "", "enrollment ID, also used as the wallet label")
	flags.StringVarP(&o.secret, "secret", "s", "", "enrollment secret (default: $"+SecretEnv+")")
	flags.StringVar(&o.envFile, "env-file", "", "dotenv file to read "+SecretEnv+" from")
	flags.StringVar(&o.mspID, "msp-id", "", "MSP ID of the identity (default: the MSP of the profile's client organization)")
	flags.StringVar(&o.profileCA, "ca", "", "certificate authority ID in the profile (default: the client organization's first CA)")
	flags.StringSliceVar(&o.attrs, "attr", nil, "attribute to request in the certificate, name[:opt]; may be repeated")
	flags.StringVar(&o.url, "url", "", "CA URL, used instead of a profile")
	flags.StringVar(&o.caName, "caname", "", "CA name when the server hosts several CAs")
	flags.StringSliceVar(&o.tlsCACerts, "tls-ca-cert", nil, "PEM file trusted for the CA's TLS certificate; may be repeated")
	flags.BoolVar(&o.insecure, "insecure-skip-verify", false, "do not verify the CA's TLS certificate")
	flags.DurationVar(&o.timeout, "timeout", 0, "bound on each CA call (default: the profile's client.enrollment.timeout or 10s)")
	flags.IntVar(&o.retries, "retries", 0, "retries of CA calls failing in transport (default: the profile's client.enrollment.retries or 0)")
	flags.StringVar(&o.metricsFile, "metrics-textfile", "", "write Prometheus metrics of the run to this file")
	return cmd
}

func (o *enrollOptions) run(cmd *cobra.Command) error {
	if o.user == "" {
		return errors.New("--user is required")
	}
	secret, err := o.resolveSecret(cmd)
	if err != nil {
		return err
	}

	endpoint, defaults, err := o.resolveEndpoint()
	if err != nil {
		return err
	}
	if err := o.applyLogLevel(); err != nil {
		return err
	}

	mspID := firstNonEmpty(o.mspID, defaults.mspID)
	if mspID == "" {
		return errors.New("--msp-id is required without a profile")
	}
	walletPath := firstNonEmpty(o.walletPath, defaults.walletPath, filepath.Join("identity", "user", o.user, "wallet"))
	timeout := o.timeout
	if timeout <= 0 {
		timeout = defaults.timeout
	}
	retries := o.retries
	if !cmd.Flags().Changed("retries") {
		retries = defaults.retries
	}

	wlt, err := wallet.Open(walletPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wallet path: %s\n", walletPath)

	reg := prometheus.NewRegistry()
	metrics, err := enroll.NewMetrics(reg)
	if err != nil {
		return err
	}

	opts := []enroll.Option{enroll.WithMetrics(metrics)}
	if timeout > 0 {
		opts = append(opts, enroll.WithTimeout(timeout))
	}
	if retries > 0 {
		retryOpts := retry.DefaultOpts
		retryOpts.Attempts = retries
		opts = append(opts, enroll.WithRetry(retryOpts))
	}

	workflow, err := enroll.New(wlt, msp.NewCAClient(msp.WithTimeout(timeout)), opts...)
	if err != nil {
		return err
	}

	result, runErr := workflow.Run(cmd.Context(), &enroll.Request{
		Principal: o.user,
		Secret:    secret,
		MSPID:     mspID,
		Endpoint:  endpoint,
		AttrReqs:  attributeRequests(o.attrs),
	})

	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(pathvar.Subst(o.metricsFile), reg); err != nil {
			logger.Warnf("writing metrics to %s failed: %s", o.metricsFile, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	switch result.State {
	case enroll.AlreadyEnrolled:
		fmt.Fprintf(cmd.OutOrStdout(), "An identity for the client user \"%s\" already exists in the wallet\n", o.user)
	case enroll.Done:
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully enrolled client user \"%s\" and imported it into the wallet\n", o.user)
	}
	return nil
}

// resolveSecret takes --secret, then the environment, then --env-file. As a
// last resort the secret is read from the terminal without echo.
func (o *enrollOptions) resolveSecret(cmd *cobra.Command) (string, error) {
	if o.secret != "" {
		return o.secret, nil
	}
	if secret := os.Getenv(SecretEnv); secret != "" {
		return secret, nil
	}
	if o.envFile != "" {
		env, err := godotenv.Read(pathvar.Subst(o.envFile))
		if err != nil {
			return "", errors.Wrapf(err, "reading env file %s failed", o.envFile)
		}
		if secret := env[SecretEnv]; secret != "" {
			return secret, nil
		}
	}
	stdin := int(os.Stdin.Fd())
	if terminal.IsTerminal(stdin) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Enrollment secret for \"%s\": ", o.user)
		secret, err := terminal.ReadPassword(stdin)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", errors.Wrap(err, "reading enrollment secret failed")
		}
		if len(secret) > 0 {
			return string(secret), nil
		}
	}
	return "", errors.Errorf("enrollment secret is required: use --secret, $%s or --env-file", SecretEnv)
}

type profileDefaults struct {
	mspID      string
	walletPath string
	timeout    time.Duration
	retries    int
}

func (o *enrollOptions) resolveEndpoint() (*api.CAEndpoint, *profileDefaults, error) {
	switch {
	case o.profile != "" && o.url != "":
		return nil, nil, errors.New("--profile and --url are mutually exclusive")
	case o.profile != "":
		return o.endpointFromProfile()
	case o.url != "":
		endpoint, err := o.endpointFromFlags()
		return endpoint, &profileDefaults{}, err
	default:
		return nil, nil, errors.New("either --profile or --url is required")
	}
}

func (o *enrollOptions) endpointFromProfile() (*api.CAEndpoint, *profileDefaults, error) {
	cfg, err := config.ConfigFromProvider(config.FromFile(pathvar.Subst(o.profile)))
	if err != nil {
		return nil, nil, err
	}

	caID := o.profileCA
	if caID == "" {
		if caID, err = cfg.DefaultCAID(); err != nil {
			return nil, nil, err
		}
	}
	endpoint, err := cfg.CAEndpoint(caID)
	if err != nil {
		return nil, nil, err
	}
	if o.insecure {
		endpoint.Verify = false
	}

	defaults := &profileDefaults{
		walletPath: cfg.CredentialStorePath(),
		timeout:    cfg.EnrollmentTimeout(),
		retries:    cfg.EnrollmentRetries(),
	}
	if o.mspID == "" {
		org, err := cfg.ClientOrganization()
		if err != nil {
			return nil, nil, errors.WithMessage(err, "MSP ID not given")
		}
		defaults.mspID = org.MSPID
	}
	return endpoint, defaults, nil
}

func (o *enrollOptions) endpointFromFlags() (*api.CAEndpoint, error) {
	endpoint := &api.CAEndpoint{
		ID:     o.url,
		URL:    o.url,
		CAName: o.caName,
		Verify: !o.insecure,
	}
	for _, certPath := range o.tlsCACerts {
		pem, err := os.ReadFile(pathvar.Subst(certPath))
		if err != nil {
			return nil, errors.Wrap(err, "reading TLS CA certificate failed")
		}
		endpoint.TLSCACerts = append(endpoint.TLSCACerts, pem)
	}
	return endpoint, endpoint.Validate()
}

func attributeRequests(attrs []string) []*api.AttributeRequest {
	var reqs []*api.AttributeRequest
	for _, attr := range attrs {
		name, optional := attr, false
		if strings.HasSuffix(attr, ":opt") {
			name, optional = strings.TrimSuffix(attr, ":opt"), true
		}
		reqs = append(reqs, &api.AttributeRequest{Name: name, Optional: optional})
	}
	return reqs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
