/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package enroll enrolls a principal with a CA at most once: when the wallet
// already holds an identity for the principal the CA is not contacted.
//
//  Basic Flow:
//  1) Open a wallet and create a CA client
//  2) Create a Workflow with New
//  3) Call Run for the principal
package enroll

import (
	"context"
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/errors/retry"
	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/nbrb/fabric-enroll/pkg/common/logging"
	"github.com/nbrb/fabric-enroll/pkg/msp/api"
	"github.com/nbrb/fabric-enroll/pkg/wallet"
	"github.com/pkg/errors"
)

var logger = logging.NewLogger("enroll/client")

//go:generate mockgen -destination mocks/mockenroll.gen.go -package mock_enroll github.com/nbrb/fabric-enroll/pkg/client/enroll CredentialStore,Enroller

// CredentialStore is the part of a wallet used by the workflow
type CredentialStore interface {
	Exists(label string) (bool, error)
	Put(label string, id wallet.Identity) error
}

// Locker is implemented by stores that can serialize runs for one label
type Locker interface {
	Lock(ctx context.Context, label string) (unlock func(), err error)
}

// Enroller obtains an identity from a CA
type Enroller interface {
	Enroll(ctx context.Context, endpoint *api.CAEndpoint, req *api.EnrollmentRequest) (*wallet.X509Identity, error)
}

// Request names the principal to enroll and where
type Request struct {
	// Principal is both the enrollment ID and the wallet label
	Principal string
	// Secret is the one-time enrollment secret
	Secret string
	// MSPID is recorded in the stored identity
	MSPID    string
	Endpoint *api.CAEndpoint
	Profile  string
	AttrReqs []*api.AttributeRequest
}

// Validate checks the request before the store or the CA is touched
func (r *Request) Validate() error {
	if r == nil {
		return errors.New("enrollment request is required")
	}
	if err := wallet.ValidateLabel(r.Principal); err != nil {
		return errors.WithMessage(err, "invalid principal")
	}
	if r.Secret == "" {
		return errors.New("enrollment secret is required")
	}
	if r.MSPID == "" {
		return errors.New("MSP ID is required")
	}
	return r.Endpoint.Validate()
}

// Result of a run
type Result struct {
	Principal string
	// State is Done, AlreadyEnrolled or Failed
	State State
	// Identity is the identity stored by this run; nil unless State is Done
	Identity *wallet.X509Identity
	// CACalls is the number of enroll requests sent, retries included
	CACalls int
}

// Workflow checks the wallet, enrolls on a miss and stores the identity
type Workflow struct {
	store      CredentialStore
	enroller   Enroller
	timeout    time.Duration
	retryOpts  *retry.Opts
	metrics    *Metrics
	onTransits []func(principal string, state State)
}

// New creates a Workflow
func New(store CredentialStore, enroller Enroller, opts ...Option) (*Workflow, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if enroller == nil {
		return nil, errors.New("enroller is required")
	}
	w := &Workflow{store: store, enroller: enroller}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, errors.WithMessage(err, "failed to create enrollment workflow")
		}
	}
	return w, nil
}

// Run enrolls req.Principal unless the wallet already holds its identity.
// AlreadyEnrolled is a successful outcome and comes with a nil error.
// Errors carry the principal and a *status.Status recoverable with
// status.FromError.
func (w *Workflow) Run(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	result, err := w.run(ctx, req)
	w.metrics.observeRun(result.State, err, time.Since(start))
	return result, err
}

func (w *Workflow) run(ctx context.Context, req *Request) (*Result, error) {
	result := &Result{}
	if req != nil {
		result.Principal = req.Principal
	}

	if err := req.Validate(); err != nil {
		return w.fail(result, status.New(status.ClientStatus, status.InvalidArgument.ToInt32(), err.Error(), []interface{}{err}))
	}

	if locker, ok := w.store.(Locker); ok {
		unlock, err := locker.Lock(ctx, req.Principal)
		if err != nil {
			return w.fail(result, asStoreError(err))
		}
		defer unlock()
	}

	w.transit(result, Checking)
	exists, err := w.store.Exists(req.Principal)
	if err != nil {
		return w.fail(result, asStoreError(err))
	}
	if exists {
		logger.Infof("An identity for the client user \"%s\" already exists in the wallet", req.Principal)
		w.transit(result, AlreadyEnrolled)
		return result, nil
	}

	w.transit(result, Enrolling)
	id, err := w.enroll(ctx, req, result)
	if err != nil {
		return w.fail(result, err)
	}

	if err := w.store.Put(req.Principal, id); err != nil {
		if errors.Cause(err) == wallet.ErrIdentityExists {
			return w.lostRace(result, req.Principal)
		}
		logger.Errorf("Certificate issued for \"%s\" but not persisted: %s", req.Principal, err)
		return w.fail(result, asStoreError(err))
	}

	result.Identity = id
	w.transit(result, Done)
	logger.Infof("Successfully enrolled client user \"%s\" and imported it into the wallet", req.Principal)
	return result, nil
}

// lostRace handles a Put refused because the label is taken. Only an identity
// the store can show makes the run AlreadyEnrolled.
func (w *Workflow) lostRace(result *Result, principal string) (*Result, error) {
	exists, err := w.store.Exists(principal)
	if err != nil {
		return w.fail(result, asStoreError(err))
	}
	if !exists {
		logger.Errorf("Certificate issued for \"%s\" but the wallet refused it without holding an identity", principal)
		return w.fail(result, status.New(status.WalletStatus, status.StoreUnavailable.ToInt32(),
			"wallet refused the identity but holds none for the label", []interface{}{wallet.ErrIdentityExists}))
	}
	logger.Warnf("An identity for the client user \"%s\" was stored concurrently; the certificate just issued was discarded", principal)
	w.transit(result, AlreadyEnrolled)
	return result, nil
}

// enroll calls the CA, once unless a retry policy is set
func (w *Workflow) enroll(ctx context.Context, req *Request, result *Result) (*wallet.X509Identity, error) {
	enrollReq := &api.EnrollmentRequest{
		Name:     req.Principal,
		Secret:   req.Secret,
		MSPID:    req.MSPID,
		Profile:  req.Profile,
		AttrReqs: req.AttrReqs,
	}

	var handler retry.Handler
	if w.retryOpts != nil {
		handler = retry.New(*w.retryOpts)
	}
	invoker := retry.NewInvoker(handler, retry.WithBeforeRetry(func(err error) {
		w.metrics.retry()
		logger.Warnf("Retrying enrollment of \"%s\" after: %s", req.Principal, err)
	}))

	resp, err := invoker.Invoke(ctx, func() (interface{}, error) {
		result.CACalls++
		w.metrics.caCall()

		callCtx := ctx
		if w.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, w.timeout)
			defer cancel()
		}
		return w.enroller.Enroll(callCtx, req.Endpoint, enrollReq)
	})
	if err != nil {
		return nil, err
	}

	id, ok := resp.(*wallet.X509Identity)
	if !ok || id == nil {
		return nil, status.New(status.FabricCAServerStatus, status.MalformedResponse.ToInt32(), "enroller returned no identity", nil)
	}
	return id, nil
}

func (w *Workflow) fail(result *Result, err error) (*Result, error) {
	w.transit(result, Failed)
	return result, errors.WithMessagef(err, "enrollment of \"%s\" failed", result.Principal)
}

func (w *Workflow) transit(result *Result, state State) {
	logger.Debugf("Enrollment of \"%s\": %s -> %s", result.Principal, result.State, state)
	result.State = state
	for _, fn := range w.onTransits {
		fn(result.Principal, state)
	}
}

// asStoreError keeps a status already set by the wallet and classifies
// anything else as an unavailable store
func asStoreError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.New(status.WalletStatus, status.StoreUnavailable.ToInt32(), err.Error(), []interface{}{err})
}
