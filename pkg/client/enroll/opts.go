/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package enroll

import (
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/errors/retry"
	"github.com/pkg/errors"
)

// Option describes a functional parameter for New
type Option func(*Workflow) error

// WithTimeout bounds each CA call
func WithTimeout(timeout time.Duration) Option {
	return func(w *Workflow) error {
		if timeout < 0 {
			return errors.Errorf("negative timeout %s", timeout)
		}
		w.timeout = timeout
		return nil
	}
}

// WithRetry retries CA calls that fail in transport. Without it a run makes
// exactly one CA call.
func WithRetry(opts retry.Opts) Option {
	return func(w *Workflow) error {
		if opts.Attempts < 0 {
			return errors.Errorf("negative retry attempts %d", opts.Attempts)
		}
		w.retryOpts = &opts
		return nil
	}
}

// WithMetrics records runs in m
func WithMetrics(m *Metrics) Option {
	return func(w *Workflow) error {
		w.metrics = m
		return nil
	}
}

// WithStateObserver calls fn on every state transition
func WithStateObserver(fn func(principal string, state State)) Option {
	return func(w *Workflow) error {
		if fn == nil {
			return errors.New("state observer is nil")
		}
		w.onTransits = append(w.onTransits, fn)
		return nil
	}
}
