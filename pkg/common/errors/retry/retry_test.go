/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/nbrb/fabric-enroll/pkg/common/errors/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOpts = Opts{
	Attempts:       3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
	BackoffFactor:  2,
}

func transportErr() error {
	return errors.Wrap(status.New(status.HTTPTransportStatus, status.ConnectionFailed.ToInt32(), "connection refused", nil), "enroll failed")
}

func authErr() error {
	return status.New(status.FabricCAServerStatus, status.AuthenticationFailed.ToInt32(), "Authentication failure", nil)
}

func TestRetryRequired(t *testing.T) {
	r := New(testOpts)
	ctx := context.Background()

	for i := 0; i < testOpts.Attempts; i++ {
		assert.True(t, r.Required(ctx, transportErr()), "attempt %d should be retried", i)
	}
	assert.False(t, r.Required(ctx, transportErr()), "attempts exhausted")
}

func TestRetryNotRequired(t *testing.T) {
	r := New(testOpts)
	ctx := context.Background()

	assert.False(t, r.Required(ctx, authErr()))
	assert.False(t, r.Required(ctx, errors.New("no status")))

	malformed := status.New(status.FabricCAServerStatus, status.MalformedResponse.ToInt32(), "bad cert", nil)
	assert.False(t, r.Required(ctx, malformed))
}

func TestRetryCancelledContext(t *testing.T) {
	r := New(Opts{Attempts: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, r.Required(ctx, transportErr()))
}

func TestBackoffPeriod(t *testing.T) {
	i := &impl{opts: Opts{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}}
	assert.Equal(t, 100*time.Millisecond, i.backoffPeriod())
	i.retries = 2
	assert.Equal(t, 400*time.Millisecond, i.backoffPeriod())
	i.retries = 10
	assert.Equal(t, time.Second, i.backoffPeriod())
}

func TestNewFillsDefaults(t *testing.T) {
	r := New(Opts{Attempts: 3}).(*impl)
	assert.Equal(t, DefaultInitialBackoff, r.opts.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, r.opts.MaxBackoff)
	assert.Equal(t, DefaultBackoffFactor, r.opts.BackoffFactor)
	assert.Equal(t, DefaultRetryableCodes, r.opts.RetryableCodes)
	assert.Equal(t, DefaultInitialBackoff, r.backoffPeriod(), "first retry must not fire immediately")

	r = New(Opts{Attempts: 3, InitialBackoff: -time.Second, MaxBackoff: -time.Second}).(*impl)
	assert.Equal(t, DefaultInitialBackoff, r.opts.InitialBackoff)
	assert.Equal(t, DefaultMaxBackoff, r.opts.MaxBackoff)
}

func TestInvokerSucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	var retried []error
	invoker := NewInvoker(New(testOpts), WithBeforeRetry(func(err error) {
		retried = append(retried, err)
	}))

	result, err := invoker.Invoke(context.Background(), func() (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, transportErr()
		}
		return "issued", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "issued", result)
	assert.Equal(t, 3, calls)
	assert.Len(t, retried, 2)
}

func TestInvokerStopsOnPermanentError(t *testing.T) {
	calls := 0
	invoker := NewInvoker(New(testOpts))

	_, err := invoker.Invoke(context.Background(), func() (interface{}, error) {
		calls++
		return nil, authErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, status.AuthenticationFailed, status.CodeOf(err))
}

func TestInvokerWithoutHandler(t *testing.T) {
	calls := 0
	_, err := NewInvoker(nil).Invoke(context.Background(), func() (interface{}, error) {
		calls++
		return nil, transportErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
