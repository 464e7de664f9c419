/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package modlog

import (
	"bytes"
	"testing"

	"github.com/nbrb/fabric-enroll/pkg/core/logging/api"
	"github.com/stretchr/testify/assert"
)

func TestModuleLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewProvider(&buf).GetLogger("modlog-test")

	SetLevel("modlog-test", api.WARNING)
	assert.Equal(t, api.WARNING, GetLevel("modlog-test"))

	logger.Debugf("debug %d", 1)
	logger.Info("info")
	assert.Empty(t, buf.String(), "debug and info must be filtered at WARNING")

	logger.Warnf("warning %s", "emitted")
	logger.Error("error emitted")
	out := buf.String()
	assert.Contains(t, out, "warning emitted")
	assert.Contains(t, out, "error emitted")
	assert.Contains(t, out, "module=modlog-test")

	buf.Reset()
	SetLevel("modlog-test", api.DEBUG)
	assert.True(t, IsEnabledFor("modlog-test", api.DEBUG))
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
