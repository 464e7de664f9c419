/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metadata

import (
	"testing"

	"github.com/nbrb/fabric-enroll/pkg/core/logging/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevels(t *testing.T) {
	mlevel := ModuleLevels{}

	mlevel.SetLevel("module-xyz-info", api.INFO)
	mlevel.SetLevel("module-xyz-debug", api.DEBUG)
	mlevel.SetLevel("module-xyz-error", api.ERROR)

	assert.True(t, mlevel.IsEnabledFor("module-xyz-info", api.ERROR))
	assert.True(t, mlevel.IsEnabledFor("module-xyz-info", api.INFO))
	assert.False(t, mlevel.IsEnabledFor("module-xyz-info", api.DEBUG))

	assert.True(t, mlevel.IsEnabledFor("module-xyz-debug", api.DEBUG))

	assert.True(t, mlevel.IsEnabledFor("module-xyz-error", api.CRITICAL))
	assert.False(t, mlevel.IsEnabledFor("module-xyz-error", api.WARNING))

	// unset module falls back to INFO
	assert.Equal(t, api.INFO, mlevel.GetLevel("module-unset"))

	mlevel.SetLevel("", api.DEBUG)
	assert.Equal(t, api.DEBUG, mlevel.GetLevel("module-unset"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want api.Level
	}{
		{"critical", api.CRITICAL},
		{"ERROR", api.ERROR},
		{"Warning", api.WARNING},
		{"warn", api.WARNING},
		{"info", api.INFO},
		{"debug", api.DEBUG},
	}
	for _, test := range tests {
		level, err := ParseLevel(test.in)
		require.NoError(t, err, test.in)
		assert.Equal(t, test.want, level, test.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)

	assert.Equal(t, "WARNING", ParseString(api.WARNING))
	assert.Equal(t, "UNKNOWN", ParseString(api.Level(42)))
}
