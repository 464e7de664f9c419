/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package lookup

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapBackend is a flat key/value backend
type mapBackend map[string]interface{}

func (m mapBackend) Lookup(key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok
}

var backend = mapBackend{
	"key.int":           "42",
	"key.int.invalid":   "many",
	"key.duration":      "15s",
	"key.duration.int":  3,
	"client.enrollment": map[string]interface{}{"timeout": "30s", "retries": 2},
	"key.list":          map[string]interface{}{"pem": "single"},
}

func TestGetInt(t *testing.T) {
	testLookup := New(backend)
	assert.Equal(t, 42, testLookup.GetInt("key.int"))
	assert.Equal(t, 0, testLookup.GetInt("key.int.invalid"))
	assert.Equal(t, 0, testLookup.GetInt("key.int.notexisting"))
}

func TestGetDuration(t *testing.T) {
	testLookup := New(backend)
	assert.Equal(t, 15*time.Second, testLookup.GetDuration("key.duration"))
	assert.Equal(t, 3*time.Nanosecond, testLookup.GetDuration("key.duration.int"))
	assert.Equal(t, time.Duration(0), testLookup.GetDuration("key.duration.notexisting"))
}

func TestBackendFallback(t *testing.T) {
	override := mapBackend{"key.int": 7}
	testLookup := New(nil, override, backend)
	assert.Equal(t, 7, testLookup.GetInt("key.int"), "first backend wins")
	assert.Equal(t, 15*time.Second, testLookup.GetDuration("key.duration"), "falls back to next backend")
}

func TestUnmarshalKey(t *testing.T) {
	var enrollment struct {
		Timeout time.Duration
		Retries int
	}
	require.NoError(t, New(backend).UnmarshalKey("client.enrollment", &enrollment))
	assert.Equal(t, 30*time.Second, enrollment.Timeout)
	assert.Equal(t, 2, enrollment.Retries)

	// missing keys leave the value untouched
	require.NoError(t, New(backend).UnmarshalKey("not.there", &enrollment))
	assert.Equal(t, 2, enrollment.Retries)
}

func TestUnmarshalKeyWithHook(t *testing.T) {
	var list struct {
		Pem []string
	}
	hook := func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() == reflect.String && to == reflect.TypeOf([]string{}) {
			return strings.Split(data.(string), ","), nil
		}
		return data, nil
	}

	err := New(backend).UnmarshalKey("key.list", &list)
	assert.Error(t, err, "string cannot decode into a list without a hook")

	require.NoError(t, New(backend).UnmarshalKey("key.list", &list, WithUnmarshalHookFunction(hook)))
	assert.Equal(t, []string{"single"}, list.Pem)
}
