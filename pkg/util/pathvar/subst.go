/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package pathvar

import (
	"bytes"
	"os"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/mitchellh/go-homedir"
)

// Subst expands a leading '~' to the user's home directory and replaces
// environment variable references (eg ${HOME}, $USER, ${NAME:-default}).
// When a referenced variable is not set, only the '${VARNAME}' forms of set
// variables are replaced and everything else is left untouched.
func Subst(path string) string {
	expanded, err := envsubst.StringRestricted(path, true, false)
	if err != nil {
		expanded = substBraced(path)
	}

	if home, err := homedir.Expand(expanded); err == nil {
		return home
	}
	return expanded
}

func substBraced(path string) string {
	const (
		sepPrefix = "${"
		sepSuffix = "}"
	)

	splits := strings.Split(path, sepPrefix)

	var buffer bytes.Buffer

	// first split precedes the first sepPrefix so should always be written
	buffer.WriteString(splits[0]) // nolint: gas

	for _, s := range splits[1:] {
		subst, rest := substVar(s, sepPrefix, sepSuffix)
		buffer.WriteString(subst) // nolint: gas
		buffer.WriteString(rest)  // nolint: gas
	}

	return buffer.String()
}

// substVar searches for an instance of a variables name and replaces them with their value.
// The first return value is substituted portion of the string or noMatch if no replacement occurred.
// The second return value is the unconsumed portion of s.
func substVar(s string, noMatch string, sep string) (string, string) {
	endPos := strings.Index(s, sep)
	if endPos == -1 {
		return noMatch, s
	}

	v, ok := os.LookupEnv(s[:endPos])
	if !ok {
		return noMatch, s
	}

	return v, s[endPos+1:]
}
