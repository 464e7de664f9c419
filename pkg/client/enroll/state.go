/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package enroll

// State of an enrollment run
type State int

const (
	// Checking the wallet for an existing identity
	Checking State = iota
	// Enrolling with the CA
	Enrolling
	// Done: the identity was issued and stored
	Done
	// AlreadyEnrolled: the wallet already held an identity for the principal
	AlreadyEnrolled
	// Failed run; the error says why
	Failed
)

var stateName = map[State]string{
	Checking:        "Checking",
	Enrolling:       "Enrolling",
	Done:            "Done",
	AlreadyEnrolled: "AlreadyEnrolled",
	Failed:          "Failed",
}

func (s State) String() string {
	if name, ok := stateName[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether no further transition follows s
func (s State) IsTerminal() bool {
	return s == Done || s == AlreadyEnrolled || s == Failed
}
