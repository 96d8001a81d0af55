// Copyright (C) 2025 Cairn Health (oss@cairnhealth.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"errors"
	"fmt"
)

// ErrTechniqueNotFound indicates a query named a technique id the
// effectiveness database does not contain.
var ErrTechniqueNotFound = errors.New("technique not found")

// CollaboratorError wraps a failure of an external collaborator (the
// efficacy-tracking source) during a computation pass. The failing pass
// aborts and the error propagates to the caller; other passes are
// unaffected.
type CollaboratorError struct {
	// Collaborator names the failing source, e.g. "efficacy".
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
