// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diag

import "github.com/pkg/errors"

// Phase names one pipeline stage, for error messages and -v tracing.
type Phase string

const (
	PhaseParse    Phase = "parse"
	PhaseBuildIR  Phase = "build-ir"
	PhaseOptimize Phase = "optimize"
	PhaseRegAlloc Phase = "regalloc"
	PhaseEmit     Phase = "emit"
	PhaseBytecode Phase = "bytecode"
	PhaseRun      Phase = "run"
)

// PhaseError wraps the first error surfaced by one pipeline stage with
// the stage's name, so the driver's single top-level error print says
// where in the pipeline things stopped without every phase needing its
// own distinct error type.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string { return string(e.Phase) + ": " + e.Err.Error() }
func (e *PhaseError) Unwrap() error { return e.Err }

// Wrap annotates err with the phase it failed in, or returns nil if err
// is nil so callers can write `return diag.Wrap(phase, err)` unconditionally.
func Wrap(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: errors.WithStack(err)}
}
