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

package irbuild

import (
	"fmt"

	"github.com/gorse-io/vetra/internal/ast"
)

// BuildError describes the first unresolved name, unsupported construct,
// invalid l-value, or missing return encountered while lowering the AST.
type BuildError struct {
	Pos     ast.Pos
	Message string
}

func (e *BuildError) Error() string {
	if e.Pos.File == "" {
		return e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Pos.File, e.Pos.Line, e.Pos.Column, e.Message)
}

func errUnknownIdent(pos ast.Pos, name string) error {
	return &BuildError{Pos: pos, Message: fmt.Sprintf("unknown identifier: %s", name)}
}

func errBreakOutsideLoop(pos ast.Pos) error {
	return &BuildError{Pos: pos, Message: "break outside of loop"}
}

func errContinueOutsideLoop(pos ast.Pos) error {
	return &BuildError{Pos: pos, Message: "continue outside of loop"}
}

func errInvalidAssignTarget(pos ast.Pos) error {
	return &BuildError{Pos: pos, Message: "invalid assignment target"}
}

func errUnsupportedMatchPattern(pos ast.Pos) error {
	return &BuildError{Pos: pos, Message: "unsupported match pattern"}
}

func errNonExhaustiveMatch(pos ast.Pos) error {
	return &BuildError{Pos: pos, Message: "non-exhaustive match: no wildcard or matching arm"}
}

func errMissingReturn(pos ast.Pos, fn string) error {
	return &BuildError{Pos: pos, Message: fmt.Sprintf("missing return in non-void function %q", fn)}
}

func errUninitializedInferred(pos ast.Pos, name string) error {
	return &BuildError{Pos: pos, Message: fmt.Sprintf("cannot infer type of %q without an initializer", name)}
}

func errUnsupported(pos ast.Pos, what string) error {
	return &BuildError{Pos: pos, Message: fmt.Sprintf("unsupported construct: %s", what)}
}
