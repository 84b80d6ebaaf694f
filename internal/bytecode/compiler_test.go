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

package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/vetra/internal/ast"
)

// mainReturning builds `int main() { return <value>; }`.
func mainReturning(value int64) ast.Program {
	return ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{
			Name:       "main",
			ReturnType: ast.Type{Kind: ast.TypeI32},
			Body: []ast.Stmt{
				ast.ReturnStmt{Value: ast.IntLit{Value: value}},
			},
		},
	}}
}

func TestCompileEmitsCallMainThenHalt(t *testing.T) {
	mod, err := NewCompiler().Compile(mainReturning(120))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(mod.Code), 2)
	assert.Equal(t, OpCall, mod.Code[0].Op)
	assert.Equal(t, 0, mod.Code[0].FuncIdx, "main must be function index 0")
	assert.Equal(t, OpHalt, mod.Code[1].Op)
	assert.Equal(t, 0, mod.EntryOffset)
}

func TestCompileNoMainOmitsCallStubButStillHalts(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{
			Name: "helper",
			Body: []ast.Stmt{ast.ReturnStmt{}},
		},
	}}
	mod, err := NewCompiler().Compile(prog)
	require.NoError(t, err)
	for _, in := range mod.Code {
		assert.NotEqual(t, OpCall, in.Op, "with no main there is no entry-stub call to emit")
	}
	assert.Equal(t, OpHalt, mod.Code[len(mod.Code)-1].Op, "a trailing Halt still terminates the stream")
}

func TestCompileIntLitSmallVsPooled(t *testing.T) {
	small := mainReturning(120)
	mod, err := NewCompiler().Compile(small)
	require.NoError(t, err)

	var sawInt bool
	for _, in := range mod.Code {
		if in.Op == OpInt && in.Int == 120 {
			sawInt = true
		}
	}
	assert.True(t, sawInt, "small literals inline as OpInt rather than going through the constant pool")

	big := mainReturning(smallIntThreshold + 1)
	mod2, err := NewCompiler().Compile(big)
	require.NoError(t, err)
	var sawConst bool
	for _, in := range mod2.Code {
		if in.Op == OpConst {
			sawConst = true
		}
	}
	assert.True(t, sawConst, "literals past the small-int threshold go through the constant pool")
}

func TestCompileTopLevelConstInitializesGlobalAheadOfEntry(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.ConstDecl{Name: "LIMIT", Value: ast.IntLit{Value: 10}},
		ast.FunctionDecl{Name: "main", Body: []ast.Stmt{ast.ReturnStmt{}}},
	}}
	mod, err := NewCompiler().Compile(prog)
	require.NoError(t, err)

	require.Equal(t, []string{"LIMIT"}, mod.Globals)
	// the const initializer runs before the Call(main); Halt stub.
	var storeIdx, callIdx int = -1, -1
	for i, in := range mod.Code {
		switch in.Op {
		case OpStoreGlobal:
			storeIdx = i
		case OpCall:
			if callIdx == -1 {
				callIdx = i
			}
		}
	}
	require.NotEqual(t, -1, storeIdx)
	require.NotEqual(t, -1, callIdx)
	assert.Less(t, storeIdx, callIdx, "global initializers run ahead of the entry stub")
}

func TestCompileUnknownIdentIsCompileError(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{Name: "main", Body: []ast.Stmt{
			ast.ExprStmt{X: ast.Ident{Name: "nope"}},
		}},
	}}
	_, err := NewCompiler().Compile(prog)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "nope")
}

func TestCompileBreakOutsideLoopIsCompileError(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{Name: "main", Body: []ast.Stmt{ast.BreakStmt{}}},
	}}
	_, err := NewCompiler().Compile(prog)
	require.Error(t, err)
}

// TestCompileIfElseMergePoint checks the documented if/else shape: cond;
// JumpIfFalse L1; then; Jump L2; L1: else; L2:, with both jump targets
// landing past the op stream they guard.
func TestCompileIfElseMergePoint(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{Name: "main", Body: []ast.Stmt{
			ast.IfStmt{
				Cond: ast.BoolLit{Value: true},
				Then: []ast.Stmt{ast.ExprStmt{X: ast.IntLit{Value: 1}}},
				Else: []ast.Stmt{ast.ExprStmt{X: ast.IntLit{Value: 2}}},
			},
			ast.ReturnStmt{},
		}},
	}}
	mod, err := NewCompiler().Compile(prog)
	require.NoError(t, err)

	var jf, jEnd = -1, -1
	for i, in := range mod.Code {
		switch in.Op {
		case OpJumpIfFalse:
			jf = i
		case OpJump:
			if jEnd == -1 {
				jEnd = i
			}
		}
	}
	require.NotEqual(t, -1, jf)
	require.NotEqual(t, -1, jEnd)
	assert.Equal(t, jEnd+1, mod.Code[jf].Target, "JumpIfFalse lands right after the then-arm's merge jump")
	assert.LessOrEqual(t, mod.Code[jEnd].Target, len(mod.Code), "merge jump must target a valid offset")
}

func TestCompileWhileLoopBranchesBackToHeader(t *testing.T) {
	prog := ast.Program{TopLevels: []ast.TopLevel{
		ast.FunctionDecl{Name: "main", Body: []ast.Stmt{
			ast.WhileStmt{
				Cond: ast.BoolLit{Value: false},
				Body: []ast.Stmt{ast.BreakStmt{}},
			},
			ast.ReturnStmt{},
		}},
	}}
	mod, err := NewCompiler().Compile(prog)
	require.NoError(t, err)

	var backJump bool
	for i, in := range mod.Code {
		if in.Op == OpJump && in.Target <= i {
			backJump = true
		}
	}
	assert.True(t, backJump, "while's body must jump back to the condition re-check")
}
