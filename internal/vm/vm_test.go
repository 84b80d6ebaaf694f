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

package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorse-io/vetra/internal/bytecode"
)

// moduleWithMain builds `int main() { return 120; }` directly at the
// bytecode layer: Call(main); Halt followed by main's own body, matching
// what internal/bytecode.Compiler emits.
func moduleWithMain(body []bytecode.Inst) *bytecode.Module {
	mod := bytecode.NewModule()
	mod.Funcs = []bytecode.FuncEntry{{Name: "main", Entry: 2, Params: 0, Locals: 0}}
	mod.Code = append([]bytecode.Inst{
		{Op: bytecode.OpCall, FuncIdx: 0, Argc: 0},
		{Op: bytecode.OpHalt},
	}, body...)
	return mod
}

func TestRunReturnsLiteralExitCode(t *testing.T) {
	mod := moduleWithMain([]bytecode.Inst{
		{Op: bytecode.OpInt, Int: 120},
		{Op: bytecode.OpReturnVal},
	})
	m := New(mod)
	got, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, bytecode.VInt, got.Kind)
	assert.Equal(t, int64(120), got.I)
}

// TestRunLeavesNoGarbageOnStackAtHalt exercises the documented invariant
// that a successfully-returning program leaves the operand stack holding
// nothing but the value Halt reports: no intermediate push from evaluating
// main's body survives past its Return.
func TestRunLeavesNoGarbageOnStackAtHalt(t *testing.T) {
	mod := moduleWithMain([]bytecode.Inst{
		{Op: bytecode.OpInt, Int: 1},
		{Op: bytecode.OpInt, Int: 2},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpInt, Int: 3},
		{Op: bytecode.OpMul},
		{Op: bytecode.OpReturnVal},
	})
	m := New(mod)
	got, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.I)
	assert.Len(t, m.stack, 1, "only the reported return value remains; no operands from evaluating (1+2)*3 leak past Return")
}

func TestRunVoidMainLeavesSingleNullOnStack(t *testing.T) {
	mod := moduleWithMain([]bytecode.Inst{
		{Op: bytecode.OpReturn},
	})
	m := New(mod)
	got, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, bytecode.VNull, got.Kind)
	assert.Len(t, m.stack, 1)
}

func TestRunNestedCallUnwindsFramesCleanly(t *testing.T) {
	mod := bytecode.NewModule()
	mod.Funcs = []bytecode.FuncEntry{
		{Name: "main", Params: 0},
		{Name: "double", Params: 1},
	}
	mod.Code = []bytecode.Inst{
		{Op: bytecode.OpCall, FuncIdx: 0, Argc: 0}, // 0
		{Op: bytecode.OpHalt},                      // 1
		// main:
		{Op: bytecode.OpInt, Int: 21},              // 2
		{Op: bytecode.OpCall, FuncIdx: 1, Argc: 1}, // 3
		{Op: bytecode.OpReturnVal},                 // 4
		// double(x):
		{Op: bytecode.OpLoadLocal, Slot: 0}, // 5
		{Op: bytecode.OpLoadLocal, Slot: 0}, // 6
		{Op: bytecode.OpAdd},                // 7
		{Op: bytecode.OpReturnVal},          // 8
	}
	mod.Funcs[0].Entry = 2
	mod.Funcs[1].Entry = 5

	m := New(mod)
	got, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.I)
	assert.Empty(t, m.frames, "every Call must be matched by a Return that pops its frame")
	assert.Len(t, m.stack, 1)
}

func TestRunIntegerDivisionByZeroIsRuntimeError(t *testing.T) {
	mod := moduleWithMain([]bytecode.Inst{
		{Op: bytecode.OpInt, Int: 1},
		{Op: bytecode.OpInt, Int: 0},
		{Op: bytecode.OpDiv},
		{Op: bytecode.OpReturnVal},
	})
	m := New(mod)
	_, err := m.Run()
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "division by zero")
}

func TestRunArrayIndexOutOfRangeIsRuntimeError(t *testing.T) {
	mod := moduleWithMain([]bytecode.Inst{
		{Op: bytecode.OpNewArray, Int: 2},
		{Op: bytecode.OpInt, Int: 5},
		{Op: bytecode.OpArrayGet},
		{Op: bytecode.OpReturnVal},
	})
	m := New(mod)
	_, err := m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRunCallNativeInvokesRegisteredFunction(t *testing.T) {
	mod := bytecode.NewModule()
	mod.Natives = []string{"sqrt"}
	mod.Funcs = []bytecode.FuncEntry{{Name: "main"}}
	mod.Funcs[0].Entry = 2
	mod.Code = []bytecode.Inst{
		{Op: bytecode.OpCall, FuncIdx: 0, Argc: 0},
		{Op: bytecode.OpHalt},
		{Op: bytecode.OpInt, Int: 9},
		{Op: bytecode.OpCallNative, Native: 0, Argc: 1},
		{Op: bytecode.OpReturnVal},
	}
	m := New(mod)
	m.Natives["sqrt"] = func(args []bytecode.Val) (bytecode.Val, error) {
		return bytecode.FloatVal(3), nil
	}
	got, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, bytecode.VFloat, got.Kind)
	assert.Equal(t, float64(3), got.F)
}

func TestRunUnregisteredNativeIsRuntimeError(t *testing.T) {
	mod := bytecode.NewModule()
	mod.Natives = []string{"sqrt"}
	mod.Funcs = []bytecode.FuncEntry{{Name: "main"}}
	mod.Funcs[0].Entry = 2
	mod.Code = []bytecode.Inst{
		{Op: bytecode.OpCall, FuncIdx: 0, Argc: 0},
		{Op: bytecode.OpHalt},
		{Op: bytecode.OpInt, Int: 9},
		{Op: bytecode.OpCallNative, Native: 0, Argc: 1},
		{Op: bytecode.OpReturnVal},
	}
	m := New(mod)
	_, err := m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered")
}

func TestGlobalAndSetGlobalRoundTrip(t *testing.T) {
	mod := bytecode.NewModule()
	mod.Globals = []string{"x"}
	m := New(mod)
	assert.Equal(t, bytecode.VNull, m.Global(0).Kind)
	m.SetGlobal(0, bytecode.IntVal(7))
	assert.Equal(t, int64(7), m.Global(0).I)
}
