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
)

func TestIsTruthy(t *testing.T) {
	assert.True(t, IntVal(1).IsTruthy())
	assert.False(t, IntVal(0).IsTruthy())
	assert.True(t, BoolVal(true).IsTruthy())
	assert.False(t, BoolVal(false).IsTruthy())
	assert.False(t, NullVal().IsTruthy())
	assert.True(t, StrVal("").IsTruthy(), "a string, even empty, is truthy")
}

func TestArraySharesBackingStorage(t *testing.T) {
	a := NewArray(3)
	a.ArraySet(0, IntVal(9))
	b := a // copies the Val, which copies the *sharedArray pointer
	assert.Equal(t, int64(9), b.ArrayGet(0).I, "a copy of an array Val observes the original's mutations")
	b.ArraySet(1, IntVal(4))
	assert.Equal(t, int64(4), a.ArrayGet(1).I)
}

func TestObjectGetSetAndMissingKey(t *testing.T) {
	o := NewObject()
	_, ok := o.ObjGet("missing")
	assert.False(t, ok)
	o.ObjSet("a", IntVal(1))
	v, ok := o.ObjGet("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.I)
}

func TestTypeNameAndString(t *testing.T) {
	cases := []struct {
		v    Val
		name string
		str  string
	}{
		{IntVal(5), "int", "5"},
		{FloatVal(2.5), "float", "2.5"},
		{BoolVal(true), "bool", "true"},
		{StrVal("hi"), "string", "hi"},
		{NullVal(), "null", "null"},
		{FnVal(3), "function", "fn#3"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.name, tc.v.TypeName())
		assert.Equal(t, tc.str, tc.v.String())
	}
}
