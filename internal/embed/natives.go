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

package embed

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gorse-io/vetra/internal/bytecode"
	"github.com/gorse-io/vetra/internal/vm"
)

// argf coerces a native call's Int-or-Float argument to float64, matching
// internal/vm's numeric-widening rules in arith.go.
func argf(v bytecode.Val) float64 {
	if v.Kind == bytecode.VInt {
		return float64(v.I)
	}
	return v.F
}

// registerBuiltins installs the math native surface onto a Machine's
// native table: sqrt/abs/pow/sin/cos/tan/floor/ceil/round/min/max/clamp/
// lerp/random/random_range, each a thin wrapper over math/math.rand.
func registerBuiltins(m *vm.Machine) {
	one := func(f func(float64) float64) vm.NativeFn {
		return func(args []bytecode.Val) (bytecode.Val, error) {
			if len(args) != 1 {
				return bytecode.Val{}, fmt.Errorf("want 1 argument, got %d", len(args))
			}
			return bytecode.FloatVal(f(argf(args[0]))), nil
		}
	}
	two := func(f func(a, b float64) float64) vm.NativeFn {
		return func(args []bytecode.Val) (bytecode.Val, error) {
			if len(args) != 2 {
				return bytecode.Val{}, fmt.Errorf("want 2 arguments, got %d", len(args))
			}
			return bytecode.FloatVal(f(argf(args[0]), argf(args[1]))), nil
		}
	}

	m.Natives["sqrt"] = one(math.Sqrt)
	m.Natives["abs"] = one(math.Abs)
	m.Natives["sin"] = one(math.Sin)
	m.Natives["cos"] = one(math.Cos)
	m.Natives["tan"] = one(math.Tan)
	m.Natives["floor"] = one(math.Floor)
	m.Natives["ceil"] = one(math.Ceil)
	m.Natives["round"] = one(math.Round)
	m.Natives["pow"] = two(math.Pow)
	m.Natives["min"] = two(math.Min)
	m.Natives["max"] = two(math.Max)

	m.Natives["clamp"] = func(args []bytecode.Val) (bytecode.Val, error) {
		if len(args) != 3 {
			return bytecode.Val{}, fmt.Errorf("clamp: want 3 arguments, got %d", len(args))
		}
		x, lo, hi := argf(args[0]), argf(args[1]), argf(args[2])
		return bytecode.FloatVal(math.Min(math.Max(x, lo), hi)), nil
	}
	m.Natives["lerp"] = func(args []bytecode.Val) (bytecode.Val, error) {
		if len(args) != 3 {
			return bytecode.Val{}, fmt.Errorf("lerp: want 3 arguments, got %d", len(args))
		}
		a, b, t := argf(args[0]), argf(args[1]), argf(args[2])
		return bytecode.FloatVal(a + (b-a)*t), nil
	}
	m.Natives["random"] = func(args []bytecode.Val) (bytecode.Val, error) {
		if len(args) != 0 {
			return bytecode.Val{}, fmt.Errorf("random: want 0 arguments, got %d", len(args))
		}
		return bytecode.FloatVal(rand.Float64()), nil
	}
	m.Natives["random_range"] = func(args []bytecode.Val) (bytecode.Val, error) {
		if len(args) != 2 {
			return bytecode.Val{}, fmt.Errorf("random_range: want 2 arguments, got %d", len(args))
		}
		lo, hi := argf(args[0]), argf(args[1])
		return bytecode.FloatVal(lo + rand.Float64()*(hi-lo)), nil
	}
}
