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

// Package optimize drives the fixed-point pass pipeline over an ir.Program.
// Passes themselves live in internal/optimize/passes and never report
// errors; the driver's only job is picking which passes run at a given
// level and capping iterations so oscillating rewrites still terminate.
package optimize

import (
	"github.com/gorse-io/vetra/internal/cfg"
	"github.com/gorse-io/vetra/internal/ir"
	"github.com/gorse-io/vetra/internal/optimize/passes"
)

// Level selects which passes run and how many fixed-point iterations are
// allowed.
type Level int

const (
	None Level = iota
	Basic
	Aggressive
	Maximum
)

func (l Level) maxIterations() int {
	switch l {
	case Basic:
		return 1
	case Aggressive:
		return 3
	case Maximum:
		return 5
	default:
		return 0
	}
}

// Pass transforms fn in place and reports whether it changed anything, so
// the driver knows whether another iteration could still make progress.
type Pass func(prog *ir.Program, fn *ir.Function) bool

func passesFor(level Level) []Pass {
	switch level {
	case Basic:
		return []Pass{passes.ConstantFold, passes.DeadCodeElim}
	case Aggressive:
		return []Pass{
			passes.ConstantFold,
			passes.DeadCodeElim,
			passes.ConstructSSA,
			passes.Inline,
			passes.LoopOptimize,
			passes.Peephole,
		}
	case Maximum:
		return []Pass{
			passes.ConstantFold,
			passes.DeadCodeElim,
			passes.ConstructSSA,
			passes.Inline,
			passes.LoopOptimize,
			passes.Peephole,
			passes.ConstantPropagate,
			passes.CSE,
		}
	default:
		return nil
	}
}

// Run applies the pipeline for level to every function in prog, converging
// early once a full iteration makes no further changes.
func Run(prog *ir.Program, level Level) {
	if level == None {
		return
	}
	ps := passesFor(level)
	maxIter := level.maxIterations()
	for _, name := range prog.FunctionNames() {
		fn, ok := prog.Function(name)
		if !ok {
			continue
		}
		runFunction(prog, fn, ps, maxIter)
	}
}

func runFunction(prog *ir.Program, fn *ir.Function, ps []Pass, maxIter int) {
	for i := 0; i < maxIter; i++ {
		cfg.BuildEdges(fn)
		cfg.Dominators(fn)
		changed := false
		for _, p := range ps {
			if p(prog, fn) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}
