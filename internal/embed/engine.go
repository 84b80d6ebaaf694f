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

// Package embed is the host-facing embedding layer: it compiles source
// text to a bytecode.Module, runs it on a fresh internal/vm.Machine wired
// with the math native surface, and bridges named globals in and out for
// hosts that only want to set a few inputs and read a result back. A
// pure-Go handle table (cabi.go) mirrors the C ABI's opaque-handle shape
// for non-Go callers.
package embed

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gorse-io/vetra/internal/bytecode"
	"github.com/gorse-io/vetra/internal/frontend"
	"github.com/gorse-io/vetra/internal/vm"
)

// Engine owns one compiled module and the machine state built to run it.
// A single Engine is not safe for concurrent Run calls against the same
// module instance; each Run starts a fresh Machine so concurrent Engines
// never share VM state, only the Engine's own global overrides.
type Engine struct {
	ID uuid.UUID

	mu      sync.Mutex
	mod     *bytecode.Module
	name    string
	globals map[string]bytecode.Val
	machine *vm.Machine
}

// New creates an unpopulated Engine; call Compile before Run.
func New() *Engine {
	return &Engine{ID: uuid.New(), globals: map[string]bytecode.Val{}}
}

// Compile parses and lowers source straight to bytecode, the embedding
// path's fast-start alternative to the AOT pipeline in internal/ir.
func (e *Engine) Compile(name, source string) error {
	prog, err := frontend.Parse(name, source)
	if err != nil {
		return errors.Wrap(err, "parse")
	}
	mod, err := bytecode.NewCompiler().Compile(prog)
	if err != nil {
		return errors.Wrap(err, "compile")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mod = mod
	e.name = name
	return nil
}

// LoadModule installs an already-compiled Module directly, the path a
// caller that compiled ahead of time (e.g. to report separate parse/compile
// timings) uses instead of Compile re-parsing the source itself.
func (e *Engine) LoadModule(name string, mod *bytecode.Module) error {
	if mod == nil {
		return fmt.Errorf("engine %s: nil module", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mod = mod
	e.name = name
	return nil
}

// SetInt and SetFloat stage a value that a freshly started Run writes into
// the named global's slot before execution begins. The module's top-level
// const initializers run first thing in Code and store over that slot, so
// a staged value does not survive for a global that has an initializer.
func (e *Engine) SetInt(name string, v int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = bytecode.IntVal(v)
}

func (e *Engine) SetFloat(name string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = bytecode.FloatVal(v)
}

// GetInt and GetFloat read a named global out of the module run by the
// most recent Run call. They error if Run has not completed or the name
// was never declared as a global.
func (e *Engine) GetInt(name string) (int64, error) {
	v, err := e.getGlobal(name)
	if err != nil {
		return 0, err
	}
	return v.I, nil
}

func (e *Engine) GetFloat(name string) (float64, error) {
	v, err := e.getGlobal(name)
	if err != nil {
		return 0, err
	}
	return v.F, nil
}

func (e *Engine) getGlobal(name string) (bytecode.Val, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.machine == nil {
		return bytecode.Val{}, fmt.Errorf("engine %s: run has not completed", e.name)
	}
	for i, g := range e.mod.Globals {
		if g == name {
			return e.machine.Global(i), nil
		}
	}
	return bytecode.Val{}, fmt.Errorf("engine %s: no such global %q", e.name, name)
}

// Run executes the compiled module's entry point on a fresh Machine,
// seeded with any SetInt/SetFloat overrides and the math native surface.
func (e *Engine) Run() (bytecode.Val, error) {
	e.mu.Lock()
	if e.mod == nil {
		e.mu.Unlock()
		return bytecode.Val{}, fmt.Errorf("engine %s: nothing compiled", e.name)
	}
	mod := e.mod
	overrides := make(map[string]bytecode.Val, len(e.globals))
	for k, v := range e.globals {
		overrides[k] = v
	}
	e.mu.Unlock()

	m := vm.New(mod)
	registerBuiltins(m)
	for name, v := range overrides {
		for i, g := range mod.Globals {
			if g == name {
				m.SetGlobal(i, v)
			}
		}
	}

	result, err := m.Run()

	e.mu.Lock()
	e.machine = m
	e.mu.Unlock()

	if err != nil {
		return bytecode.Val{}, errors.Wrap(err, "run")
	}
	return result, nil
}
