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

package ir

import "github.com/dolthub/swiss"

// Global is a module-level variable: name, type, optional constant
// initializer, const flag and alignment (always >= 1).
type Global struct {
	Name    string
	Type    Type
	Init    *Constant
	Const   bool
	Align   int
}

// Program owns every function and global in a compilation unit, plus the
// string-literal interning table referenced by string constants. Every
// Global referenced anywhere in the IR appears in Globals, and every string
// literal used appears in Strings — the builder maintains both invariants
// as it lowers the AST.
type Program struct {
	Functions *swiss.Map[string, *Function]
	Globals   *swiss.Map[string, *Global]
	Strings   *swiss.Map[string, int]
	nextStrID int
}

func NewProgram() *Program {
	return &Program{
		Functions: swiss.NewMap[string, *Function](8),
		Globals:   swiss.NewMap[string, *Global](8),
		Strings:   swiss.NewMap[string, int](8),
	}
}

func (p *Program) AddFunction(fn *Function) { p.Functions.Put(fn.Name, fn) }

func (p *Program) Function(name string) (*Function, bool) { return p.Functions.Get(name) }

func (p *Program) AddGlobal(g *Global) { p.Globals.Put(g.Name, g) }

func (p *Program) Global(name string) (*Global, bool) { return p.Globals.Get(name) }

// InternString returns the stable id for a string literal, registering it on
// first sight.
func (p *Program) InternString(s string) int {
	if id, ok := p.Strings.Get(s); ok {
		return id
	}
	id := p.nextStrID
	p.nextStrID++
	p.Strings.Put(s, id)
	return id
}

// FunctionNames returns every function name, used by passes that need a
// stable iteration order (Go map iteration is randomized; swiss.Map's is
// too, so callers needing determinism must sort this).
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, p.Functions.Count())
	p.Functions.Iter(func(k string, _ *Function) bool {
		names = append(names, k)
		return false
	})
	return names
}
