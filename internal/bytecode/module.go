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

// FuncEntry records one compiled function's shape within the module: its
// entry offset into Code, how many arguments it takes, how many local slots
// its frame reserves (arguments occupy the first Params of them), and its
// source name for diagnostics.
type FuncEntry struct {
	Name   string
	Entry  int
	Params int
	Locals int
}

// Module is the flat compiled program: one instruction stream shared by
// every function, a constant pool, a global-name table, and a function
// table whose entries are offsets into Code. EntryOffset is where execution
// begins; the compiler leaves it at 0, the head of Code, where top-level
// const initializers run first, followed by the synthesized "call main,
// halt" stub when a main function exists.
type Module struct {
	Code        []Inst
	Consts      []Val
	Globals     []string
	Fields      []string
	Funcs       []FuncEntry
	Natives     []string
	EntryOffset int
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) addConst(v Val) int {
	m.Consts = append(m.Consts, v)
	return len(m.Consts) - 1
}

func (m *Module) globalIndex(name string) int {
	for i, g := range m.Globals {
		if g == name {
			return i
		}
	}
	m.Globals = append(m.Globals, name)
	return len(m.Globals) - 1
}

func (m *Module) fieldIndex(name string) int {
	for i, f := range m.Fields {
		if f == name {
			return i
		}
	}
	m.Fields = append(m.Fields, name)
	return len(m.Fields) - 1
}

func (m *Module) nativeIndex(name string) int {
	for i, n := range m.Natives {
		if n == name {
			return i
		}
	}
	m.Natives = append(m.Natives, name)
	return len(m.Natives) - 1
}

func (m *Module) emit(i Inst) int {
	m.Code = append(m.Code, i)
	return len(m.Code) - 1
}

// patch rewrites a previously emitted Jump/JumpIfFalse/JumpIfTrue's target
// to target, used both for forward branches (if/while exits) and for
// break/continue sites recorded in a loopCtx.
func (m *Module) patch(at int, target int) {
	m.Code[at].Target = target
}

func (m *Module) here() int { return len(m.Code) }
