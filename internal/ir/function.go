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

// InlineHint is FunctionAttributes.Inline's variant.
type InlineHint int

const (
	InlineNone InlineHint = iota
	InlineHintSet
	InlineAlways
)

// FunctionAttributes carries the hints the optimizer's inliner and the
// scheduler-less passes consult. NeverInline always wins over AlwaysInline.
type FunctionAttributes struct {
	Inline     InlineHint
	NoInline   bool
	Pure       bool
	ConstFn    bool
	Hot        bool
	Cold       bool
}

// AllowsInline reports whether this function may ever be a candidate for
// the inliner, honoring "never_inline wins over always_inline".
func (a FunctionAttributes) AllowsInline() bool {
	return !a.NoInline
}

// Param is a function parameter's name and type, as recorded on Function.
type Param struct {
	Name string
	Type Type
}

// Function is an IR function: name, parameters, return type, ordered
// blocks, local slot count, virtual register count, and attributes. Block 0
// is always the entry block.
type Function struct {
	Name       string
	Params     []Param
	ReturnType Type
	Blocks     []*BasicBlock
	NumLocals  int
	NumRegs    int
	Attrs      FunctionAttributes
}

func NewFunction(name string, params []Param, ret Type) *Function {
	return &Function{Name: name, Params: params, ReturnType: ret}
}

// NewBlock allocates and appends a fresh block, returning its id.
func (f *Function) NewBlock() int {
	id := len(f.Blocks)
	f.Blocks = append(f.Blocks, NewBasicBlock(id))
	return id
}

func (f *Function) Block(id int) *BasicBlock { return f.Blocks[id] }

func (f *Function) Entry() *BasicBlock { return f.Blocks[0] }

// NewReg allocates a fresh virtual register id.
func (f *Function) NewReg() int {
	id := f.NumRegs
	f.NumRegs++
	return id
}

// NewLocal allocates a fresh local slot, returning its index.
func (f *Function) NewLocal() int {
	id := f.NumLocals
	f.NumLocals++
	return id
}

// InstCount is the total instruction count across all blocks, used by the
// inliner's size threshold.
func (f *Function) InstCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Insts)
	}
	return n
}

// AllDefs returns, for every virtual register, the (block, index) of its
// single defining instruction. Used by SSA construction's def collection
// and by live-range analysis.
func (f *Function) AllDefs() map[int][2]int {
	defs := make(map[int][2]int)
	for _, b := range f.Blocks {
		for idx, inst := range b.Insts {
			if inst.Dst >= 0 {
				defs[inst.Dst] = [2]int{b.ID, idx}
			}
		}
	}
	return defs
}
