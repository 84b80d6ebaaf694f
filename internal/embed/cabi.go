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

import "sync"

// Handle is the opaque engine reference the C ABI hands a host: a small
// integer rather than a raw pointer, so a misbehaving host can never hand
// back a stale or forged address for us to dereference. A cgo-exported
// shim (built as a separate c-shared main package) forwards
// script_engine_new/free/compile/run/set_int/set_float/get_int/get_float
// straight onto the functions below, translating C strings at the
// boundary; everything past that boundary is pure Go.
type Handle int64

var (
	handlesMu sync.Mutex
	handles   = map[Handle]*Engine{}
	nextID    Handle
)

// ScriptEngineNew allocates a new Engine and returns its handle.
func ScriptEngineNew() Handle {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	nextID++
	handles[nextID] = New()
	return nextID
}

// ScriptEngineFree releases a handle. Freeing an unknown or already-freed
// handle is a no-op, matching the original source's tolerant double-free
// behavior.
func ScriptEngineFree(h Handle) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	delete(handles, h)
}

func lookup(h Handle) *Engine {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	return handles[h]
}

// ScriptEngineCompile compiles source under name on h's engine. Returns 0
// on success, -1 on an unknown handle or a compile error.
func ScriptEngineCompile(h Handle, name, source string) int32 {
	e := lookup(h)
	if e == nil {
		return -1
	}
	if err := e.Compile(name, source); err != nil {
		return -1
	}
	return 0
}

// ScriptEngineRun runs h's compiled module. Returns 0 on success, -1 on an
// unknown handle, nothing compiled, or a runtime error.
func ScriptEngineRun(h Handle) int32 {
	e := lookup(h)
	if e == nil {
		return -1
	}
	if _, err := e.Run(); err != nil {
		return -1
	}
	return 0
}

// ScriptEngineSetInt and ScriptEngineSetFloat stage a global override.
// Returns 0 on success, -1 on an unknown handle.
func ScriptEngineSetInt(h Handle, name string, v int64) int32 {
	e := lookup(h)
	if e == nil {
		return -1
	}
	e.SetInt(name, v)
	return 0
}

func ScriptEngineSetFloat(h Handle, name string, v float64) int32 {
	e := lookup(h)
	if e == nil {
		return -1
	}
	e.SetFloat(name, v)
	return 0
}

// ScriptEngineGetInt and ScriptEngineGetFloat read a global back out after
// Run. ok is false on an unknown handle, no completed run, or no such
// global; callers treat !ok the same way the C ABI treats a -1 return.
func ScriptEngineGetInt(h Handle, name string) (v int64, ok bool) {
	e := lookup(h)
	if e == nil {
		return 0, false
	}
	n, err := e.GetInt(name)
	return n, err == nil
}

func ScriptEngineGetFloat(h Handle, name string) (v float64, ok bool) {
	e := lookup(h)
	if e == nil {
		return 0, false
	}
	f, err := e.GetFloat(name)
	return f, err == nil
}
