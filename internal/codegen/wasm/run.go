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

package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Run instantiates an Emit-produced module on a fresh wazero runtime,
// wiring env.print_int to append to the returned log, and invokes the
// named export. It exists mainly to round-trip this package's own output:
// callers that only want to emit bytes never need to touch wazero.
func Run(ctx context.Context, binary []byte, funcName string, args ...uint64) (results []uint64, printed []int64, err error) {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	_, err = r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, v int64) {
			printed = append(printed, v)
		}).
		Export("print_int").
		Instantiate(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("wasm: instantiate host module: %w", err)
	}

	mod, err := r.Instantiate(ctx, binary)
	if err != nil {
		return nil, nil, fmt.Errorf("wasm: instantiate module: %w", err)
	}

	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return nil, nil, fmt.Errorf("wasm: no exported function %q", funcName)
	}

	results, err = fn.Call(ctx, args...)
	if err != nil {
		return nil, printed, fmt.Errorf("wasm: call %s: %w", funcName, err)
	}
	return results, printed, nil
}
