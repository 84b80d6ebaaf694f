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

import "fmt"

// RuntimeError is everything the dispatch loop can fail with: an
// out-of-range ip, a type mismatch in an arithmetic/compare op, integer
// division by zero, field access on a non-object, or a bad array index. It
// carries the machine's ip at the moment of failure so a --dump listing can
// be correlated against it: dispatch advances ip before executing, so this
// is one past the failing instruction (for an out-of-range ip, the ip
// itself).
type RuntimeError struct {
	IP      int
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at ip=%d: %s", e.IP, e.Message)
}

func (m *Machine) errorf(format string, args ...any) error {
	return &RuntimeError{IP: m.ip, Message: fmt.Sprintf(format, args...)}
}
