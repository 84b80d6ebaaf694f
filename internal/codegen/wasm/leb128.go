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

// appendULEB128 appends v's unsigned LEB128 encoding, the integer form the
// binary format uses for every section/vector length and index.
func appendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

// appendSLEB128 appends v's signed LEB128 encoding, used by i32.const/
// i64.const immediates.
func appendSLEB128(buf []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		buf = append(buf, b)
	}
	return buf
}

// appendName appends a length-prefixed UTF-8 name, the encoding shared by
// import/export entries and the custom name section.
func appendName(buf []byte, s string) []byte {
	buf = appendULEB128(buf, uint64(len(s)))
	return append(buf, s...)
}

// vec length-prefixes a sequence of already-encoded items, the vector
// framing every section in the module uses.
func vec(items [][]byte) []byte {
	out := appendULEB128(nil, uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

// section wraps content in one module section: a one-byte id, a ULEB128
// byte length, then the content itself.
func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = appendULEB128(out, uint64(len(content)))
	return append(out, content...)
}
