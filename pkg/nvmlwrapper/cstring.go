/*
Copyright 2025 The HAMi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nvmlwrapper

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// cchar covers the element types c-for-go emits for C char arrays.
type cchar interface {
	~int8 | ~uint8
}

// stringFromBuffer decodes a NUL-terminated C string held in a fixed-size
// buffer. A buffer without a terminator is decoded in full; nothing past its end
// is ever read.
func stringFromBuffer[T cchar](buf []T) (string, error) {
	raw := make([]byte, len(buf))
	for i, c := range buf {
		raw[i] = byte(c)
	}
	if n := bytes.IndexByte(raw, 0); n >= 0 {
		raw = raw[:n]
	}
	if !utf8.Valid(raw) {
		return "", &Utf8Error{Bytes: raw}
	}
	return string(raw), nil
}

// bufferFromString writes s into buf followed by a NUL terminator and zero-fills
// whatever is left. It never truncates: s must leave room for the terminator.
func bufferFromString[T cchar](s string, buf []T) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrNulInString
	}
	if len(s)+1 > len(buf) {
		return &StringTooLongError{Max: len(buf), Len: len(s) + 1}
	}
	for i := range buf {
		if i < len(s) {
			buf[i] = T(s[i])
		} else {
			buf[i] = 0
		}
	}
	return nil
}
