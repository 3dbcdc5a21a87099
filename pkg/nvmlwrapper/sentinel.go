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

// Sentinels the native library uses to say "not available".
const (
	valueNotAvailable32 = ^uint32(0)
	valueNotAvailable64 = ^uint64(0)
	// invalidInstanceID marks GPU/compute instance ids when MIG is disabled.
	invalidInstanceID = ^uint32(0)
	// firmwareUnavailable is the bridge chip firmware version for "unknown".
	firmwareUnavailable = uint32(0)
)

// optional maps exactly the sentinel to nil and every other value, zero
// included, to a pointer to that value.
func optional[T comparable](v, sentinel T) *T {
	if v == sentinel {
		return nil
	}
	return &v
}

// orSentinel is the reverse of optional.
func orSentinel[T comparable](v *T, sentinel T) T {
	if v == nil {
		return sentinel
	}
	return *v
}
