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
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// boolFromState translates an nvmlEnableState_t. Values other than disabled and
// enabled are reported rather than guessed at.
func boolFromState(state nvml.EnableState) (bool, error) {
	switch state {
	case nvml.FEATURE_DISABLED:
		return false, nil
	case nvml.FEATURE_ENABLED:
		return true, nil
	default:
		return false, &UnexpectedVariantError{Type: "nvmlEnableState_t", Value: int64(state)}
	}
}

func stateFromBool(enabled bool) nvml.EnableState {
	if enabled {
		return nvml.FEATURE_ENABLED
	}
	return nvml.FEATURE_DISABLED
}

// boolFromUint translates a bare integer documented as 0 or 1. Any nonzero
// value is true.
func boolFromUint[T ~uint32 | ~int](v T) bool {
	return v != 0
}
