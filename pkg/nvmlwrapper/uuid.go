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
	"strings"

	"github.com/google/uuid"
)

// ParseDeviceUUID parses a device or MIG instance UUID as reported by the
// library, with or without its "GPU-" or "MIG-" prefix.
func ParseDeviceUUID(s string) (uuid.UUID, error) {
	for _, prefix := range []string{"GPU-", "MIG-"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = rest
			break
		}
	}
	return uuid.Parse(s)
}
