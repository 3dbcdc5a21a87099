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
	"testing"

	"github.com/onsi/ginkgo/v2"
	g "github.com/onsi/gomega"
)

func TestBitmasks(t *testing.T) {
	g.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Bitmask translation Suite")
}

var _ = ginkgo.Describe("throttleReasonsFromRaw", func() {
	ginkgo.It("should accept every documented reason", func() {
		reasons, err := throttleReasonsFromRaw(uint64(ThrottleReasonAll))
		g.Expect(err).ShouldNot(g.HaveOccurred())
		g.Expect(reasons.Has(ThrottleReasonDisplayClockSetting)).Should(g.BeTrue())
		g.Expect(reasons.Has(ThrottleReasonGpuIdle)).Should(g.BeTrue())
	})

	ginkgo.It("should accept no reason", func() {
		reasons, err := throttleReasonsFromRaw(0)
		g.Expect(err).ShouldNot(g.HaveOccurred())
		g.Expect(reasons).Should(g.Equal(ThrottleReasonNone))
		g.Expect(reasons.String()).Should(g.Equal("None"))
	})

	ginkgo.It("should report unknown bits", func() {
		_, err := throttleReasonsFromRaw(0x4 | 0x8000)
		var berr *IncorrectBitsError
		g.Expect(err).Should(g.BeAssignableToTypeOf(berr))
		g.Expect(err.(*IncorrectBitsError).Bits).Should(g.Equal(uint64(0x8000)))
	})

	ginkgo.It("should name set bits", func() {
		g.Expect((ThrottleReasonSwPowerCap | ThrottleReasonHwSlowdown).String()).Should(g.Equal("SwPowerCap|HwSlowdown"))
	})
})

var _ = ginkgo.Describe("eventTypesFromRaw", func() {
	ginkgo.It("should accept documented events", func() {
		events, err := eventTypesFromRaw(0x8 | 0x100)
		g.Expect(err).ShouldNot(g.HaveOccurred())
		g.Expect(events.Has(EventTypeCriticalXidError)).Should(g.BeTrue())
		g.Expect(events.Has(EventTypeMigConfigChange)).Should(g.BeTrue())
		g.Expect(events.Has(EventTypeClock)).Should(g.BeFalse())
		g.Expect(events.String()).Should(g.Equal("CriticalXidError|MigConfigChange"))
	})

	ginkgo.It("should reject the gap between Clock and PowerSourceChange", func() {
		_, err := eventTypesFromRaw(0x20)
		g.Expect(err).Should(g.HaveOccurred())
		g.Expect(IsNativeError(err)).Should(g.BeFalse())
	})
})

var _ = ginkgo.Describe("packetTypesFromRaw", func() {
	ginkgo.It("should accept All", func() {
		packets, err := packetTypesFromRaw(0xff)
		g.Expect(err).ShouldNot(g.HaveOccurred())
		g.Expect(packets).Should(g.Equal(PacketTypeAll))
		g.Expect(packets.String()).Should(g.Equal("All"))
	})

	ginkgo.It("should reject bits above All", func() {
		_, err := packetTypesFromRaw(0x100)
		g.Expect(err).Should(g.HaveOccurred())
	})
})
