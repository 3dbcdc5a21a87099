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
	"github.com/ccoveille/go-safecast"
)

// NvLink is one NvLink of a device.
type NvLink struct {
	device *Device
	link   uint32
}

// Device returns the device the link belongs to.
func (n *NvLink) Device() *Device {
	return n.device
}

// Link returns the link index.
func (n *NvLink) Link() uint32 {
	return n.link
}

func (n *NvLink) lib() *Library {
	return n.device.lib
}

func (n *NvLink) raw() nvml.Device {
	return n.device.raw
}

func (n *NvLink) index() (int, error) {
	return safecast.ToInt(n.link)
}

func (n *NvLink) counterIndex(counter NvLinkCounter) (int, int, error) {
	link, err := n.index()
	if err != nil {
		return 0, 0, err
	}
	c, err := safecast.ToInt(uint32(counter))
	if err != nil {
		return 0, 0, err
	}
	return link, c, nil
}

// IsActive reports whether the link is up.
func (n *NvLink) IsActive() (bool, error) {
	link, err := n.index()
	if err != nil {
		return false, err
	}
	return toBool(call(n.lib(), func() (nvml.EnableState, nvml.Return) {
		return n.raw().GetNvLinkState(link)
	}))
}

func (n *NvLink) Version() (uint32, error) {
	link, err := n.index()
	if err != nil {
		return 0, err
	}
	return call(n.lib(), func() (uint32, nvml.Return) { return n.raw().GetNvLinkVersion(link) })
}

func (n *NvLink) HasCapability(capability NvLinkCapability) (bool, error) {
	link, err := n.index()
	if err != nil {
		return false, err
	}
	v, err := call(n.lib(), func() (uint32, nvml.Return) {
		return n.raw().GetNvLinkCapability(link, nvml.NvLinkCapability(capability))
	})
	if err != nil {
		return false, err
	}
	return boolFromUint(v), nil
}

// RemotePciInfo describes the device on the other end of the link. The library
// does not fill in the sub system id here, so PciSubSystemID is always nil.
func (n *NvLink) RemotePciInfo() (PciInfo, error) {
	link, err := n.index()
	if err != nil {
		return PciInfo{}, err
	}
	raw, err := call(n.lib(), func() (nvml.PciInfo, nvml.Return) {
		return n.raw().GetNvLinkRemotePciInfo(link)
	})
	if err != nil {
		return PciInfo{}, err
	}
	return PciInfoFromRaw(raw, false)
}

func (n *NvLink) ErrorCounter(counter NvLinkErrorCounter) (uint64, error) {
	link, err := n.index()
	if err != nil {
		return 0, err
	}
	return call(n.lib(), func() (uint64, nvml.Return) {
		return n.raw().GetNvLinkErrorCounter(link, nvml.NvLinkErrorCounter(counter))
	})
}

// ResetErrorCounters zeroes every error counter of the link.
func (n *NvLink) ResetErrorCounters() error {
	link, err := n.index()
	if err != nil {
		return err
	}
	return call0(n.lib(), func() nvml.Return { return n.raw().ResetNvLinkErrorCounters(link) })
}

// SetUtilizationControl configures counter. When resetCounters is true the
// counter is also zeroed.
func (n *NvLink) SetUtilizationControl(counter NvLinkCounter, settings UtilizationControl, resetCounters bool) error {
	link, c, err := n.counterIndex(counter)
	if err != nil {
		return err
	}
	raw := settings.toRaw()
	return call0(n.lib(), func() nvml.Return {
		return n.raw().SetNvLinkUtilizationControl(link, c, &raw, resetCounters)
	})
}

func (n *NvLink) UtilizationControl(counter NvLinkCounter) (UtilizationControl, error) {
	link, c, err := n.counterIndex(counter)
	if err != nil {
		return UtilizationControl{}, err
	}
	raw, err := call(n.lib(), func() (nvml.NvLinkUtilizationControl, nvml.Return) {
		return n.raw().GetNvLinkUtilizationControl(link, c)
	})
	if err != nil {
		return UtilizationControl{}, err
	}
	return utilizationControlFromRaw(raw)
}

// UtilizationCounter reads counter in the units it was configured with.
func (n *NvLink) UtilizationCounter(counter NvLinkCounter) (UtilizationCounter, error) {
	link, c, err := n.counterIndex(counter)
	if err != nil {
		return UtilizationCounter{}, err
	}
	rx, tx, err := call2(n.lib(), func() (uint64, uint64, nvml.Return) {
		return n.raw().GetNvLinkUtilizationCounter(link, c)
	})
	if err != nil {
		return UtilizationCounter{}, err
	}
	return UtilizationCounter{Receive: rx, Send: tx}, nil
}

func (n *NvLink) setFrozen(counter NvLinkCounter, frozen bool) error {
	link, c, err := n.counterIndex(counter)
	if err != nil {
		return err
	}
	return call0(n.lib(), func() nvml.Return {
		return n.raw().FreezeNvLinkUtilizationCounter(link, c, stateFromBool(frozen))
	})
}

// FreezeUtilizationCounter stops counter from counting.
func (n *NvLink) FreezeUtilizationCounter(counter NvLinkCounter) error {
	return n.setFrozen(counter, true)
}

func (n *NvLink) UnfreezeUtilizationCounter(counter NvLinkCounter) error {
	return n.setFrozen(counter, false)
}

func (n *NvLink) ResetUtilizationCounter(counter NvLinkCounter) error {
	link, c, err := n.counterIndex(counter)
	if err != nil {
		return err
	}
	return call0(n.lib(), func() nvml.Return { return n.raw().ResetNvLinkUtilizationCounter(link, c) })
}
