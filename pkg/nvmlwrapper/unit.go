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

// Unit is an S-class unit, an external enclosure housing several GPUs.
type Unit struct {
	lib *Library
	raw nvml.Unit
}

func (u *Unit) Info() (UnitInfo, error) {
	raw, err := call(u.lib, u.raw.GetUnitInfo)
	if err != nil {
		return UnitInfo{}, err
	}
	return unitInfoFromRaw(raw)
}

func (u *Unit) LedState() (LedState, error) {
	raw, err := call(u.lib, u.raw.GetLedState)
	if err != nil {
		return LedState{}, err
	}
	return ledStateFromRaw(raw)
}

// SetLedColor sets the LED of the unit. Only Green and Amber are accepted.
func (u *Unit) SetLedColor(color LedColor) error {
	return call0(u.lib, func() nvml.Return { return u.raw.SetLedState(nvml.LedColor(color)) })
}

func (u *Unit) PsuInfo() (PsuInfo, error) {
	raw, err := call(u.lib, u.raw.GetPsuInfo)
	if err != nil {
		return PsuInfo{}, err
	}
	return psuInfoFromRaw(raw)
}

// Temperature returns degrees Celsius at the given location.
func (u *Unit) Temperature(location UnitTemperature) (uint32, error) {
	return call(u.lib, func() (uint32, nvml.Return) { return u.raw.GetTemperature(int(location)) })
}

func (u *Unit) FansInfo() (FansInfo, error) {
	raw, err := call(u.lib, u.raw.GetFanSpeedInfo)
	if err != nil {
		return FansInfo{}, err
	}
	return fansInfoFromRaw(raw)
}

// Devices lists the devices housed in the unit.
func (u *Unit) Devices() ([]*Device, error) {
	raw, err := call(u.lib, u.raw.GetDevices)
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, u.lib.newDevice(d))
	}
	return devices, nil
}
