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

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	mock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/require"
)

func newTestUnit(t *testing.T, unit *mock.Unit) *Unit {
	t.Helper()
	lib := newTestLibrary(t, &mock.Interface{
		UnitGetHandleByIndexFunc: func(int) (nvml.Unit, nvml.Return) { return unit, nvml.SUCCESS },
	})
	u, err := lib.UnitByIndex(0)
	require.NoError(t, err)
	return u
}

func TestUnitQueries(t *testing.T) {
	var info nvml.UnitInfo
	require.NoError(t, bufferFromString("S2050", info.Name[:]))
	require.NoError(t, bufferFromString("1", info.Id[:]))
	require.NoError(t, bufferFromString("0322711001234", info.Serial[:]))
	require.NoError(t, bufferFromString("6.2", info.FirmwareVersion[:]))

	var led nvml.LedState
	require.NoError(t, bufferFromString("PSU failure", led.Cause[:]))
	led.Color = 1

	var psu nvml.PSUInfo
	require.NoError(t, bufferFromString("Normal", psu.State[:]))
	psu.Current, psu.Voltage, psu.Power = 12, 220, 1200

	var fans nvml.UnitFanSpeeds
	fans.Count = 1
	fans.Fans[0] = nvml.UnitFanInfo{Speed: 3000}

	var color nvml.LedColor = 9
	device := &mock.Device{}
	u := newTestUnit(t, &mock.Unit{
		GetUnitInfoFunc:     func() (nvml.UnitInfo, nvml.Return) { return info, nvml.SUCCESS },
		GetLedStateFunc:     func() (nvml.LedState, nvml.Return) { return led, nvml.SUCCESS },
		GetPsuInfoFunc:      func() (nvml.PSUInfo, nvml.Return) { return psu, nvml.SUCCESS },
		GetFanSpeedInfoFunc: func() (nvml.UnitFanSpeeds, nvml.Return) { return fans, nvml.SUCCESS },
		GetTemperatureFunc: func(which int) (uint32, nvml.Return) {
			return uint32(30 + which), nvml.SUCCESS
		},
		GetDevicesFunc: func() ([]nvml.Device, nvml.Return) { return []nvml.Device{device}, nvml.SUCCESS },
		SetLedStateFunc: func(c nvml.LedColor) nvml.Return {
			color = c
			return nvml.SUCCESS
		},
	})

	gotInfo, err := u.Info()
	require.NoError(t, err)
	require.Equal(t, UnitInfo{FirmwareVersion: "6.2", ID: "1", Name: "S2050", Serial: "0322711001234"}, gotInfo)

	gotLed, err := u.LedState()
	require.NoError(t, err)
	require.Equal(t, LedState{Cause: "PSU failure", Color: LedColorAmber}, gotLed)

	gotPsu, err := u.PsuInfo()
	require.NoError(t, err)
	require.Equal(t, PsuInfo{Current: 12, Power: 1200, State: "Normal", Voltage: 220}, gotPsu)

	gotFans, err := u.FansInfo()
	require.NoError(t, err)
	require.Equal(t, FansInfo{Fans: []FanInfo{{Speed: 3000, State: FanStateNormal}}}, gotFans)

	temp, err := u.Temperature(UnitTemperatureBoard)
	require.NoError(t, err)
	require.Equal(t, uint32(32), temp)

	devices, err := u.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	require.NoError(t, u.SetLedColor(LedColorGreen))
	require.EqualValues(t, 0, color)
}

func TestUnitLedStateUnexpectedColor(t *testing.T) {
	u := newTestUnit(t, &mock.Unit{
		GetLedStateFunc: func() (nvml.LedState, nvml.Return) { return nvml.LedState{Color: 4}, nvml.SUCCESS },
	})
	_, err := u.LedState()
	var verr *UnexpectedVariantError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "nvmlLedColor_t", verr.Type)
}
