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
	"errors"
	"fmt"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/require"
)

func TestFromReturn(t *testing.T) {
	testCases := []struct {
		code     nvml.Return
		expected error
	}{
		{nvml.ERROR_UNINITIALIZED, ErrUninitialized},
		{nvml.ERROR_INVALID_ARGUMENT, ErrInvalidArgument},
		{nvml.ERROR_NOT_SUPPORTED, ErrNotSupported},
		{nvml.ERROR_NO_PERMISSION, ErrNoPermission},
		{nvml.ERROR_ALREADY_INITIALIZED, ErrAlreadyInitialized},
		{nvml.ERROR_NOT_FOUND, ErrNotFound},
		{nvml.ERROR_INSUFFICIENT_SIZE, ErrInsufficientSize},
		{nvml.ERROR_INSUFFICIENT_POWER, ErrInsufficientPower},
		{nvml.ERROR_DRIVER_NOT_LOADED, ErrDriverNotLoaded},
		{nvml.ERROR_TIMEOUT, ErrTimeout},
		{nvml.ERROR_IRQ_ISSUE, ErrIrqIssue},
		{nvml.ERROR_LIBRARY_NOT_FOUND, ErrLibraryNotFound},
		{nvml.ERROR_FUNCTION_NOT_FOUND, ErrFunctionNotFound},
		{nvml.ERROR_CORRUPTED_INFOROM, ErrCorruptedInfoROM},
		{nvml.ERROR_GPU_IS_LOST, ErrGpuIsLost},
		{nvml.ERROR_RESET_REQUIRED, ErrResetRequired},
		{nvml.ERROR_OPERATING_SYSTEM, ErrOperatingSystem},
		{nvml.ERROR_LIB_RM_VERSION_MISMATCH, ErrLibRmVersionMismatch},
		{nvml.ERROR_IN_USE, ErrInUse},
		{nvml.ERROR_MEMORY, ErrMemory},
		{nvml.ERROR_NO_DATA, ErrNoData},
		{nvml.ERROR_VGPU_ECC_NOT_SUPPORTED, ErrVgpuEccNotSupported},
		{nvml.ERROR_INSUFFICIENT_RESOURCES, ErrInsufficientMemory},
		{nvml.ERROR_FREQ_NOT_SUPPORTED, ErrFreqNotSupported},
		{nvml.ERROR_ARGUMENT_VERSION_MISMATCH, ErrArgumentVersionMismatch},
		{nvml.ERROR_DEPRECATED, ErrDeprecated},
		{nvml.ERROR_NOT_READY, ErrNotReady},
		{nvml.ERROR_GPU_NOT_FOUND, ErrGpuNotFound},
		{nvml.ERROR_INVALID_STATE, ErrInvalidState},
		{nvml.ERROR_UNKNOWN, ErrUnknown},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("code %d", int32(tc.code)), func(t *testing.T) {
			err := FromReturn(tc.code)
			require.ErrorIs(t, err, tc.expected)
			require.True(t, IsNativeError(err))

			var nerr *Error
			require.ErrorAs(t, err, &nerr)
			require.Equal(t, tc.code, nerr.Code)
		})
	}
}

func TestFromReturnSuccess(t *testing.T) {
	require.NoError(t, FromReturn(nvml.SUCCESS))
}

func TestFromReturnUnknownCode(t *testing.T) {
	for _, code := range []nvml.Return{-1, 100, 500, 998} {
		err := FromReturn(code)
		require.Error(t, err)
		require.False(t, IsNativeError(err))

		var verr *UnexpectedVariantError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "nvmlReturn_t", verr.Type)
		require.Equal(t, int64(code), verr.Value)
	}
}

func TestErrorWrapping(t *testing.T) {
	err := fmt.Errorf("querying device 0: %w", FromReturn(nvml.ERROR_GPU_IS_LOST))
	require.ErrorIs(t, err, ErrGpuIsLost)
	require.False(t, errors.Is(err, ErrUnknown))
	require.True(t, IsNativeError(err))
	require.Contains(t, err.Error(), "code 15")
}

func TestTranslationErrorsAreNotNative(t *testing.T) {
	for _, err := range []error{
		ErrNulInString,
		&Utf8Error{Bytes: []byte{0xff}},
		&StringTooLongError{Max: 32, Len: 33},
		&IncorrectBitsError{Type: "nvmlEventType", Bits: 0x20},
		&UnexpectedVariantError{Type: "nvmlBrandType_t", Value: 99},
	} {
		require.False(t, IsNativeError(err), err.Error())
	}
}

func TestIsUnavailable(t *testing.T) {
	for code, expected := range map[nvml.Return]bool{
		nvml.ERROR_NOT_SUPPORTED:      true,
		nvml.ERROR_NO_PERMISSION:      true,
		nvml.ERROR_FUNCTION_NOT_FOUND: true,
		nvml.ERROR_NO_DATA:            true,
		nvml.ERROR_GPU_IS_LOST:        false,
		nvml.ERROR_UNINITIALIZED:      false,
	} {
		require.Equal(t, expected, IsUnavailable(fmt.Errorf("wrapped: %w", FromReturn(code))), "code %d", code)
	}
	require.False(t, IsUnavailable(nil))
}
