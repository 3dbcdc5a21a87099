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

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Errors reported by the native library. Use errors.Is to test for them.
var (
	ErrUninitialized           = errors.New("nvml: library has not been successfully initialized")
	ErrInvalidArgument         = errors.New("nvml: a supplied argument is invalid")
	ErrNotSupported            = errors.New("nvml: the requested operation is not available on the target device")
	ErrInsufficientMemory      = errors.New("nvml: ran out of critical resources")
	ErrNoPermission            = errors.New("nvml: the current user does not have permission for the operation")
	ErrAlreadyInitialized      = errors.New("nvml: library has already been initialized")
	ErrNotFound                = errors.New("nvml: a query to find an object was unsuccessful")
	ErrInsufficientSize        = errors.New("nvml: an input argument is not large enough")
	ErrInsufficientPower       = errors.New("nvml: a device's external power cables are not properly attached")
	ErrDriverNotLoaded         = errors.New("nvml: NVIDIA driver is not loaded")
	ErrTimeout                 = errors.New("nvml: user provided timeout passed")
	ErrIrqIssue                = errors.New("nvml: NVIDIA kernel detected an interrupt issue with a GPU")
	ErrLibraryNotFound         = errors.New("nvml: NVML shared library couldn't be found or loaded")
	ErrFunctionNotFound        = errors.New("nvml: local version of NVML doesn't implement this function")
	ErrCorruptedInfoROM        = errors.New("nvml: infoROM is corrupted")
	ErrGpuIsLost               = errors.New("nvml: the GPU has fallen off the bus or has otherwise become inaccessible")
	ErrResetRequired           = errors.New("nvml: the GPU requires a reset before it can be used again")
	ErrOperatingSystem         = errors.New("nvml: the GPU control device has been blocked by the operating system/cgroups")
	ErrLibRmVersionMismatch    = errors.New("nvml: RM detects a driver/library version mismatch")
	ErrInUse                   = errors.New("nvml: an operation cannot be performed because the GPU is currently in use")
	ErrMemory                  = errors.New("nvml: insufficient memory")
	ErrNoData                  = errors.New("nvml: no data")
	ErrVgpuEccNotSupported     = errors.New("nvml: the requested vgpu operation is not available on target device, because ECC is enabled")
	ErrFreqNotSupported        = errors.New("nvml: the requested frequency is not supported")
	ErrArgumentVersionMismatch = errors.New("nvml: the provided version is invalid/unsupported")
	ErrDeprecated              = errors.New("nvml: the requested functionality has been deprecated")
	ErrNotReady                = errors.New("nvml: the system is not ready for the request")
	ErrGpuNotFound             = errors.New("nvml: no GPUs were found")
	ErrInvalidState            = errors.New("nvml: resource not in correct state to perform requested operation")
	ErrUnknown                 = errors.New("nvml: an internal driver error occurred")
)

// Errors produced while translating data returned by the native library.
var (
	ErrNulInString = errors.New("nvml: string contains an interior NUL byte")
)

var returnErrors = map[nvml.Return]error{
	nvml.ERROR_UNINITIALIZED:             ErrUninitialized,
	nvml.ERROR_INVALID_ARGUMENT:          ErrInvalidArgument,
	nvml.ERROR_NOT_SUPPORTED:             ErrNotSupported,
	nvml.ERROR_NO_PERMISSION:             ErrNoPermission,
	nvml.ERROR_ALREADY_INITIALIZED:       ErrAlreadyInitialized,
	nvml.ERROR_NOT_FOUND:                 ErrNotFound,
	nvml.ERROR_INSUFFICIENT_SIZE:         ErrInsufficientSize,
	nvml.ERROR_INSUFFICIENT_POWER:        ErrInsufficientPower,
	nvml.ERROR_DRIVER_NOT_LOADED:         ErrDriverNotLoaded,
	nvml.ERROR_TIMEOUT:                   ErrTimeout,
	nvml.ERROR_IRQ_ISSUE:                 ErrIrqIssue,
	nvml.ERROR_LIBRARY_NOT_FOUND:         ErrLibraryNotFound,
	nvml.ERROR_FUNCTION_NOT_FOUND:        ErrFunctionNotFound,
	nvml.ERROR_CORRUPTED_INFOROM:         ErrCorruptedInfoROM,
	nvml.ERROR_GPU_IS_LOST:               ErrGpuIsLost,
	nvml.ERROR_RESET_REQUIRED:            ErrResetRequired,
	nvml.ERROR_OPERATING_SYSTEM:          ErrOperatingSystem,
	nvml.ERROR_LIB_RM_VERSION_MISMATCH:   ErrLibRmVersionMismatch,
	nvml.ERROR_IN_USE:                    ErrInUse,
	nvml.ERROR_MEMORY:                    ErrMemory,
	nvml.ERROR_NO_DATA:                   ErrNoData,
	nvml.ERROR_VGPU_ECC_NOT_SUPPORTED:    ErrVgpuEccNotSupported,
	nvml.ERROR_INSUFFICIENT_RESOURCES:    ErrInsufficientMemory,
	nvml.ERROR_FREQ_NOT_SUPPORTED:        ErrFreqNotSupported,
	nvml.ERROR_ARGUMENT_VERSION_MISMATCH: ErrArgumentVersionMismatch,
	nvml.ERROR_DEPRECATED:                ErrDeprecated,
	nvml.ERROR_NOT_READY:                 ErrNotReady,
	nvml.ERROR_GPU_NOT_FOUND:             ErrGpuNotFound,
	nvml.ERROR_INVALID_STATE:             ErrInvalidState,
	nvml.ERROR_UNKNOWN:                   ErrUnknown,
}

// Error is a non-success status code returned by the native library.
type Error struct {
	Code nvml.Return
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (code %d)", e.err, int32(e.Code))
}

func (e *Error) Unwrap() error {
	return e.err
}

// UnexpectedVariantError is returned when the native library hands back a value
// outside of the set documented for the type it claims to be.
type UnexpectedVariantError struct {
	Type  string
	Value int64
}

func (e *UnexpectedVariantError) Error() string {
	return fmt.Sprintf("nvml: unexpected %s variant %d", e.Type, e.Value)
}

// Utf8Error is returned when a NUL-terminated buffer does not hold valid UTF-8.
type Utf8Error struct {
	Bytes []byte
}

func (e *Utf8Error) Error() string {
	return fmt.Sprintf("nvml: invalid UTF-8 in string buffer %q", e.Bytes)
}

// StringTooLongError is returned when a string, NUL terminator included, does not
// fit the fixed-size buffer of the native structure.
type StringTooLongError struct {
	Max int
	Len int
}

func (e *StringTooLongError) Error() string {
	return fmt.Sprintf("nvml: string of %d bytes does not fit buffer of %d bytes", e.Len, e.Max)
}

// IncorrectBitsError is returned when a bitmask has bits set that have no meaning.
type IncorrectBitsError struct {
	Type string
	Bits uint64
}

func (e *IncorrectBitsError) Error() string {
	return fmt.Sprintf("nvml: %s bitmask has unknown bits set: %#x", e.Type, e.Bits)
}

// FromReturn translates a status code into an error. SUCCESS yields nil. Codes not
// known to this package yield an *UnexpectedVariantError carrying the raw value.
func FromReturn(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	if err, ok := returnErrors[ret]; ok {
		return &Error{Code: ret, err: err}
	}
	return &UnexpectedVariantError{Type: "nvmlReturn_t", Value: int64(ret)}
}

// IsNativeError reports whether err is a status reported by the native library, as
// opposed to a failure to translate the data it returned.
func IsNativeError(err error) bool {
	var nerr *Error
	return errors.As(err, &nerr)
}

// IsUnavailable reports whether err means the value does not exist on this
// device or driver, as opposed to the query having failed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotSupported) ||
		errors.Is(err, ErrNoPermission) ||
		errors.Is(err, ErrFunctionNotFound) ||
		errors.Is(err, ErrNoData)
}

func uninitialized() error {
	return &Error{Code: nvml.ERROR_UNINITIALIZED, err: ErrUninitialized}
}

func alreadyInitialized() error {
	return &Error{Code: nvml.ERROR_ALREADY_INITIALIZED, err: ErrAlreadyInitialized}
}
