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
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// SampleValueType is the tag that selects the member of a sample union.
type SampleValueType uint32

const (
	SampleValueTypeDouble SampleValueType = iota
	SampleValueTypeUnsignedInt
	SampleValueTypeUnsignedLong
	SampleValueTypeUnsignedLongLong
	SampleValueTypeSignedLongLong
	SampleValueTypeSignedInt
	SampleValueTypeUnsignedShort
)

var sampleValueTypeNames = []string{
	"Double", "UnsignedInt", "UnsignedLong", "UnsignedLongLong", "SignedLongLong", "SignedInt",
	"UnsignedShort",
}

func (t SampleValueType) String() string {
	return enumString(sampleValueTypeNames, uint32(t), "SampleValueType")
}

// SampleValue is one decoded member of the native sample union. It is one of
// Float64Value, Uint32Value, UlongValue, Uint64Value, Int64Value, Int32Value or
// Uint16Value.
type SampleValue interface {
	Type() SampleValueType
	// Float64 converts the value for consumers that do not care about its type.
	Float64() float64
}

type (
	Float64Value float64
	Uint32Value  uint32
	// UlongValue holds a C unsigned long, which is 32 bits wide on Windows.
	UlongValue  uint64
	Uint64Value uint64
	Int64Value  int64
	Int32Value  int32
	Uint16Value uint16
)

func (Float64Value) Type() SampleValueType { return SampleValueTypeDouble }
func (Uint32Value) Type() SampleValueType  { return SampleValueTypeUnsignedInt }
func (UlongValue) Type() SampleValueType   { return SampleValueTypeUnsignedLong }
func (Uint64Value) Type() SampleValueType  { return SampleValueTypeUnsignedLongLong }
func (Int64Value) Type() SampleValueType   { return SampleValueTypeSignedLongLong }
func (Int32Value) Type() SampleValueType   { return SampleValueTypeSignedInt }
func (Uint16Value) Type() SampleValueType  { return SampleValueTypeUnsignedShort }

func (v Float64Value) Float64() float64 { return float64(v) }
func (v Uint32Value) Float64() float64  { return float64(v) }
func (v UlongValue) Float64() float64   { return float64(v) }
func (v Uint64Value) Float64() float64  { return float64(v) }
func (v Int64Value) Float64() float64   { return float64(v) }
func (v Int32Value) Float64() float64   { return float64(v) }
func (v Uint16Value) Float64() float64  { return float64(v) }

// SampleValueFromRaw decodes the union bytes according to tag. At most the eight
// bytes of the union are read, whatever the tag says.
func SampleValueFromRaw(tag nvml.ValueType, raw [8]byte) (SampleValue, error) {
	switch int64(tag) {
	case int64(SampleValueTypeDouble):
		return Float64Value(math.Float64frombits(binary.NativeEndian.Uint64(raw[:]))), nil
	case int64(SampleValueTypeUnsignedInt):
		return Uint32Value(binary.NativeEndian.Uint32(raw[:4])), nil
	case int64(SampleValueTypeUnsignedLong):
		return ulongFromBytes(raw), nil
	case int64(SampleValueTypeUnsignedLongLong):
		return Uint64Value(binary.NativeEndian.Uint64(raw[:])), nil
	case int64(SampleValueTypeSignedLongLong):
		return Int64Value(int64(binary.NativeEndian.Uint64(raw[:]))), nil
	case int64(SampleValueTypeSignedInt):
		return Int32Value(int32(binary.NativeEndian.Uint32(raw[:4]))), nil
	case int64(SampleValueTypeUnsignedShort):
		return Uint16Value(binary.NativeEndian.Uint16(raw[:2])), nil
	}
	return nil, &UnexpectedVariantError{Type: "nvmlValueType_t", Value: int64(tag)}
}

func ulongFromBytes(raw [8]byte) UlongValue {
	if ulongSize == 4 {
		return UlongValue(binary.NativeEndian.Uint32(raw[:4]))
	}
	return UlongValue(binary.NativeEndian.Uint64(raw[:]))
}

// Sample is one entry of a device sample buffer.
type Sample struct {
	// Timestamp is a CPU timestamp in microseconds.
	Timestamp uint64
	Value     SampleValue
}

func samplesFromRaw(tag nvml.ValueType, raw []nvml.Sample) ([]Sample, error) {
	samples := make([]Sample, 0, len(raw))
	for _, s := range raw {
		v, err := SampleValueFromRaw(tag, s.SampleValue)
		if err != nil {
			return nil, err
		}
		samples = append(samples, Sample{Timestamp: s.TimeStamp, Value: v})
	}
	return samples, nil
}

// FieldID identifies a device field, see the NVML_FI_* constants of go-nvml.
type FieldID uint32

// FieldValue is the result of reading one field. Err is set when the library
// failed to read this field or its value could not be decoded.
type FieldValue struct {
	FieldID FieldID
	ScopeID uint32
	// Timestamp is a CPU timestamp in microseconds.
	Timestamp int64
	Latency   time.Duration
	Value     SampleValue
	Err       error
}

func (f FieldValue) String() string {
	if f.Err != nil {
		return fmt.Sprintf("field %d: %v", f.FieldID, f.Err)
	}
	return fmt.Sprintf("field %d: %v", f.FieldID, f.Value)
}

func fieldValueFromRaw(raw nvml.FieldValue) FieldValue {
	fv := FieldValue{
		FieldID:   FieldID(raw.FieldId),
		ScopeID:   raw.ScopeId,
		Timestamp: raw.Timestamp,
		Latency:   time.Duration(raw.LatencyUsec) * time.Microsecond,
	}
	if fv.Err = FromReturn(nvml.Return(raw.NvmlReturn)); fv.Err != nil {
		return fv
	}
	fv.Value, fv.Err = SampleValueFromRaw(nvml.ValueType(raw.ValueType), raw.Value)
	return fv
}
