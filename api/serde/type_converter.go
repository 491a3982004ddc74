// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serde

import (
	"fmt"
	"math"
	"reflect"
)

// TypeConverter narrows loosely typed decoded values (map[string]any,
// float64, int64, ...) into the concrete parameter types of workflow and
// activity functions.
type TypeConverter struct {
	serde BinarySerde
}

func NewTypeConverter(s BinarySerde) *TypeConverter {
	if s == nil {
		s = Default()
	}
	return &TypeConverter{serde: s}
}

func (tc *TypeConverter) ConvertToType(value any, targetType reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(targetType), nil
	}

	valueType := reflect.TypeOf(value)
	if valueType == targetType {
		return reflect.ValueOf(value), nil
	}

	if targetType.Kind() == reflect.Interface && valueType.Implements(targetType) {
		v := reflect.New(targetType).Elem()
		v.Set(reflect.ValueOf(value))
		return v, nil
	}

	if isNumericKind(valueType.Kind()) && isNumericKind(targetType.Kind()) {
		return convertNumeric(reflect.ValueOf(value), targetType)
	}

	// string <-> named string types and the like
	if valueType.Kind() == targetType.Kind() && valueType.ConvertibleTo(targetType) && isScalarKind(targetType.Kind()) {
		return reflect.ValueOf(value).Convert(targetType), nil
	}

	return tc.convertViaSerializer(value, targetType)
}

func convertNumeric(v reflect.Value, targetType reflect.Type) (reflect.Value, error) {
	out := reflect.New(targetType).Elem()
	overflow := fmt.Errorf("%v overflows %v", v.Interface(), targetType)

	switch {
	case isFloatKind(v.Kind()) && isIntegerKind(targetType.Kind()):
		f := v.Float()
		if f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("cannot convert %v to %v without losing precision", f, targetType)
		}
		if isUnsignedKind(targetType.Kind()) {
			if f < 0 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, overflow
			}
			out.SetUint(uint64(f))
		} else {
			if out.OverflowInt(int64(f)) {
				return reflect.Value{}, overflow
			}
			out.SetInt(int64(f))
		}
		return out, nil
	case isUnsignedKind(v.Kind()) && isIntegerKind(targetType.Kind()):
		u := v.Uint()
		if isUnsignedKind(targetType.Kind()) {
			if out.OverflowUint(u) {
				return reflect.Value{}, overflow
			}
			out.SetUint(u)
		} else {
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, overflow
			}
			out.SetInt(int64(u))
		}
		return out, nil
	case isIntegerKind(v.Kind()) && isIntegerKind(targetType.Kind()):
		i := v.Int()
		if isUnsignedKind(targetType.Kind()) {
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, overflow
			}
			out.SetUint(uint64(i))
		} else {
			if out.OverflowInt(i) {
				return reflect.Value{}, overflow
			}
			out.SetInt(i)
		}
		return out, nil
	default:
		return v.Convert(targetType), nil
	}
}

func (tc *TypeConverter) convertViaSerializer(value any, targetType reflect.Type) (reflect.Value, error) {
	data, err := tc.serde.SerializeBinary(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to serialize value for type conversion: %w", err)
	}

	isPtr := targetType.Kind() == reflect.Pointer
	elemType := targetType
	if isPtr {
		elemType = targetType.Elem()
	}
	target := reflect.New(elemType)
	if err := tc.serde.DeserializeBinary(data, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %v: %w", value, targetType, err)
	}
	if isPtr {
		return target, nil
	}
	return target.Elem(), nil
}

// ConvertSlice converts each element to targetElemType.
func (tc *TypeConverter) ConvertSlice(values []any, targetElemType reflect.Type) ([]reflect.Value, error) {
	result := make([]reflect.Value, len(values))
	for i, val := range values {
		converted, err := tc.ConvertToType(val, targetElemType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert element %d: %w", i, err)
		}
		result[i] = converted
	}
	return result, nil
}

func isNumericKind(k reflect.Kind) bool {
	return isIntegerKind(k) || isFloatKind(k)
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return isUnsignedKind(k)
}

func isUnsignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isScalarKind(k reflect.Kind) bool {
	return k == reflect.String || k == reflect.Bool
}
