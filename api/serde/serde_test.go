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

package serde_test

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ngnhng/durableai/api/serde"
)

type stepOutput struct {
	Content   string   `json:"content"`
	WordCount int      `json:"word_count"`
	Points    []string `json:"points"`
}

type length string

func codecs() []struct {
	name  string
	serde serde.BinarySerde
} {
	return []struct {
		name  string
		serde serde.BinarySerde
	}{
		{"JSON", &serde.JsonSerde{}},
		{"MessagePack", &serde.MsgpackSerde{}},
	}
}

// roundTripAny mimics what a value looks like after travelling through
// history: decoded into an untyped interface.
func roundTripAny(t *testing.T, s serde.BinarySerde, v any) any {
	t.Helper()
	data, err := s.SerializeBinary(v)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var out any
	if err := s.DeserializeBinary(data, &out); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	return out
}

func TestTypeConverterRestoresConcreteTypes(t *testing.T) {
	for _, tc := range codecs() {
		t.Run(tc.name, func(t *testing.T) {
			conv := serde.NewTypeConverter(tc.serde)

			want := stepOutput{Content: "C", WordCount: 1, Points: []string{"p1", "p2"}}
			got, err := conv.ConvertToType(roundTripAny(t, tc.serde, want), reflect.TypeOf(stepOutput{}))
			if err != nil {
				t.Fatalf("struct conversion failed: %v", err)
			}
			if diff := cmp.Diff(want, got.Interface()); diff != "" {
				t.Errorf("struct mismatch (-want +got):\n%s", diff)
			}

			n, err := conv.ConvertToType(roundTripAny(t, tc.serde, 300), reflect.TypeOf(0))
			if err != nil {
				t.Fatalf("int conversion failed: %v", err)
			}
			if n.Interface() != 300 {
				t.Errorf("int conversion: got %v (%T), want 300", n.Interface(), n.Interface())
			}

			l, err := conv.ConvertToType(roundTripAny(t, tc.serde, "short"), reflect.TypeOf(length("")))
			if err != nil {
				t.Fatalf("named string conversion failed: %v", err)
			}
			if l.Interface() != length("short") {
				t.Errorf("named string conversion: got %v", l.Interface())
			}

			ptr, err := conv.ConvertToType(roundTripAny(t, tc.serde, want), reflect.TypeOf(&stepOutput{}))
			if err != nil {
				t.Fatalf("pointer conversion failed: %v", err)
			}
			if diff := cmp.Diff(&want, ptr.Interface()); diff != "" {
				t.Errorf("pointer mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTypeConverterNumericEdges(t *testing.T) {
	conv := serde.NewTypeConverter(&serde.JsonSerde{})

	tests := []struct {
		name    string
		value   any
		target  reflect.Type
		want    any
		wantErr bool
	}{
		{"whole float to int", float64(42), reflect.TypeOf(0), 42, false},
		{"fractional float to int", 1.5, reflect.TypeOf(0), nil, true},
		{"int64 to int8 overflow", int64(300), reflect.TypeOf(int8(0)), nil, true},
		{"negative to uint", int64(-1), reflect.TypeOf(uint(0)), nil, true},
		{"uint64 to int32", uint64(7), reflect.TypeOf(int32(0)), int32(7), false},
		{"int to float", int64(3), reflect.TypeOf(float64(0)), float64(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conv.ConvertToType(tt.value, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got.Interface())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Interface() != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got.Interface(), got.Interface(), tt.want, tt.want)
			}
		})
	}
}

func TestTypeConverterNilAndInterface(t *testing.T) {
	conv := serde.NewTypeConverter(nil)

	zero, err := conv.ConvertToType(nil, reflect.TypeOf(""))
	if err != nil {
		t.Fatalf("nil conversion failed: %v", err)
	}
	if zero.Interface() != "" {
		t.Errorf("nil should become the zero value, got %q", zero.Interface())
	}

	anyType := reflect.TypeOf((*any)(nil)).Elem()
	v, err := conv.ConvertToType(map[string]any{"k": "v"}, anyType)
	if err != nil {
		t.Fatalf("interface conversion failed: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"k": "v"}, v.Interface()); diff != "" {
		t.Errorf("interface conversion mismatch (-want +got):\n%s", diff)
	}
}

func TestMsgpackSerdeIsDeterministic(t *testing.T) {
	s := &serde.MsgpackSerde{}
	value := map[string]any{"topic": "t", "analysis": "a", "key_points": "p1; p2"}

	first, err := s.SerializeBinary(value)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	for range 10 {
		again, err := s.SerializeBinary(value)
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		if string(again) != string(first) {
			t.Fatalf("encoding of the same map changed between calls")
		}
	}
}
