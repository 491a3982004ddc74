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

package internal

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ngnhng/durableai/api/serde"
)

var _ Future = (*future)(nil)

// Future is the handle of an activity call inside a workflow.
type Future interface {
	// Get blocks the workflow until the activity resolves, then stores its
	// value in valuePtr (which may be nil).
	Get(ctx context.Context, valuePtr any) error
	IsReady() bool
}

type future struct {
	isResolved bool
	value      []any
	err        error
	converter  *serde.TypeConverter
}

func (f *future) IsReady() bool { return f.isResolved }

func (f *future) Get(ctx context.Context, valuePtr any) error {
	if !f.isResolved {
		panic(errorBlockingFuture{})
	}
	if f.err != nil {
		return f.err
	}
	if valuePtr == nil || len(f.value) == 0 {
		return nil
	}

	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("result target must be a non-nil pointer, got %T", valuePtr)
	}
	converted, err := f.converter.ConvertToType(f.value[0], rv.Elem().Type())
	if err != nil {
		return fmt.Errorf("decode activity result: %w", err)
	}
	rv.Elem().Set(converted)
	return nil
}
