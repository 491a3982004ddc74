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
	"sync"
)

var (
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorIfaceType = reflect.TypeOf((*error)(nil)).Elem()
)

func newInMemoryRegistry() *hashMapRegistry {
	return &hashMapRegistry{
		entries: make(map[string]any),
	}
}

type hashMapRegistry struct {
	mu      sync.RWMutex
	entries map[string]any
}

func (m *hashMapRegistry) get(k string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[k]
	if !ok {
		return nil, fmt.Errorf("%q is not registered", k)
	}
	return entry, nil
}

func (m *hashMapRegistry) set(k string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[k]; ok {
		return &RegistrationError{Name: k, Reason: "already registered"}
	}
	if v == nil || reflect.TypeOf(v).Kind() != reflect.Func {
		return &RegistrationError{Name: k, Reason: "not a function"}
	}
	m.entries[k] = v
	return nil
}

func (m *hashMapRegistry) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// checkSignature requires ctxType first and error as the last return.
func checkSignature(name string, fn any, ctxType reflect.Type) error {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return &RegistrationError{Name: name, Reason: "not a function"}
	}
	if t.NumIn() < 1 || t.In(0) != ctxType {
		return &RegistrationError{Name: name, Reason: fmt.Sprintf("first parameter must be %s", ctxType)}
	}
	if t.NumOut() < 1 || t.NumOut() > 2 || t.Out(t.NumOut()-1) != errorIfaceType {
		return &RegistrationError{Name: name, Reason: "must return (error) or (value, error)"}
	}
	if t.IsVariadic() {
		return &RegistrationError{Name: name, Reason: "variadic functions are not supported"}
	}
	return nil
}
