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
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/ngnhng/durableai/api"
)

// extractFullFunctionName returns the package qualified name of fn. Method
// values lose their "-fm" suffix so a.Do and (*A).Do-bound values agree.
func extractFullFunctionName(fn any) (string, error) {
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return "", fmt.Errorf("fn is not of function type")
	}
	fnObj := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if fnObj == nil {
		return "", fmt.Errorf("could not retrieve function metadata")
	}
	return strings.TrimSuffix(fnObj.Name(), "-fm"), nil
}

// functionName accepts either a registered name or the function itself.
func functionName(fn any) (string, error) {
	if name, ok := fn.(string); ok {
		if name == "" {
			return "", fmt.Errorf("empty function name")
		}
		return name, nil
	}
	return extractFullFunctionName(fn)
}

func reflectValuesToAny(vals []reflect.Value) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v.Interface()
	}
	return out
}

// validateWorkflowID keeps IDs usable as NATS subject tokens and KV keys.
func validateWorkflowID(id api.WorkflowID) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidWorkflowID)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '=':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidWorkflowID, id, r)
		}
	}
	return nil
}
