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

package llm

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema reflects T into the inline object schema expected as function
// parameters. Fields are described by their json and jsonschema tags.
func Schema[T any]() (map[string]any, error) {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	data, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}

// ToolFor declares a function taking arguments of type T.
func ToolFor[T any](name, description string) (Tool, error) {
	params, err := Schema[T]()
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return FunctionTool(name, description, params), nil
}

// MustToolFor is ToolFor for package level declarations.
func MustToolFor[T any](name, description string) Tool {
	t, err := ToolFor[T](name, description)
	if err != nil {
		panic(err)
	}
	return t
}
