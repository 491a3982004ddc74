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
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var _ BinarySerde = (*MsgpackSerde)(nil)

// MsgpackSerde falls back to `json` struct tags so payload types only need
// one set of tags.
type MsgpackSerde struct{}

func (m *MsgpackSerde) SerializeBinary(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("msgpack serialization failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *MsgpackSerde) DeserializeBinary(data []byte, valuePtr any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(valuePtr); err != nil {
		return fmt.Errorf("msgpack deserialization failed: %w", err)
	}
	return nil
}
