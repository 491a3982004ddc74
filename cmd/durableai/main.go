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

package main

import (
	"context"
	"os"

	"github.com/ngnhng/durableai/internal/cli"

	_ "github.com/ngnhng/durableai/examples/scenarios/aicontent"
	_ "github.com/ngnhng/durableai/examples/scenarios/chain"
	_ "github.com/ngnhng/durableai/examples/scenarios/functioncalling"
	_ "github.com/ngnhng/durableai/examples/scenarios/greeting"
	_ "github.com/ngnhng/durableai/examples/scenarios/openrouter"
	_ "github.com/ngnhng/durableai/examples/scenarios/recovery"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
