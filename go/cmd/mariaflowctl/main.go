// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// mariaflowctl is the command-line companion for mariaflow: it runs
// ad-hoc statements, streams query results, and inspects pool health
// against a configured MariaDB server.
package main

import (
	"log/slog"
	"os"

	"github.com/mariaflow/mariaflow/go/cmd/mariaflowctl/command"
)

func main() {
	if err := command.GetRootCommand().Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
