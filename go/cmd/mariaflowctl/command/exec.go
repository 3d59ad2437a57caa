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

package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

func execCommand(rc *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement> [arg...]",
		Short: "Execute a mutating statement and report affected rows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := rc.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			params := make([]any, len(args)-1)
			for i, a := range args[1:] {
				params[i] = a
			}
			affected, err := c.Execute(ctx, args[0], params...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", affected)
			return nil
		},
	}
}
